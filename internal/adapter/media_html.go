package adapter

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// MediaHTML reads media cards and profile counters from a rendered creator page.
type MediaHTML struct {
	urls      Resolver
	cards     Chain[*goquery.Selection, *goquery.Selection]
	link      htmlField
	postID    htmlField
	mediaID   htmlField
	title     htmlField
	thumbnail htmlField
	poster    htmlField
	playable  htmlField
	duration  htmlField
	views     htmlField
	likes     htmlField
	published htmlField

	followers    htmlField
	profileLikes htmlField
	profileViews htmlField
	posts        htmlField
}

// NewMediaHTML builds the adapter for src.
func NewMediaHTML(src ingest.Source) ingest.Adapter {
	return &MediaHTML{
		urls: NewResolver(src.BaseURL, src.CDNBaseURL),
		cards: Chain[*goquery.Selection, *goquery.Selection]{
			elements(".video-card"),
			elements(".media-card"),
			elements(".post-media"),
			elements("article.video"),
			elements("[data-media-id]"),
		},
		link:      htmlFields(attr("a[href]", "href"), attr("", "href"), attr("", "data-href")),
		postID:    htmlFields(attr("", "data-post-id"), attr("[data-post-id]", "data-post-id")),
		mediaID:   htmlFields(attr("", "data-media-id"), attr("", "data-video-id"), attr("[data-media-id]", "data-media-id")),
		title:     htmlFields(text(".title"), text(".video-title"), attr("a[title]", "title"), attr("img[alt]", "alt")),
		thumbnail: htmlFields(attr("img", "data-src"), attr("img", "src"), attr("", "data-thumb")),
		poster:    htmlFields(attr("video", "poster"), attr("", "data-poster")),
		playable:  htmlFields(attr("video source", "src"), attr("video", "src"), attr("", "data-video-src")),
		duration:  htmlFields(text(".duration"), attr("", "data-duration"), text("time.duration")),
		views:     htmlFields(attr("", "data-views"), text(".views")),
		likes:     htmlFields(attr("", "data-likes"), text(".likes")),
		published: htmlFields(attr("time[datetime]", "datetime"), attr("", "data-published")),

		followers:    htmlFields(attr("[data-followers]", "data-followers"), text("[data-stat=followers]"), text(".profile-stats .followers")),
		profileLikes: htmlFields(attr("[data-likes-total]", "data-likes-total"), text("[data-stat=likes]"), text(".profile-stats .likes")),
		profileViews: htmlFields(attr("[data-views-total]", "data-views-total"), text("[data-stat=views]"), text(".profile-stats .views")),
		posts:        htmlFields(attr("[data-posts]", "data-posts"), text("[data-stat=posts]"), text(".profile-stats .posts")),
	}
}

// Kind implements ingest.Adapter.
func (a *MediaHTML) Kind() string { return KindMediaHTML }

// Extract implements ingest.Adapter.
func (a *MediaHTML) Extract(res ingest.FetchResult) (ingest.Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return ingest.Extraction{}, fmt.Errorf("%w: parse html: %w", ingest.ErrContentNotReady, err)
	}

	page := doc.Selection
	ex := ingest.Extraction{
		Stats: statsFrom(a.followers.Value(page), a.profileLikes.Value(page), a.profileViews.Value(page), a.posts.Value(page)),
	}
	cards, ok := a.cards.Resolve(page)
	if !ok {
		ex.Diagnose("no media cards matched")
		return ex, nil
	}
	ex.Seen = cards.Length()
	cards.Each(func(i int, card *goquery.Selection) {
		m := a.candidate(card)
		if !m.HasIdentity() {
			ex.Dropped++
			ex.Diagnose(fmt.Sprintf("media card %d: %v: missing post/media id and url", i, ingest.ErrExtractionIncomplete))
			return
		}
		ex.Media = append(ex.Media, m)
	})
	return ex, nil
}

func (a *MediaHTML) candidate(card *goquery.Selection) ingest.MediaCandidate {
	link := a.urls.Resolve(a.link.Value(card))
	m := ingest.MediaCandidate{
		PostID:       a.postID.Value(card),
		MediaID:      a.mediaID.Value(card),
		ListingURL:   link,
		CanonicalURL: a.urls.Canonical(link),
		Title:        a.title.Value(card),
		ThumbnailURL: a.urls.Resolve(a.thumbnail.Value(card)),
		PosterURL:    a.urls.Resolve(a.poster.Value(card)),
		PlayableURL:  a.urls.Resolve(a.playable.Value(card)),
		ViewCount:    countPtr(a.views.Value(card)),
		LikeCount:    countPtr(a.likes.Value(card)),
	}
	if d, ok := parseDuration(a.duration.Value(card)); ok {
		m.DurationSeconds = d
	}
	if t, ok := parseTime(a.published.Value(card)); ok {
		m.PublishedAt = t
	}

	derivedPost, derivedMedia := idsFromURL(link)
	if m.PostID == "" {
		m.PostID = derivedPost
	}
	if m.MediaID == "" {
		m.MediaID = derivedMedia
	}
	if m.MediaID == "" && m.PostID != "" && m.ThumbnailURL != "" {
		m.MediaID = assetID(m.ThumbnailURL)
	}
	return m
}
