package adapter

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// CreatorHTML reads creator cards from a rendered directory page.
type CreatorHTML struct {
	urls       Resolver
	cards      Chain[*goquery.Selection, *goquery.Selection]
	profileURL htmlField
	name       htmlField
	externalID htmlField
	avatar     htmlField
	cover      htmlField
	followers  htmlField
	likes      htmlField
	views      htmlField
	posts      htmlField
}

// NewCreatorHTML builds the adapter for src.
func NewCreatorHTML(src ingest.Source) ingest.Adapter {
	return &CreatorHTML{
		urls: NewResolver(src.BaseURL, src.CDNBaseURL),
		cards: Chain[*goquery.Selection, *goquery.Selection]{
			elements(".creator-card"),
			elements(".model-card"),
			elements(".profile-card"),
			elements("li.creator"),
			elements("[data-creator-id]"),
		},
		profileURL: htmlFields(
			attr("a.profile-link", "href"),
			attr("a[data-profile]", "href"),
			attr("a[href]", "href"),
			attr("", "href"),
			attr("", "data-href"),
		),
		name: htmlFields(
			text(".creator-name"),
			text(".display-name"),
			text(".model-name"),
			text("h3"),
			text("h2"),
			attr("a[title]", "title"),
			attr("img[alt]", "alt"),
		),
		externalID: htmlFields(
			attr("", "data-creator-id"),
			attr("", "data-user-id"),
			attr("", "data-id"),
		),
		avatar: htmlFields(
			attr("img.avatar", "data-src"),
			attr("img.avatar", "src"),
			attr("img", "data-src"),
			attr("img", "src"),
		),
		cover: htmlFields(
			attr(".cover", "data-bg"),
			attr("img.cover", "src"),
		),
		followers: htmlFields(attr("", "data-followers"), text(".followers"), text("[data-stat=followers]")),
		likes:     htmlFields(attr("", "data-likes"), text(".likes"), text("[data-stat=likes]")),
		views:     htmlFields(attr("", "data-views"), text(".views"), text("[data-stat=views]")),
		posts:     htmlFields(attr("", "data-posts"), text(".posts"), text(".media-count"), text("[data-stat=posts]")),
	}
}

// Kind implements ingest.Adapter.
func (a *CreatorHTML) Kind() string { return KindCreatorHTML }

// Extract implements ingest.Adapter.
func (a *CreatorHTML) Extract(res ingest.FetchResult) (ingest.Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return ingest.Extraction{}, fmt.Errorf("%w: parse html: %w", ingest.ErrContentNotReady, err)
	}

	var ex ingest.Extraction
	cards, ok := a.cards.Resolve(doc.Selection)
	if !ok {
		ex.Diagnose("no creator cards matched")
		return ex, nil
	}
	ex.Seen = cards.Length()
	cards.Each(func(i int, card *goquery.Selection) {
		c := ingest.CreatorCandidate{
			ExternalID:  a.externalID.Value(card),
			ProfileURL:  a.urls.Resolve(a.profileURL.Value(card)),
			DisplayName: a.name.Value(card),
			AvatarURL:   a.urls.Resolve(a.avatar.Value(card)),
			CoverURL:    a.urls.Resolve(a.cover.Value(card)),
			Stats: statsFrom(
				a.followers.Value(card),
				a.likes.Value(card),
				a.views.Value(card),
				a.posts.Value(card),
			),
		}
		if !c.HasIdentity() {
			ex.Dropped++
			ex.Diagnose(fmt.Sprintf("creator card %d: %v: missing name or profile url", i, ingest.ErrExtractionIncomplete))
			return
		}
		ex.Creators = append(ex.Creators, c)
	})
	return ex, nil
}
