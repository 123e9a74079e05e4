package adapter

import (
	"fmt"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// mediaFields are the per-item JSON fields shared by listing and detail payloads.
type mediaFields struct {
	postID      jsonField
	mediaID     jsonField
	canonical   jsonField
	title       jsonField
	description jsonField
	thumbnail   jsonField
	poster      jsonField
	playable    jsonField
	sd          jsonField
	width       jsonField
	height      jsonField
	duration    jsonField
	views       jsonField
	likes       jsonField
	published   jsonField
}

func newMediaFields() mediaFields {
	return mediaFields{
		postID:      jsonPaths("post_id", "postId", "post.id", "id"),
		mediaID:     jsonPaths("media_id", "mediaId", "media.id", "video_id", "videoId", "id"),
		canonical:   jsonPaths("url", "permalink", "share_url", "link"),
		title:       jsonPaths("title", "caption", "name"),
		description: jsonPaths("description", "body", "text"),
		thumbnail:   jsonPaths("thumbnail_url", "thumbnailUrl", "thumbnail", "thumb", "preview.url", "media.thumbnail"),
		poster:      jsonPaths("poster_url", "posterUrl", "poster", "media.poster", "cover_url"),
		playable:    jsonPaths("video_url", "videoUrl", "playable_url", "media.url", "media.src", "source", "src"),
		sd:          jsonPaths("sd_url", "video_sd_url", "media.sd_url", "sources.sd"),
		width:       jsonPaths("width", "media.width"),
		height:      jsonPaths("height", "media.height"),
		duration:    jsonPaths("duration_seconds", "duration", "media.duration"),
		views:       jsonPaths("view_count", "views_count", "views", "stats.views"),
		likes:       jsonPaths("like_count", "likes_count", "likes", "stats.likes"),
		published:   jsonPaths("published_at", "publishedAt", "created_at", "createdAt", "timestamp"),
	}
}

func (f mediaFields) candidate(urls Resolver, entry any) ingest.MediaCandidate {
	m := ingest.MediaCandidate{
		PostID:       f.postID.Value(entry),
		MediaID:      f.mediaID.Value(entry),
		CanonicalURL: urls.Canonical(f.canonical.Value(entry)),
		Title:        f.title.Value(entry),
		Description:  f.description.Value(entry),
		ThumbnailURL: urls.Resolve(f.thumbnail.Value(entry)),
		PosterURL:    urls.Resolve(f.poster.Value(entry)),
		PlayableURL:  urls.Resolve(f.playable.Value(entry)),
		SDURL:        urls.Resolve(f.sd.Value(entry)),
		Width:        atoi(f.width.Value(entry)),
		Height:       atoi(f.height.Value(entry)),
		ViewCount:    countPtr(f.views.Value(entry)),
		LikeCount:    countPtr(f.likes.Value(entry)),
	}
	m.ListingURL = m.CanonicalURL
	if d, ok := parseDuration(f.duration.Value(entry)); ok {
		m.DurationSeconds = d
	}
	if t, ok := parseTime(f.published.Value(entry)); ok {
		m.PublishedAt = t
	}
	return m
}

// creatorPrefixes locate the creator object embedded in listing payloads.
var creatorPrefixes = []string{"creator.", "user.", "account.", "data.creator.", "data.user.", "meta.creator."}

// MediaJSON reads a creator's media from a paginated JSON endpoint.
type MediaJSON struct {
	urls      Resolver
	list      jsonList
	fields    mediaFields
	followers jsonField
	likes     jsonField
	views     jsonField
	posts     jsonField
}

// NewMediaJSON builds the adapter for src.
func NewMediaJSON(src ingest.Source) ingest.Adapter {
	return &MediaJSON{
		urls: NewResolver(src.BaseURL, src.CDNBaseURL),
		list: jsonList{
			listAt("media"),
			listAt("videos"),
			listAt("posts"),
			listAt("data.media"),
			listAt("data.items"),
			listAt("data.posts"),
			listAt("items"),
			listAt("results"),
			listAt("data"),
			listAt(""),
		},
		fields:    newMediaFields(),
		followers: jsonPaths(prefixed(creatorPrefixes, "followers_count", "follower_count", "followers")...),
		likes:     jsonPaths(prefixed(creatorPrefixes, "likes_count", "like_count", "likes")...),
		views:     jsonPaths(prefixed(creatorPrefixes, "views_count", "view_count", "views")...),
		posts:     jsonPaths(prefixed(creatorPrefixes, "posts_count", "post_count", "media_count")...),
	}
}

// Kind implements ingest.Adapter.
func (a *MediaJSON) Kind() string { return KindMediaJSON }

// Extract implements ingest.Adapter.
func (a *MediaJSON) Extract(res ingest.FetchResult) (ingest.Extraction, error) {
	doc, err := decodeJSON(res.Body)
	if err != nil {
		return ingest.Extraction{}, err
	}
	entries, ok := a.list.Resolve(doc)
	if !ok {
		return ingest.Extraction{}, fmt.Errorf("%w: no media list in payload", ingest.ErrContentNotReady)
	}

	ex := ingest.Extraction{
		Seen:  len(entries),
		Stats: statsFrom(a.followers.Value(doc), a.likes.Value(doc), a.views.Value(doc), a.posts.Value(doc)),
	}
	for i, entry := range entries {
		m := a.fields.candidate(a.urls, entry)
		if m.PostID == "" && m.MediaID == "" && m.CanonicalURL != "" {
			m.PostID, m.MediaID = idsFromURL(m.CanonicalURL)
		}
		if !m.HasIdentity() {
			ex.Dropped++
			ex.Diagnose(fmt.Sprintf("media entry %d: %v: missing post/media id and url", i, ingest.ErrExtractionIncomplete))
			continue
		}
		ex.Media = append(ex.Media, m)
	}
	return ex, nil
}
