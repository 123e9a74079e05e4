package adapter

import (
	"fmt"
	"net/url"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// CreatorJSON reads creators from a paginated JSON directory endpoint.
type CreatorJSON struct {
	urls       Resolver
	list       jsonList
	externalID jsonField
	name       jsonField
	username   jsonField
	profileURL jsonField
	avatar     jsonField
	cover      jsonField
	followers  jsonField
	likes      jsonField
	views      jsonField
	posts      jsonField
}

// NewCreatorJSON builds the adapter for src.
func NewCreatorJSON(src ingest.Source) ingest.Adapter {
	return &CreatorJSON{
		urls: NewResolver(src.BaseURL, src.CDNBaseURL),
		list: jsonList{
			listAt("creators"),
			listAt("data.creators"),
			listAt("data.items"),
			listAt("data.users"),
			listAt("users"),
			listAt("models"),
			listAt("items"),
			listAt("results"),
			listAt("data"),
			listAt(""),
		},
		externalID: jsonPaths("id", "user_id", "creator_id", "account_id"),
		name:       jsonPaths("display_name", "displayName", "name", "username", "nickname"),
		username:   jsonPaths("username", "handle", "slug"),
		profileURL: jsonPaths("profile_url", "profileUrl", "url", "link"),
		avatar:     jsonPaths("avatar_url", "avatarUrl", "avatar.url", "avatar", "profile_image_url", "images.avatar"),
		cover:      jsonPaths("cover_url", "banner_url", "cover.url", "cover", "header_image_url"),
		followers:  jsonPaths("followers_count", "follower_count", "followers", "stats.followers"),
		likes:      jsonPaths("likes_count", "like_count", "likes", "stats.likes"),
		views:      jsonPaths("views_count", "view_count", "views", "stats.views"),
		posts:      jsonPaths("posts_count", "post_count", "media_count", "stats.posts"),
	}
}

// Kind implements ingest.Adapter.
func (a *CreatorJSON) Kind() string { return KindCreatorJSON }

// Extract implements ingest.Adapter.
func (a *CreatorJSON) Extract(res ingest.FetchResult) (ingest.Extraction, error) {
	doc, err := decodeJSON(res.Body)
	if err != nil {
		return ingest.Extraction{}, err
	}
	entries, ok := a.list.Resolve(doc)
	if !ok {
		return ingest.Extraction{}, fmt.Errorf("%w: no creator list in payload", ingest.ErrContentNotReady)
	}

	ex := ingest.Extraction{Seen: len(entries)}
	for i, entry := range entries {
		profile := a.profileURL.Value(entry)
		if profile == "" {
			if handle := a.username.Value(entry); handle != "" {
				profile = "/" + url.PathEscape(handle)
			}
		}
		c := ingest.CreatorCandidate{
			ExternalID:  a.externalID.Value(entry),
			ProfileURL:  a.urls.Resolve(profile),
			DisplayName: a.name.Value(entry),
			AvatarURL:   a.urls.Resolve(a.avatar.Value(entry)),
			CoverURL:    a.urls.Resolve(a.cover.Value(entry)),
			Stats: statsFrom(
				a.followers.Value(entry),
				a.likes.Value(entry),
				a.views.Value(entry),
				a.posts.Value(entry),
			),
		}
		if !c.HasIdentity() {
			ex.Dropped++
			ex.Diagnose(fmt.Sprintf("creator entry %d: %v: missing name or identifier", i, ingest.ErrExtractionIncomplete))
			continue
		}
		ex.Creators = append(ex.Creators, c)
	}
	return ex, nil
}
