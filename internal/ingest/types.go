// Package ingest defines the domain model shared by the fetchers, adapters, stores and the
// pipeline orchestrator.
package ingest

import (
	"strings"
	"time"
)

// Stage names one pass of the pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageDiscovery  Stage = "discovery"
	StageListing    Stage = "listing"
	StageEnrichment Stage = "enrichment"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageDiscovery, StageListing, StageEnrichment}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageDiscovery, StageListing, StageEnrichment:
		return true
	default:
		return false
	}
}

// Strategy selects how a URL is fetched.
type Strategy string

// Supported fetch strategies.
const (
	// StrategyRenderedPage drives a headless browser and returns the rendered DOM.
	StrategyRenderedPage Strategy = "rendered_page"
	// StrategyJSONAPI performs a plain HTTP request expecting a JSON body.
	StrategyJSONAPI Strategy = "json_api"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyRenderedPage || s == StrategyJSONAPI
}

// FetchRequest describes a single page or API call.
type FetchRequest struct {
	URL      string
	Strategy Strategy
	// Timeout bounds the whole call. Zero selects the driver default for the strategy.
	Timeout time.Duration
	// ReadySelector optionally names an element the rendered page must contain before capture.
	ReadySelector string
}

// FetchResult is the raw content returned by the fetch driver.
type FetchResult struct {
	RequestURL  string
	FinalURL    string
	Strategy    Strategy
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Duration    time.Duration
}

// BaseURL returns the URL relative links on the page should resolve against.
func (r FetchResult) BaseURL() string {
	if r.FinalURL != "" {
		return r.FinalURL
	}
	return r.RequestURL
}

// CreatorStats carries the counters a page may expose for a creator. Nil fields were not
// present on the page and must not overwrite stored values.
type CreatorStats struct {
	Followers *int64
	Likes     *int64
	Views     *int64
	Posts     *int64
}

// IsZero reports whether no counter was extracted.
func (s CreatorStats) IsZero() bool {
	return s.Followers == nil && s.Likes == nil && s.Views == nil && s.Posts == nil
}

// CreatorCandidate is an unpersisted creator produced by a discovery adapter.
type CreatorCandidate struct {
	ExternalID  string
	ProfileURL  string
	DisplayName string
	AvatarURL   string
	CoverURL    string
	Stats       CreatorStats
}

// HasIdentity reports whether the candidate carries enough to be keyed and displayed.
func (c CreatorCandidate) HasIdentity() bool {
	if strings.TrimSpace(c.DisplayName) == "" {
		return false
	}
	return c.ExternalID != "" || c.ProfileURL != ""
}

// NaturalKey returns the dedup key for the candidate within sourceID. The external numeric id
// wins over the profile URL when both are present.
func (c CreatorCandidate) NaturalKey(sourceID string) string {
	if c.ExternalID != "" {
		return sourceID + ":id:" + c.ExternalID
	}
	return sourceID + ":url:" + NormalizeURL(c.ProfileURL)
}

// Creator is a persisted content creator.
type Creator struct {
	ID                int64
	SourceID          string
	ExternalKey       string
	ExternalID        string
	ProfileURL        string
	DisplayName       string
	AvatarURL         string
	CoverURL          string
	FollowerCount     int64
	LikeCount         int64
	ViewCount         int64
	PostCount         int64
	MediaCount        int64
	MediaListed       bool
	MediaListedAt     *time.Time
	DetailsEnriched   bool
	DetailsEnrichedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MediaCandidate is an unpersisted media item produced by a listing adapter.
type MediaCandidate struct {
	PostID          string
	MediaID         string
	CanonicalURL    string
	Title           string
	Description     string
	ListingURL      string
	ThumbnailURL    string
	PosterURL       string
	PlayableURL     string
	SDURL           string
	Width           int
	Height          int
	DurationSeconds int
	ViewCount       *int64
	LikeCount       *int64
	PublishedAt     *time.Time
}

// HasIdentity reports whether the candidate can be keyed.
func (m MediaCandidate) HasIdentity() bool {
	return (m.PostID != "" && m.MediaID != "") || m.CanonicalURL != ""
}

// MediaItem is a persisted media item.
type MediaItem struct {
	ID              int64
	CreatorID       int64
	PostID          string
	MediaID         string
	CanonicalURL    string
	Title           string
	Description     string
	ListingURL      string
	ThumbnailURL    string
	PosterURL       string
	PlayableURL     string
	SDURL           string
	Width           int
	Height          int
	DurationSeconds int
	ViewCount       int64
	LikeCount       int64
	PublishedAt     *time.Time
	EnrichedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Incomplete reports whether the item still needs detail enrichment.
func (m MediaItem) Incomplete() bool {
	return m.PlayableURL == "" || m.PosterURL == ""
}

// Key returns a short human readable identifier for logs and archive paths.
func (m MediaItem) Key() string {
	if m.PostID != "" && m.MediaID != "" {
		return m.PostID + "-" + m.MediaID
	}
	return NormalizeURL(m.CanonicalURL)
}

// MediaDetail holds the fields recovered from a media detail page. Empty strings and nil
// pointers leave the stored value untouched.
type MediaDetail struct {
	PosterURL       string
	PlayableURL     string
	SDURL           string
	Title           string
	Description     string
	Width           int
	Height          int
	DurationSeconds int
	ViewCount       *int64
	LikeCount       *int64
	PublishedAt     *time.Time
	// Heuristic is set when PlayableURL was derived from a thumbnail name rather than read
	// from the page.
	Heuristic bool
}

// IsZero reports whether the detail carries nothing worth persisting.
func (d MediaDetail) IsZero() bool {
	return d.PosterURL == "" && d.PlayableURL == "" && d.SDURL == ""
}

// Extraction is the structured output of an adapter.
type Extraction struct {
	Creators []CreatorCandidate
	Media    []MediaCandidate
	Detail   *MediaDetail
	// Stats carries creator counters found on a media listing page.
	Stats CreatorStats
	// Seen counts raw entries on the page before identity filtering. Paginated JSON endpoints
	// compare it against the requested page size.
	Seen int
	// Dropped counts records skipped for missing identity fields.
	Dropped     int
	Diagnostics []string
}

// Records returns the number of usable records in the extraction.
func (e Extraction) Records() int {
	n := len(e.Creators) + len(e.Media)
	if e.Detail != nil && !e.Detail.IsZero() {
		n++
	}
	return n
}

// Diagnose appends a diagnostic note.
func (e *Extraction) Diagnose(note string) {
	e.Diagnostics = append(e.Diagnostics, note)
}

// FlagRepair reports how many creators each flag was set on after a repair.
type FlagRepair struct {
	Reset           int64
	MediaListed     int64
	DetailsEnriched int64
}
