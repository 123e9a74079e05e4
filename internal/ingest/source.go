package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Template placeholders understood by Source URL templates.
const (
	PlaceholderPage              = "{page}"
	PlaceholderLimit             = "{limit}"
	PlaceholderOffset            = "{offset}"
	PlaceholderCreatorKey        = "{creator_key}"
	PlaceholderCreatorExternalID = "{creator_external_id}"
	PlaceholderMediaURL          = "{media_url}"
	PlaceholderPostID            = "{post_id}"
	PlaceholderMediaID           = "{media_id}"
)

// StageSource configures how one stage talks to a source.
type StageSource struct {
	// URLTemplate builds the page URL. Relative templates resolve against Source.BaseURL.
	URLTemplate   string
	Strategy      Strategy
	Adapter       string
	ReadySelector string
}

// Paginated reports whether the template advances with the page number.
func (s StageSource) Paginated() bool {
	return strings.Contains(s.URLTemplate, PlaceholderPage) || strings.Contains(s.URLTemplate, PlaceholderOffset)
}

// Source is the immutable description of an external site.
type Source struct {
	ID         string
	BaseURL    string
	CDNBaseURL string
	// PageLimit is the page size requested from paginated JSON endpoints.
	PageLimit int
	Stages    map[Stage]StageSource
}

// Validate checks the source is usable by the pipeline.
func (s Source) Validate() error {
	if s.ID == "" {
		return errors.New("source id is required")
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil || !base.IsAbs() {
		return fmt.Errorf("source %s: base url must be absolute", s.ID)
	}
	if s.CDNBaseURL != "" {
		if cdn, err := url.Parse(s.CDNBaseURL); err != nil || !cdn.IsAbs() {
			return fmt.Errorf("source %s: cdn base url must be absolute", s.ID)
		}
	}
	if s.PageLimit < 0 {
		return fmt.Errorf("source %s: page limit must be >= 0", s.ID)
	}
	for stage, cfg := range s.Stages {
		if !stage.Valid() {
			return fmt.Errorf("source %s: unknown stage %q", s.ID, stage)
		}
		if !cfg.Strategy.Valid() {
			return fmt.Errorf("source %s: stage %s: unknown strategy %q", s.ID, stage, cfg.Strategy)
		}
		if cfg.Adapter == "" {
			return fmt.Errorf("source %s: stage %s: adapter is required", s.ID, stage)
		}
		if stage == StageDiscovery && cfg.URLTemplate == "" {
			return fmt.Errorf("source %s: discovery url template is required", s.ID)
		}
	}
	return nil
}

// Stage returns the configuration for stage.
func (s Source) Stage(stage Stage) (StageSource, error) {
	cfg, ok := s.Stages[stage]
	if !ok {
		return StageSource{}, fmt.Errorf("source %s: stage %s not configured", s.ID, stage)
	}
	return cfg, nil
}

// DiscoveryURL renders the creator directory URL for page (1-based).
func (s Source) DiscoveryURL(page int) (string, error) {
	cfg, err := s.Stage(StageDiscovery)
	if err != nil {
		return "", err
	}
	return s.render(cfg.URLTemplate, s.pageVars(page))
}

// ListingURL renders the media listing URL of creator for page (1-based). Without a template
// the creator's profile URL is used.
func (s Source) ListingURL(creator Creator, page int) (string, error) {
	cfg, err := s.Stage(StageListing)
	if err != nil {
		return "", err
	}
	if cfg.URLTemplate == "" {
		if creator.ProfileURL == "" {
			return "", fmt.Errorf("creator %d has no profile url", creator.ID)
		}
		return creator.ProfileURL, nil
	}
	vars := s.pageVars(page)
	vars[PlaceholderCreatorKey] = creatorSlug(creator)
	vars[PlaceholderCreatorExternalID] = creator.ExternalID
	return s.render(cfg.URLTemplate, vars)
}

// DetailURL renders the detail URL of item. Without a template the listing URL is used.
func (s Source) DetailURL(item MediaItem) (string, error) {
	cfg, err := s.Stage(StageEnrichment)
	if err != nil {
		return "", err
	}
	fallback := item.ListingURL
	if fallback == "" {
		fallback = item.CanonicalURL
	}
	if cfg.URLTemplate == "" {
		if fallback == "" {
			return "", fmt.Errorf("media %d has no detail url", item.ID)
		}
		return fallback, nil
	}
	return s.render(cfg.URLTemplate, map[string]string{
		PlaceholderMediaURL: fallback,
		PlaceholderPostID:   item.PostID,
		PlaceholderMediaID:  item.MediaID,
	})
}

func (s Source) pageVars(page int) map[string]string {
	if page < 1 {
		page = 1
	}
	limit := s.PageLimit
	return map[string]string{
		PlaceholderPage:   strconv.Itoa(page),
		PlaceholderLimit:  strconv.Itoa(limit),
		PlaceholderOffset: strconv.Itoa((page - 1) * limit),
	}
}

func (s Source) render(tmpl string, vars map[string]string) (string, error) {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, k, v)
	}
	raw := strings.NewReplacer(pairs...).Replace(tmpl)
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("render url %q: %w", raw, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// creatorSlug is the last path segment of the profile URL, or the external id.
func creatorSlug(c Creator) string {
	if c.ProfileURL != "" {
		if u, err := url.Parse(c.ProfileURL); err == nil {
			path := strings.TrimRight(u.Path, "/")
			if i := strings.LastIndex(path, "/"); i >= 0 && i < len(path)-1 {
				return path[i+1:]
			}
		}
	}
	return c.ExternalID
}

// NormalizeURL lowercases the scheme and host, drops the fragment, the trailing slash and
// tracking parameters, and sorts what is left of the query so two spellings of the same page
// share a key. Parameters that identify the resource, such as ?v= or ?id=, are kept.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = canonicalQuery(u.RawQuery)
	return u.String()
}

// trackingParams never identify a resource.
var trackingParams = map[string]bool{
	"ref":     true,
	"ref_src": true,
	"fbclid":  true,
	"gclid":   true,
	"igshid":  true,
	"si":      true,
}

func canonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	for key := range values {
		lower := strings.ToLower(key)
		if trackingParams[lower] || strings.HasPrefix(lower, "utm_") {
			delete(values, key)
		}
	}
	return values.Encode()
}
