package adapter

import (
	"fmt"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// DetailJSON reads playable sources from a JSON media payload.
type DetailJSON struct {
	urls   Resolver
	fields mediaFields
}

// NewDetailJSON builds the adapter for src.
func NewDetailJSON(src ingest.Source) ingest.Adapter {
	return &DetailJSON{
		urls:   NewResolver(src.BaseURL, src.CDNBaseURL),
		fields: newMediaFields(),
	}
}

// Kind implements ingest.Adapter.
func (a *DetailJSON) Kind() string { return KindDetailJSON }

// Extract implements ingest.Adapter.
func (a *DetailJSON) Extract(res ingest.FetchResult) (ingest.Extraction, error) {
	doc, err := decodeJSON(res.Body)
	if err != nil {
		return ingest.Extraction{}, err
	}
	obj, ok := jsonObject(doc, "data.media", "media", "data.post", "post", "data", "")
	if !ok {
		return ingest.Extraction{}, fmt.Errorf("%w: no media object in payload", ingest.ErrContentNotReady)
	}

	m := a.fields.candidate(a.urls, obj)
	d := ingest.MediaDetail{
		PosterURL:       m.PosterURL,
		PlayableURL:     m.PlayableURL,
		SDURL:           m.SDURL,
		Title:           m.Title,
		Description:     m.Description,
		Width:           m.Width,
		Height:          m.Height,
		DurationSeconds: m.DurationSeconds,
		ViewCount:       m.ViewCount,
		LikeCount:       m.LikeCount,
		PublishedAt:     m.PublishedAt,
	}
	if d.PosterURL == "" {
		d.PosterURL = m.ThumbnailURL
	}

	var ex ingest.Extraction
	if d.PlayableURL == "" {
		if guess, ok := playableFromBlur(m.ThumbnailURL); ok {
			d.PlayableURL = guess
			d.Heuristic = true
			ex.Diagnose(blurDiagnostic)
		}
	}
	return finishDetail(ex, d), nil
}
