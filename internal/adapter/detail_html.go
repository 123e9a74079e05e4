package adapter

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// DetailHTML reads playable sources and metadata from a rendered media page.
type DetailHTML struct {
	urls        Resolver
	playable    htmlField
	poster      htmlField
	sd          htmlField
	blurred     htmlField
	title       htmlField
	description htmlField
	width       htmlField
	height      htmlField
	duration    htmlField
	views       htmlField
	likes       htmlField
	published   htmlField
}

// NewDetailHTML builds the adapter for src.
func NewDetailHTML(src ingest.Source) ingest.Adapter {
	return &DetailHTML{
		urls: NewResolver(src.BaseURL, src.CDNBaseURL),
		playable: htmlFields(
			attr(`video source[type="video/mp4"]`, "src"),
			attr("video source", "src"),
			attr("video", "src"),
			attr(`meta[property="og:video:secure_url"]`, "content"),
			attr(`meta[property="og:video:url"]`, "content"),
			attr(`meta[property="og:video"]`, "content"),
			attr("[data-video-src]", "data-video-src"),
		),
		poster: htmlFields(
			attr("video", "poster"),
			attr(`meta[property="og:image"]`, "content"),
			attr(`link[rel="image_src"]`, "href"),
			attr("img.poster", "src"),
			attr(`img[src*="_blur"]`, "src"),
		),
		sd: htmlFields(
			attr(`video source[data-quality="sd"]`, "src"),
			attr(`video source[label="SD"]`, "src"),
			attr(`video source[res="480"]`, "src"),
			attr("a.download-sd", "href"),
		),
		blurred: htmlFields(
			attr(`img[src*="_blur"]`, "src"),
			attr(`img[data-src*="_blur"]`, "data-src"),
			attr(`meta[property="og:image"]`, "content"),
			attr("video", "poster"),
		),
		title: htmlFields(
			attr(`meta[property="og:title"]`, "content"),
			text("h1"),
			text("title"),
		),
		description: htmlFields(
			attr(`meta[property="og:description"]`, "content"),
			attr(`meta[name="description"]`, "content"),
		),
		width:  htmlFields(attr("video", "width"), attr(`meta[property="og:video:width"]`, "content")),
		height: htmlFields(attr("video", "height"), attr(`meta[property="og:video:height"]`, "content")),
		duration: htmlFields(
			attr(`meta[property="video:duration"]`, "content"),
			attr(`meta[itemprop="duration"]`, "content"),
			text(".duration"),
		),
		views:     htmlFields(attr(`meta[itemprop="interactionCount"]`, "content"), text(".views"), attr("[data-views]", "data-views")),
		likes:     htmlFields(text(".likes"), attr("[data-likes]", "data-likes")),
		published: htmlFields(attr(`meta[property="article:published_time"]`, "content"), attr("time[datetime]", "datetime")),
	}
}

// Kind implements ingest.Adapter.
func (a *DetailHTML) Kind() string { return KindDetailHTML }

// Extract implements ingest.Adapter.
func (a *DetailHTML) Extract(res ingest.FetchResult) (ingest.Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return ingest.Extraction{}, fmt.Errorf("%w: parse html: %w", ingest.ErrContentNotReady, err)
	}
	page := doc.Selection

	d := ingest.MediaDetail{
		PosterURL:   a.urls.Resolve(a.poster.Value(page)),
		PlayableURL: a.urls.Resolve(a.playable.Value(page)),
		SDURL:       a.urls.Resolve(a.sd.Value(page)),
		Title:       a.title.Value(page),
		Description: a.description.Value(page),
		Width:       atoi(a.width.Value(page)),
		Height:      atoi(a.height.Value(page)),
		ViewCount:   countPtr(a.views.Value(page)),
		LikeCount:   countPtr(a.likes.Value(page)),
	}
	if secs, ok := parseDuration(a.duration.Value(page)); ok {
		d.DurationSeconds = secs
	}
	if t, ok := parseTime(a.published.Value(page)); ok {
		d.PublishedAt = t
	}

	var ex ingest.Extraction
	if d.PlayableURL == "" {
		if guess, ok := playableFromBlur(a.urls.Resolve(a.blurred.Value(page))); ok {
			d.PlayableURL = guess
			d.Heuristic = true
			ex.Diagnose(blurDiagnostic)
		}
	}
	return finishDetail(ex, d), nil
}

func finishDetail(ex ingest.Extraction, d ingest.MediaDetail) ingest.Extraction {
	if d.IsZero() {
		ex.Diagnose("no media sources found")
		return ex
	}
	ex.Seen = 1
	ex.Detail = &d
	return ex
}
