package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/metrics"
	"github.com/JakeFAU/creator-ingest/internal/progress"
)

// errRunCanceled marks an item interrupted by cancellation before it fetched anything.
var errRunCanceled = errors.New("run canceled")

// Item outcomes recorded in metrics.
const (
	outcomeProcessed = "processed"
	outcomeSkipped   = "skipped"
	outcomeError     = "error"
)

// run holds the state of one stage execution. It is owned by a single goroutine.
type run struct {
	o        *Orchestrator
	req      ingest.RunRequest
	src      ingest.Source
	stageCfg ingest.StageSource
	adapter  ingest.Adapter
	pacing   time.Duration
	// work is the caller's context stripped of cancellation; in-flight items run on it so a
	// stop request never tears down a half-written item.
	work     context.Context
	logger   *zap.Logger
	report   ingest.RunReport
	fetches  int
	snapshot int
	canceled bool
	fatal    error
}

// next reports whether the run may start another item.
func (r *run) next(ctx context.Context) bool {
	if r.fatal != nil || r.canceled {
		return false
	}
	if ctx.Err() != nil {
		r.canceled = true
		return false
	}
	return true
}

// fetch paces and opens url. The pause waits on paceCtx, so callers pass the run context for
// the first fetch of an item and the work context for follow-up pages.
func (r *run) fetch(paceCtx context.Context, url string) (ingest.FetchResult, error) {
	if r.fetches > 0 && r.pacing > 0 {
		if err := r.o.pacer.Wait(paceCtx, r.pacing); err != nil {
			r.canceled = true
			return ingest.FetchResult{}, fmt.Errorf("%w: %w", errRunCanceled, err)
		}
	}
	r.fetches++
	return r.o.fetcher.Open(r.work, ingest.FetchRequest{
		URL:           url,
		Strategy:      r.stageCfg.Strategy,
		ReadySelector: r.stageCfg.ReadySelector,
	})
}

// extract runs the adapter and records what it found. Payloads that failed, yielded nothing
// or dropped records are archived for later diagnosis.
func (r *run) extract(item string, res ingest.FetchResult) (ingest.Extraction, error) {
	ex, err := r.adapter.Extract(res)
	if err != nil {
		r.archive(item, res)
		return ex, fmt.Errorf("extract with %s: %w", r.adapter.Kind(), err)
	}
	r.report.RecordsFound += ex.Records()
	metrics.ObserveDropped(r.adapter.Kind(), ex.Dropped)
	for _, note := range ex.Diagnostics {
		r.logger.Debug("adapter diagnostic", zap.String("item", item), zap.String("note", note))
	}
	if ex.Records() == 0 || ex.Dropped > 0 {
		r.archive(item, res)
	}
	return ex, nil
}

func (r *run) itemDone(item, url, msg string) {
	r.report.ItemsProcessed++
	metrics.ObserveItem(string(r.req.Stage), outcomeProcessed)
	r.logger.Info(msg, zap.String("item", item), zap.String("url", url))
	r.emit(progress.Event{Type: progress.TypeLog, Item: item, URL: url, Message: msg})
}

func (r *run) itemSkipped(item, reason string) {
	r.report.ItemsSkipped++
	metrics.ObserveItem(string(r.req.Stage), outcomeSkipped)
	msg := fmt.Sprintf("%s: skipped, %s", item, reason)
	r.logger.Debug(msg, zap.String("item", item))
	r.emit(progress.Event{Type: progress.TypeLog, Item: item, Message: msg})
}

// itemFailed records err against item. Session loss is fatal and ends the run instead of
// counting as an item error.
func (r *run) itemFailed(item, url string, err error) {
	if errors.Is(err, errRunCanceled) {
		return
	}
	kind := ingest.ErrorKind(err)
	if ingest.IsFatal(err) {
		r.abort(err)
		return
	}
	r.report.Errors++
	metrics.ObserveItem(string(r.req.Stage), outcomeError)
	msg := fmt.Sprintf("%s: %v", item, err)
	r.logger.Warn("item failed",
		zap.String("item", item),
		zap.String("url", url),
		zap.String("kind", kind),
		zap.Error(err),
	)
	r.emit(progress.Event{Type: progress.TypeError, Item: item, URL: url, Kind: kind, Message: msg})
}

// abort ends the run with a fatal error.
func (r *run) abort(err error) {
	if r.fatal != nil {
		return
	}
	r.fatal = err
	r.report.FatalError = err.Error()
	r.logger.Error("run aborted", zap.String("kind", ingest.ErrorKind(err)), zap.Error(err))
	r.emit(progress.Event{Type: progress.TypeError, Kind: ingest.ErrorKind(err), Message: "fatal: " + err.Error()})
}

func (r *run) finish() {
	r.report.FinishedAt = r.o.clock.Now()
	r.report.State = ingest.RunCompleted
	if r.fatal != nil || r.canceled {
		r.report.State = ingest.RunAborted
	}
	if r.canceled && r.fatal == nil {
		r.logger.Info("run canceled between items")
	}
	r.logger.Info("run finished", zap.String("summary", r.report.Summary()))

	if r.o.publisher != nil {
		if msgID, err := r.o.publisher.Publish(r.work, r.report); err != nil {
			r.logger.Warn("publish run report failed", zap.Error(err))
		} else {
			r.logger.Debug("run report published", zap.String("message_id", msgID))
		}
	}
	report := r.report
	r.emit(progress.Event{Type: progress.TypeDone, Message: report.Summary(), Report: &report,
		Dur: report.FinishedAt.Sub(report.StartedAt)})
}

func (r *run) emit(evt progress.Event) {
	if r.o.emitter == nil {
		return
	}
	evt.RunID = r.req.RunID
	evt.TS = r.o.clock.Now()
	evt.Source = r.src.ID
	evt.Stage = r.req.Stage
	r.o.emitter.Emit(evt)
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// archive writes the raw payload to the snapshot store. Failures are logged only.
func (r *run) archive(item string, res ingest.FetchResult) {
	if r.o.archive == nil || len(res.Body) == 0 {
		return
	}
	r.snapshot++
	ext, contentType := "html", "text/html; charset=utf-8"
	if res.Strategy == ingest.StrategyJSONAPI {
		ext, contentType = "json", "application/json"
	}
	slug := strings.Trim(unsafePathChars.ReplaceAllString(item, "-"), "-")
	path := fmt.Sprintf("%s/%s/%s/%04d-%s.%s", r.src.ID, r.req.Stage, r.req.RunID, r.snapshot, slug, ext)
	uri, err := r.o.archive.PutObject(r.work, path, contentType, res.Body)
	if err != nil {
		r.logger.Warn("archive snapshot failed", zap.String("item", item), zap.String("path", path), zap.Error(err))
		return
	}
	r.logger.Info("snapshot archived", zap.String("item", item), zap.String("uri", uri))
}
