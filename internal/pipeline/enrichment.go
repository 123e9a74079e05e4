package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/metrics"
)

// enrich visits media missing playable or poster URLs by ascending id and fills them from the
// detail page. Creators whose media are all complete afterwards get the enriched flag.
func (r *run) enrich(ctx context.Context) {
	var items []ingest.MediaItem
	if r.req.TargetID > 0 {
		m, err := r.targetMedia(r.req.TargetID)
		if err != nil {
			r.itemFailed(fmt.Sprintf("media %d", r.req.TargetID), "", err)
			return
		}
		items = []ingest.MediaItem{m}
	} else {
		var err error
		items, err = r.o.store.ListMediaForEnrichment(r.work, r.src.ID, r.req.Force)
		if err != nil {
			r.abort(fmt.Errorf("list media for enrichment: %w", err))
			return
		}
	}

	var touched []int64
	seen := make(map[int64]bool)
	for _, m := range items {
		if !r.next(ctx) {
			break
		}
		if r.enrichItem(ctx, m) && !seen[m.CreatorID] {
			seen[m.CreatorID] = true
			touched = append(touched, m.CreatorID)
		}
	}
	r.completeCreators(touched)
}

func (r *run) targetMedia(id int64) (ingest.MediaItem, error) {
	m, err := r.o.store.GetMedia(r.work, id)
	if err != nil {
		return ingest.MediaItem{}, err
	}
	c, err := r.o.store.GetCreator(r.work, m.CreatorID)
	if err != nil {
		return ingest.MediaItem{}, err
	}
	if c.SourceID != r.src.ID {
		return ingest.MediaItem{}, fmt.Errorf("%w: media %d belongs to source %s", ingest.ErrNotFound, id, c.SourceID)
	}
	return m, nil
}

func (r *run) enrichItem(ctx context.Context, m ingest.MediaItem) bool {
	item := fmt.Sprintf("media %d", m.ID)
	url, err := r.src.DetailURL(m)
	if err != nil {
		r.itemFailed(item, "", err)
		return false
	}
	res, err := r.fetch(ctx, url)
	if err != nil {
		r.itemFailed(item, url, err)
		return false
	}
	ex, err := r.extract(item+" "+m.Key(), res)
	if err != nil {
		r.itemFailed(item, url, err)
		return false
	}
	if ex.Detail == nil || ex.Detail.IsZero() {
		r.itemFailed(item, url, fmt.Errorf("%w: no media sources on detail page", ingest.ErrContentNotReady))
		return false
	}
	if err := r.o.store.EnrichMedia(r.work, m.ID, *ex.Detail, r.o.clock.Now()); err != nil {
		r.itemFailed(item, url, fmt.Errorf("save detail: %w", err))
		return false
	}
	r.report.RecordsSaved++
	metrics.ObserveSaved("media_detail", 1)

	msg := fmt.Sprintf("%s: enriched", item)
	if ex.Detail.Heuristic {
		msg += ", playable url guessed from thumbnail name"
	}
	r.itemDone(item, url, msg)
	return true
}

// completeCreators sets details_enriched on creators left without incomplete media.
func (r *run) completeCreators(creatorIDs []int64) {
	for _, id := range creatorIDs {
		remaining, err := r.o.store.CountIncompleteMedia(r.work, id)
		if err != nil {
			r.logger.Warn("count incomplete media failed", zap.Int64("creator_id", id), zap.Error(err))
			continue
		}
		if remaining > 0 {
			r.logger.Debug("creator still has incomplete media", zap.Int64("creator_id", id), zap.Int64("remaining", remaining))
			continue
		}
		if err := r.o.tracker.MarkStageComplete(r.work, id, ingest.StageEnrichment); err != nil {
			r.logger.Warn("mark enrichment complete failed", zap.Int64("creator_id", id), zap.Error(err))
		}
	}
}
