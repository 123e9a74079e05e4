package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/metrics"
)

// discover walks directory pages in ascending order. Discovery has no stage flag, so every
// page is fetched on every run and known creators count as duplicates.
func (r *run) discover(ctx context.Context) {
	if r.req.TargetID > 0 {
		if r.next(ctx) {
			r.discoverPage(ctx, int(r.req.TargetID))
		}
		return
	}

	start := max(r.req.PageStart, 1)
	openEnded := r.req.PageEnd == 0
	consecutive := 0
	for page := start; openEnded || page <= r.req.PageEnd; page++ {
		if r.o.cfg.MaxPages > 0 && page-start >= r.o.cfg.MaxPages {
			r.logger.Info("page cap reached", zap.Int("max_pages", r.o.cfg.MaxPages))
			return
		}
		if !r.next(ctx) {
			return
		}
		more, err := r.discoverPage(ctx, page)
		if err != nil {
			consecutive++
			if openEnded && consecutive >= r.o.cfg.MaxConsecutiveErrors {
				r.logger.Warn("stopping discovery after consecutive page failures", zap.Int("failures", consecutive))
				return
			}
			continue
		}
		consecutive = 0
		if !more || !r.stageCfg.Paginated() {
			return
		}
	}
}

// discoverPage processes one directory page. more is false once the page signals the end of
// the directory: no records, or a JSON page shorter than the requested size.
func (r *run) discoverPage(ctx context.Context, page int) (more bool, err error) {
	item := fmt.Sprintf("page %d", page)
	url, err := r.src.DiscoveryURL(page)
	if err != nil {
		r.itemFailed(item, "", err)
		return false, err
	}
	res, err := r.fetch(ctx, url)
	if err != nil {
		r.itemFailed(item, url, err)
		return false, err
	}
	ex, err := r.extract(item, res)
	if err != nil {
		r.itemFailed(item, url, err)
		return true, err
	}
	if len(ex.Creators) == 0 {
		r.itemDone(item, url, fmt.Sprintf("%s: no creators, end of directory", item))
		return false, nil
	}

	saved, duplicates := 0, 0
	for _, c := range ex.Creators {
		_, isNew, err := r.o.store.UpsertCreator(r.work, r.src.ID, c)
		if err != nil {
			r.countSaved(saved, duplicates)
			r.itemFailed(item, url, fmt.Errorf("save creator %q: %w", c.DisplayName, err))
			return true, err
		}
		if isNew {
			saved++
		} else {
			duplicates++
		}
	}
	r.countSaved(saved, duplicates)
	r.itemDone(item, url, fmt.Sprintf("%s: %d creators found, %d new, %d duplicates",
		item, len(ex.Creators), saved, duplicates))
	return !r.shortPage(ex), nil
}

// shortPage reports whether a JSON page returned fewer entries than requested.
func (r *run) shortPage(ex ingest.Extraction) bool {
	return r.stageCfg.Strategy == ingest.StrategyJSONAPI && r.src.PageLimit > 0 && ex.Seen < r.src.PageLimit
}

func (r *run) countSaved(saved, duplicates int) {
	r.report.RecordsSaved += saved
	r.report.Duplicates += duplicates
	entity := "creator"
	if r.req.Stage == ingest.StageListing {
		entity = "media"
	}
	metrics.ObserveSaved(entity, saved)
}
