package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/stage"
)

// list walks the source's creators by ascending id and collects each one's media.
func (r *run) list(ctx context.Context) {
	var creators []ingest.Creator
	if r.req.TargetID > 0 {
		c, err := r.targetCreator(r.req.TargetID)
		if err != nil {
			r.itemFailed(fmt.Sprintf("creator %d", r.req.TargetID), "", err)
			return
		}
		creators = []ingest.Creator{c}
	} else {
		var err error
		creators, err = r.o.store.ListCreators(r.work, r.src.ID)
		if err != nil {
			r.abort(fmt.Errorf("list creators: %w", err))
			return
		}
	}

	for _, c := range creators {
		if !r.next(ctx) {
			return
		}
		item := fmt.Sprintf("creator %d", c.ID)
		if r.req.TargetID == 0 && !stage.IsStagePending(c, ingest.StageListing, r.req.Force) {
			r.itemSkipped(item, "media already listed")
			continue
		}
		r.listCreator(ctx, item, c)
	}
}

func (r *run) targetCreator(id int64) (ingest.Creator, error) {
	c, err := r.o.store.GetCreator(r.work, id)
	if err != nil {
		return ingest.Creator{}, err
	}
	if c.SourceID != r.src.ID {
		return ingest.Creator{}, fmt.Errorf("%w: creator %d belongs to source %s", ingest.ErrNotFound, id, c.SourceID)
	}
	return c, nil
}

// listCreator pages through one creator's media. The listed flag is set only when every page
// succeeded and the listing reached its end before the page cap.
func (r *run) listCreator(ctx context.Context, item string, c ingest.Creator) {
	var stats ingest.CreatorStats
	found, saved, duplicates := 0, 0, 0
	capped := false
	paceCtx := ctx
	for page := 1; ; page++ {
		if r.o.cfg.MaxPages > 0 && page > r.o.cfg.MaxPages {
			capped = true
			break
		}
		url, err := r.src.ListingURL(c, page)
		if err != nil {
			r.itemFailed(item, "", err)
			return
		}
		res, err := r.fetch(paceCtx, url)
		paceCtx = r.work
		if err != nil {
			r.itemFailed(item, url, fmt.Errorf("page %d: %w", page, err))
			return
		}
		ex, err := r.extract(fmt.Sprintf("%s page %d", item, page), res)
		if err != nil {
			r.itemFailed(item, url, fmt.Errorf("page %d: %w", page, err))
			return
		}
		mergeStats(&stats, ex.Stats)
		if len(ex.Media) == 0 {
			break
		}
		found += len(ex.Media)
		for _, m := range ex.Media {
			_, isNew, err := r.o.store.UpsertMedia(r.work, c.ID, m)
			if err != nil {
				r.countSaved(saved, duplicates)
				r.itemFailed(item, url, fmt.Errorf("save media: %w", err))
				return
			}
			if isNew {
				saved++
			} else {
				duplicates++
			}
		}
		if !r.stageCfg.Paginated() || r.shortPage(ex) {
			break
		}
	}
	r.countSaved(saved, duplicates)

	if err := r.o.store.UpdateCreatorStats(r.work, c.ID, stats); err != nil {
		r.itemFailed(item, "", fmt.Errorf("update stats: %w", err))
		return
	}
	total, err := r.o.store.RecomputeMediaCount(r.work, c.ID)
	if err != nil {
		r.itemFailed(item, "", fmt.Errorf("recompute media count: %w", err))
		return
	}
	if capped {
		r.logger.Warn("page cap reached before end of media listing; creator left unlisted",
			zap.Int64("creator_id", c.ID), zap.Int("max_pages", r.o.cfg.MaxPages))
		r.itemDone(item, c.ProfileURL, fmt.Sprintf("%s (%s): %d media found, %d new, %d duplicates, %d total, page cap reached",
			item, c.DisplayName, found, saved, duplicates, total))
		return
	}
	if err := r.o.tracker.MarkStageComplete(r.work, c.ID, ingest.StageListing); err != nil {
		r.itemFailed(item, "", err)
		return
	}
	r.itemDone(item, c.ProfileURL, fmt.Sprintf("%s (%s): %d media found, %d new, %d duplicates, %d total",
		item, c.DisplayName, found, saved, duplicates, total))
}

// mergeStats keeps the first value seen for each counter across pages.
func mergeStats(dst *ingest.CreatorStats, src ingest.CreatorStats) {
	if dst.Followers == nil {
		dst.Followers = src.Followers
	}
	if dst.Likes == nil {
		dst.Likes = src.Likes
	}
	if dst.Views == nil {
		dst.Views = src.Views
	}
	if dst.Posts == nil {
		dst.Posts = src.Posts
	}
}
