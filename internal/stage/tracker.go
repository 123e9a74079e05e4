// Package stage records which pipeline stages each creator has completed.
package stage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/logging"
)

// Tracker moves creators through the stage flags. Flags only move forward here; clearing them
// is the job of RepairFlags.
type Tracker struct {
	store  ingest.StageFlagStore
	clock  ingest.Clock
	logger *zap.Logger
}

// New builds a Tracker.
func New(store ingest.StageFlagStore, clock ingest.Clock, logger *zap.Logger) *Tracker {
	return &Tracker{store: store, clock: clock, logger: logging.OrNop(logger).Named("stage")}
}

// MarkStageComplete records that stage finished for the creator.
func (t *Tracker) MarkStageComplete(ctx context.Context, creatorID int64, stage ingest.Stage) error {
	if stage == ingest.StageDiscovery {
		return nil
	}
	if err := t.store.SetStageFlag(ctx, creatorID, stage, t.clock.Now()); err != nil {
		return fmt.Errorf("mark %s complete for creator %d: %w", stage, creatorID, err)
	}
	return nil
}

// IsStagePending reports whether the creator still needs stage. Discovery is never skipped.
func IsStagePending(c ingest.Creator, stage ingest.Stage, force bool) bool {
	if force {
		return true
	}
	switch stage {
	case ingest.StageListing:
		return !c.MediaListed
	case ingest.StageEnrichment:
		return !c.DetailsEnriched
	default:
		return true
	}
}

// RepairFlags clears every flag of the source and re-derives them from the stored media.
func (t *Tracker) RepairFlags(ctx context.Context, sourceID string) (ingest.FlagRepair, error) {
	repair, err := t.store.RecomputeStageFlags(ctx, sourceID, t.clock.Now())
	if err != nil {
		return ingest.FlagRepair{}, fmt.Errorf("repair flags for %s: %w", sourceID, err)
	}
	t.logger.Info("stage flags repaired",
		zap.String("source", sourceID),
		zap.Int64("reset", repair.Reset),
		zap.Int64("media_listed", repair.MediaListed),
		zap.Int64("details_enriched", repair.DetailsEnriched),
	)
	return repair, nil
}
