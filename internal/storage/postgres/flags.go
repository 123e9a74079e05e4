package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

const (
	setMediaListedSQL = `UPDATE creators
	SET media_listed = TRUE, media_listed_at = $2, updated_at = now()
	WHERE id = $1`

	setDetailsEnrichedSQL = `UPDATE creators
	SET details_enriched = TRUE, details_enriched_at = $2, updated_at = now()
	WHERE id = $1`

	resetFlagsSQL = `UPDATE creators
	SET media_listed = FALSE, media_listed_at = NULL,
	    details_enriched = FALSE, details_enriched_at = NULL,
	    updated_at = now()
	WHERE source_id = $1 AND (media_listed OR details_enriched)`

	repairMediaCountSQL = `UPDATE creators c
	SET media_count = (SELECT COUNT(*) FROM media_items m WHERE m.creator_id = c.id)
	WHERE c.source_id = $1`

	repairMediaListedSQL = `UPDATE creators c
	SET media_listed = TRUE, media_listed_at = $2, updated_at = now()
	WHERE c.source_id = $1
	  AND EXISTS (SELECT 1 FROM media_items m WHERE m.creator_id = c.id)`

	repairDetailsEnrichedSQL = `UPDATE creators c
	SET details_enriched = TRUE, details_enriched_at = $2, updated_at = now()
	WHERE c.source_id = $1
	  AND EXISTS (SELECT 1 FROM media_items m WHERE m.creator_id = c.id)
	  AND NOT EXISTS (
	    SELECT 1 FROM media_items m
	    WHERE m.creator_id = c.id AND (m.playable_url IS NULL OR m.poster_url IS NULL)
	  )`
)

// SetStageFlag marks stage complete for the creator. Discovery carries no flag.
func (s *Store) SetStageFlag(ctx context.Context, creatorID int64, stage ingest.Stage, at time.Time) error {
	var sql string
	switch stage {
	case ingest.StageListing:
		sql = setMediaListedSQL
	case ingest.StageEnrichment:
		sql = setDetailsEnrichedSQL
	default:
		return fmt.Errorf("stage %q has no completion flag", stage)
	}
	tag, err := s.pool.Exec(ctx, sql, creatorID, at.UTC())
	if err != nil {
		return failure("set stage flag", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: creator %d", ingest.ErrNotFound, creatorID)
	}
	return nil
}

// RecomputeStageFlags rebuilds every creator flag of the source from the stored media in one
// transaction.
func (s *Store) RecomputeStageFlags(ctx context.Context, sourceID string, at time.Time) (ingest.FlagRepair, error) {
	var repair ingest.FlagRepair
	at = at.UTC()
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, resetFlagsSQL, sourceID)
		if err != nil {
			return failure("reset flags", err)
		}
		repair.Reset = tag.RowsAffected()

		if _, err := tx.Exec(ctx, repairMediaCountSQL, sourceID); err != nil {
			return failure("repair media count", err)
		}

		tag, err = tx.Exec(ctx, repairMediaListedSQL, sourceID, at)
		if err != nil {
			return failure("repair media_listed", err)
		}
		repair.MediaListed = tag.RowsAffected()

		tag, err = tx.Exec(ctx, repairDetailsEnrichedSQL, sourceID, at)
		if err != nil {
			return failure("repair details_enriched", err)
		}
		repair.DetailsEnriched = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return ingest.FlagRepair{}, err
	}
	return repair, nil
}
