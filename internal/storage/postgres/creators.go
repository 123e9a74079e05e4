package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

const creatorColumns = `id, source_id, external_key, COALESCE(external_id, ''), COALESCE(profile_url, ''),
	display_name, COALESCE(avatar_url, ''), COALESCE(cover_url, ''),
	follower_count, like_count, view_count, post_count, media_count,
	media_listed, media_listed_at, details_enriched, details_enriched_at,
	created_at, updated_at`

const (
	lookupCreatorSQL = `SELECT id FROM creators WHERE external_key = $1`

	insertCreatorSQL = `INSERT INTO creators (
		source_id, external_key, external_id, profile_url, display_name, avatar_url, cover_url,
		follower_count, like_count, view_count, post_count
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		COALESCE($8::bigint, 0), COALESCE($9::bigint, 0), COALESCE($10::bigint, 0), COALESCE($11::bigint, 0)
	) RETURNING id`

	getCreatorSQL = `SELECT ` + creatorColumns + ` FROM creators WHERE id = $1`

	listCreatorsSQL = `SELECT ` + creatorColumns + ` FROM creators WHERE source_id = $1 ORDER BY id`

	updateCreatorStatsSQL = `UPDATE creators SET
		follower_count = COALESCE($2::bigint, follower_count),
		like_count = COALESCE($3::bigint, like_count),
		view_count = COALESCE($4::bigint, view_count),
		post_count = COALESCE($5::bigint, post_count),
		updated_at = now()
	WHERE id = $1`

	recomputeMediaCountSQL = `UPDATE creators SET
		media_count = (SELECT COUNT(*) FROM media_items WHERE creator_id = $1),
		updated_at = now()
	WHERE id = $1
	RETURNING media_count`
)

// UpsertCreator returns the id for the candidate's natural key, inserting a row when none
// exists. Existing rows are never modified here.
func (s *Store) UpsertCreator(ctx context.Context, sourceID string, c ingest.CreatorCandidate) (int64, bool, error) {
	if !c.HasIdentity() {
		return 0, false, fmt.Errorf("%w: creator has no natural key", ingest.ErrExtractionIncomplete)
	}
	key := c.NaturalKey(sourceID)
	if id, ok, err := s.lookupID(ctx, lookupCreatorSQL, key); err != nil || ok {
		return id, false, err
	}

	var id int64
	err := s.pool.QueryRow(ctx, insertCreatorSQL,
		sourceID, key, nullable(c.ExternalID), nullable(c.ProfileURL), c.DisplayName,
		nullable(c.AvatarURL), nullable(c.CoverURL),
		c.Stats.Followers, c.Stats.Likes, c.Stats.Views, c.Stats.Posts,
	).Scan(&id)
	switch {
	case err == nil:
		return id, true, nil
	case isUniqueViolation(err):
		// Lost an insert race; the winner's row is the answer.
		id, ok, lookupErr := s.lookupID(ctx, lookupCreatorSQL, key)
		if lookupErr != nil {
			return 0, false, lookupErr
		}
		if !ok {
			return 0, false, fmt.Errorf("%w: creator %s: %w", ingest.ErrPersistenceConflict, key, err)
		}
		return id, false, nil
	default:
		return 0, false, failure("insert creator", err)
	}
}

// GetCreator loads one creator by id.
func (s *Store) GetCreator(ctx context.Context, id int64) (ingest.Creator, error) {
	c, err := scanCreator(s.pool.QueryRow(ctx, getCreatorSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.Creator{}, fmt.Errorf("%w: creator %d", ingest.ErrNotFound, id)
	}
	if err != nil {
		return ingest.Creator{}, failure("get creator", err)
	}
	return c, nil
}

// ListCreators returns the source's creators in id order.
func (s *Store) ListCreators(ctx context.Context, sourceID string) ([]ingest.Creator, error) {
	rows, err := s.pool.Query(ctx, listCreatorsSQL, sourceID)
	if err != nil {
		return nil, failure("list creators", err)
	}
	defer rows.Close()

	var out []ingest.Creator
	for rows.Next() {
		c, err := scanCreator(rows)
		if err != nil {
			return nil, failure("scan creator", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, failure("list creators", err)
	}
	return out, nil
}

// UpdateCreatorStats overwrites the counters present in stats and leaves the rest alone.
func (s *Store) UpdateCreatorStats(ctx context.Context, id int64, stats ingest.CreatorStats) error {
	if stats.IsZero() {
		return nil
	}
	tag, err := s.pool.Exec(ctx, updateCreatorStatsSQL, id, stats.Followers, stats.Likes, stats.Views, stats.Posts)
	if err != nil {
		return failure("update creator stats", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: creator %d", ingest.ErrNotFound, id)
	}
	return nil
}

// RecomputeMediaCount sets media_count from the stored media rows and returns it.
func (s *Store) RecomputeMediaCount(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, recomputeMediaCountSQL, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: creator %d", ingest.ErrNotFound, id)
	}
	if err != nil {
		return 0, failure("recompute media count", err)
	}
	return count, nil
}

func (s *Store) lookupID(ctx context.Context, sql string, args ...any) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, sql, args...).Scan(&id)
	switch {
	case err == nil:
		return id, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, false, nil
	default:
		return 0, false, failure("lookup", err)
	}
}

func scanCreator(row pgx.Row) (ingest.Creator, error) {
	var (
		c          ingest.Creator
		listedAt   *time.Time
		enrichedAt *time.Time
	)
	err := row.Scan(
		&c.ID, &c.SourceID, &c.ExternalKey, &c.ExternalID, &c.ProfileURL,
		&c.DisplayName, &c.AvatarURL, &c.CoverURL,
		&c.FollowerCount, &c.LikeCount, &c.ViewCount, &c.PostCount, &c.MediaCount,
		&c.MediaListed, &listedAt, &c.DetailsEnriched, &enrichedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return ingest.Creator{}, err
	}
	c.MediaListedAt = listedAt
	c.DetailsEnrichedAt = enrichedAt
	return c, nil
}
