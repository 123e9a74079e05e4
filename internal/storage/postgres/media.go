package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

const mediaColumns = `m.id, m.creator_id, COALESCE(m.post_id, ''), COALESCE(m.media_id, ''),
	COALESCE(m.canonical_url, ''), COALESCE(m.title, ''), COALESCE(m.description, ''),
	COALESCE(m.listing_url, ''), COALESCE(m.thumbnail_url, ''), COALESCE(m.poster_url, ''),
	COALESCE(m.playable_url, ''), COALESCE(m.sd_url, ''),
	COALESCE(m.width, 0), COALESCE(m.height, 0), COALESCE(m.duration_seconds, 0),
	COALESCE(m.view_count, 0), COALESCE(m.like_count, 0),
	m.published_at, m.enriched_at, m.created_at, m.updated_at`

const (
	// Media keys are scoped to the owning creator's source.
	lookupMediaSQL = `SELECT m.id FROM media_items m
	JOIN creators c ON c.source_id = m.source_id
	WHERE c.id = $1
	  AND ((m.post_id = $2 AND m.media_id = $3) OR m.canonical_url = $4)
	ORDER BY m.id LIMIT 1`

	insertMediaSQL = `INSERT INTO media_items (
		creator_id, source_id, post_id, media_id, canonical_url, title, description, listing_url,
		thumbnail_url, poster_url, playable_url, sd_url, width, height, duration_seconds,
		view_count, like_count, published_at
	)
	SELECT c.id, c.source_id, $2::text, $3::text, $4::text, $5::text, $6::text, $7::text,
		$8::text, $9::text, $10::text, $11::text, $12::integer, $13::integer, $14::integer,
		$15::bigint, $16::bigint, $17::timestamptz
	FROM creators c WHERE c.id = $1
	RETURNING id`

	getMediaSQL = `SELECT ` + mediaColumns + ` FROM media_items m WHERE m.id = $1`

	listMediaForEnrichmentSQL = `SELECT ` + mediaColumns + `
	FROM media_items m
	JOIN creators c ON c.id = m.creator_id
	WHERE c.source_id = $1
	  AND ($2::boolean OR m.playable_url IS NULL OR m.poster_url IS NULL)
	ORDER BY m.id`

	enrichMediaSQL = `UPDATE media_items SET
		poster_url = COALESCE($2, poster_url),
		playable_url = COALESCE($3, playable_url),
		sd_url = COALESCE($4, sd_url),
		title = COALESCE(title, $5),
		description = COALESCE(description, $6),
		width = COALESCE($7::integer, width),
		height = COALESCE($8::integer, height),
		duration_seconds = COALESCE($9::integer, duration_seconds),
		view_count = COALESCE($10::bigint, view_count),
		like_count = COALESCE($11::bigint, like_count),
		published_at = COALESCE(published_at, $12),
		enriched_at = $13,
		updated_at = now()
	WHERE id = $1`

	countIncompleteMediaSQL = `SELECT COUNT(*) FROM media_items
	WHERE creator_id = $1 AND (playable_url IS NULL OR poster_url IS NULL)`
)

// UpsertMedia returns the id for the candidate's natural key within the source of creatorID,
// inserting a row when none exists. A match on either (post_id, media_id) or canonical_url
// counts. The creator must exist.
func (s *Store) UpsertMedia(ctx context.Context, creatorID int64, m ingest.MediaCandidate) (int64, bool, error) {
	if !m.HasIdentity() {
		return 0, false, fmt.Errorf("%w: media has no natural key", ingest.ErrExtractionIncomplete)
	}
	postID, mediaID := m.PostID, m.MediaID
	if postID == "" || mediaID == "" {
		postID, mediaID = "", ""
	}
	keyArgs := []any{creatorID, nullable(postID), nullable(mediaID), nullable(m.CanonicalURL)}
	if id, ok, err := s.lookupID(ctx, lookupMediaSQL, keyArgs...); err != nil || ok {
		return id, false, err
	}

	var id int64
	err := s.pool.QueryRow(ctx, insertMediaSQL,
		creatorID, keyArgs[1], keyArgs[2], keyArgs[3],
		nullable(m.Title), nullable(m.Description), nullable(m.ListingURL),
		nullable(m.ThumbnailURL), nullable(m.PosterURL), nullable(m.PlayableURL), nullable(m.SDURL),
		nullableInt(m.Width), nullableInt(m.Height), nullableInt(m.DurationSeconds),
		m.ViewCount, m.LikeCount, m.PublishedAt,
	).Scan(&id)
	switch {
	case err == nil:
		return id, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, false, fmt.Errorf("%w: creator %d", ingest.ErrPersistenceFailure, creatorID)
	case isUniqueViolation(err):
		id, ok, lookupErr := s.lookupID(ctx, lookupMediaSQL, keyArgs...)
		if lookupErr != nil {
			return 0, false, lookupErr
		}
		if !ok {
			return 0, false, fmt.Errorf("%w: media for creator %d: %w", ingest.ErrPersistenceConflict, creatorID, err)
		}
		return id, false, nil
	default:
		return 0, false, failure("insert media", err)
	}
}

// GetMedia loads one media item by id.
func (s *Store) GetMedia(ctx context.Context, id int64) (ingest.MediaItem, error) {
	m, err := scanMedia(s.pool.QueryRow(ctx, getMediaSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.MediaItem{}, fmt.Errorf("%w: media %d", ingest.ErrNotFound, id)
	}
	if err != nil {
		return ingest.MediaItem{}, failure("get media", err)
	}
	return m, nil
}

// ListMediaForEnrichment returns the source's media in id order. Unless includeComplete is
// set only items missing a playable or poster URL are returned.
func (s *Store) ListMediaForEnrichment(ctx context.Context, sourceID string, includeComplete bool) ([]ingest.MediaItem, error) {
	rows, err := s.pool.Query(ctx, listMediaForEnrichmentSQL, sourceID, includeComplete)
	if err != nil {
		return nil, failure("list media", err)
	}
	defer rows.Close()

	var out []ingest.MediaItem
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, failure("scan media", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, failure("list media", err)
	}
	return out, nil
}

// EnrichMedia writes the URLs and metadata found on a detail page. Values the page did not
// carry keep their stored value, and listing titles win over detail titles.
func (s *Store) EnrichMedia(ctx context.Context, id int64, d ingest.MediaDetail, at time.Time) error {
	tag, err := s.pool.Exec(ctx, enrichMediaSQL, id,
		nullable(d.PosterURL), nullable(d.PlayableURL), nullable(d.SDURL),
		nullable(d.Title), nullable(d.Description),
		nullableInt(d.Width), nullableInt(d.Height), nullableInt(d.DurationSeconds),
		d.ViewCount, d.LikeCount, d.PublishedAt, at,
	)
	if err != nil {
		return failure("enrich media", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: media %d", ingest.ErrNotFound, id)
	}
	return nil
}

// CountIncompleteMedia counts the creator's media still missing a playable or poster URL.
func (s *Store) CountIncompleteMedia(ctx context.Context, creatorID int64) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, countIncompleteMediaSQL, creatorID).Scan(&n); err != nil {
		return 0, failure("count incomplete media", err)
	}
	return n, nil
}

func scanMedia(row pgx.Row) (ingest.MediaItem, error) {
	var m ingest.MediaItem
	var publishedAt, enrichedAt *time.Time
	err := row.Scan(
		&m.ID, &m.CreatorID, &m.PostID, &m.MediaID,
		&m.CanonicalURL, &m.Title, &m.Description,
		&m.ListingURL, &m.ThumbnailURL, &m.PosterURL,
		&m.PlayableURL, &m.SDURL,
		&m.Width, &m.Height, &m.DurationSeconds,
		&m.ViewCount, &m.LikeCount,
		&publishedAt, &enrichedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return ingest.MediaItem{}, err
	}
	m.PublishedAt = publishedAt
	m.EnrichedAt = enrichedAt
	return m, nil
}
