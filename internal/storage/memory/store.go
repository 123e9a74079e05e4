package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// Store is an in-memory ingest.Store used by tests and dry runs. It enforces the same
// natural-key rules as the Postgres store.
type Store struct {
	mu            sync.RWMutex
	clock         ingest.Clock
	nextCreatorID int64
	nextMediaID   int64
	creators      map[int64]ingest.Creator
	creatorKeys   map[string]int64
	media         map[int64]ingest.MediaItem
	mediaPairs    map[string]int64
	mediaURLs     map[string]int64
}

// NewStore constructs an empty Store. A nil clock falls back to time.Now.
func NewStore(clock ingest.Clock) *Store {
	return &Store{
		clock:       clock,
		creators:    make(map[int64]ingest.Creator),
		creatorKeys: make(map[string]int64),
		media:       make(map[int64]ingest.MediaItem),
		mediaPairs:  make(map[string]int64),
		mediaURLs:   make(map[string]int64),
	}
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

// Close is a no-op.
func (s *Store) Close() {}

// UpsertCreator returns the id for the candidate's natural key, inserting when absent.
func (s *Store) UpsertCreator(_ context.Context, sourceID string, c ingest.CreatorCandidate) (int64, bool, error) {
	if !c.HasIdentity() {
		return 0, false, fmt.Errorf("%w: creator has no natural key", ingest.ErrExtractionIncomplete)
	}
	key := c.NaturalKey(sourceID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.creatorKeys[key]; ok {
		return id, false, nil
	}
	s.nextCreatorID++
	now := s.now()
	creator := ingest.Creator{
		ID:          s.nextCreatorID,
		SourceID:    sourceID,
		ExternalKey: key,
		ExternalID:  c.ExternalID,
		ProfileURL:  c.ProfileURL,
		DisplayName: c.DisplayName,
		AvatarURL:   c.AvatarURL,
		CoverURL:    c.CoverURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applyStats(&creator, c.Stats)
	s.creators[creator.ID] = creator
	s.creatorKeys[key] = creator.ID
	return creator.ID, true, nil
}

// GetCreator loads one creator.
func (s *Store) GetCreator(_ context.Context, id int64) (ingest.Creator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creators[id]
	if !ok {
		return ingest.Creator{}, fmt.Errorf("%w: creator %d", ingest.ErrNotFound, id)
	}
	return c, nil
}

// ListCreators returns the source's creators in id order.
func (s *Store) ListCreators(_ context.Context, sourceID string) ([]ingest.Creator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ingest.Creator
	for _, c := range s.creators {
		if c.SourceID == sourceID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b ingest.Creator) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

// UpdateCreatorStats overwrites the counters present in stats.
func (s *Store) UpdateCreatorStats(_ context.Context, id int64, stats ingest.CreatorStats) error {
	if stats.IsZero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creators[id]
	if !ok {
		return fmt.Errorf("%w: creator %d", ingest.ErrNotFound, id)
	}
	applyStats(&c, stats)
	c.UpdatedAt = s.now()
	s.creators[id] = c
	return nil
}

// RecomputeMediaCount sets media_count from the stored media.
func (s *Store) RecomputeMediaCount(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creators[id]
	if !ok {
		return 0, fmt.Errorf("%w: creator %d", ingest.ErrNotFound, id)
	}
	c.MediaCount = s.countMediaLocked(id, false)
	c.UpdatedAt = s.now()
	s.creators[id] = c
	return c.MediaCount, nil
}

// UpsertMedia returns the id for the candidate's natural key, inserting when absent.
func (s *Store) UpsertMedia(_ context.Context, creatorID int64, m ingest.MediaCandidate) (int64, bool, error) {
	if !m.HasIdentity() {
		return 0, false, fmt.Errorf("%w: media has no natural key", ingest.ErrExtractionIncomplete)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.creators[creatorID]
	if !ok {
		return 0, false, fmt.Errorf("%w: creator %d", ingest.ErrPersistenceFailure, creatorID)
	}
	// Keys are scoped to the owning creator's source.
	pair, urlKey := "", ""
	if m.PostID != "" && m.MediaID != "" {
		pair = owner.SourceID + "\x00" + m.PostID + "\x00" + m.MediaID
	}
	if m.CanonicalURL != "" {
		urlKey = owner.SourceID + "\x00" + m.CanonicalURL
	}
	if id, ok := s.mediaPairs[pair]; ok && pair != "" {
		return id, false, nil
	}
	if id, ok := s.mediaURLs[urlKey]; ok && urlKey != "" {
		return id, false, nil
	}

	s.nextMediaID++
	now := s.now()
	item := ingest.MediaItem{
		ID:              s.nextMediaID,
		CreatorID:       creatorID,
		CanonicalURL:    m.CanonicalURL,
		Title:           m.Title,
		Description:     m.Description,
		ListingURL:      m.ListingURL,
		ThumbnailURL:    m.ThumbnailURL,
		PosterURL:       m.PosterURL,
		PlayableURL:     m.PlayableURL,
		SDURL:           m.SDURL,
		Width:           m.Width,
		Height:          m.Height,
		DurationSeconds: m.DurationSeconds,
		PublishedAt:     m.PublishedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if pair != "" {
		item.PostID, item.MediaID = m.PostID, m.MediaID
		s.mediaPairs[pair] = item.ID
	}
	if m.ViewCount != nil {
		item.ViewCount = *m.ViewCount
	}
	if m.LikeCount != nil {
		item.LikeCount = *m.LikeCount
	}
	if urlKey != "" {
		s.mediaURLs[urlKey] = item.ID
	}
	s.media[item.ID] = item
	return item.ID, true, nil
}

// GetMedia loads one media item.
func (s *Store) GetMedia(_ context.Context, id int64) (ingest.MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.media[id]
	if !ok {
		return ingest.MediaItem{}, fmt.Errorf("%w: media %d", ingest.ErrNotFound, id)
	}
	return m, nil
}

// ListMediaForEnrichment returns the source's media in id order, only incomplete items
// unless includeComplete is set.
func (s *Store) ListMediaForEnrichment(_ context.Context, sourceID string, includeComplete bool) ([]ingest.MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ingest.MediaItem
	for _, m := range s.media {
		if s.creators[m.CreatorID].SourceID != sourceID {
			continue
		}
		if includeComplete || m.Incomplete() {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b ingest.MediaItem) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

// EnrichMedia applies the detail fields present in d.
func (s *Store) EnrichMedia(_ context.Context, id int64, d ingest.MediaDetail, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[id]
	if !ok {
		return fmt.Errorf("%w: media %d", ingest.ErrNotFound, id)
	}
	setString(&m.PosterURL, d.PosterURL)
	setString(&m.PlayableURL, d.PlayableURL)
	setString(&m.SDURL, d.SDURL)
	if m.Title == "" {
		m.Title = d.Title
	}
	if m.Description == "" {
		m.Description = d.Description
	}
	setInt(&m.Width, d.Width)
	setInt(&m.Height, d.Height)
	setInt(&m.DurationSeconds, d.DurationSeconds)
	if d.ViewCount != nil {
		m.ViewCount = *d.ViewCount
	}
	if d.LikeCount != nil {
		m.LikeCount = *d.LikeCount
	}
	if m.PublishedAt == nil {
		m.PublishedAt = d.PublishedAt
	}
	enrichedAt := at.UTC()
	m.EnrichedAt = &enrichedAt
	m.UpdatedAt = s.now()
	s.media[id] = m
	return nil
}

// CountIncompleteMedia counts the creator's media missing a playable or poster URL.
func (s *Store) CountIncompleteMedia(_ context.Context, creatorID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countMediaLocked(creatorID, true), nil
}

// SetStageFlag marks stage complete for the creator.
func (s *Store) SetStageFlag(_ context.Context, creatorID int64, stage ingest.Stage, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creators[creatorID]
	if !ok {
		return fmt.Errorf("%w: creator %d", ingest.ErrNotFound, creatorID)
	}
	ts := at.UTC()
	switch stage {
	case ingest.StageListing:
		c.MediaListed, c.MediaListedAt = true, &ts
	case ingest.StageEnrichment:
		c.DetailsEnriched, c.DetailsEnrichedAt = true, &ts
	default:
		return fmt.Errorf("stage %q has no completion flag", stage)
	}
	c.UpdatedAt = s.now()
	s.creators[creatorID] = c
	return nil
}

// RecomputeStageFlags rebuilds every creator flag of the source from the stored media.
func (s *Store) RecomputeStageFlags(_ context.Context, sourceID string, at time.Time) (ingest.FlagRepair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var repair ingest.FlagRepair
	ts := at.UTC()
	for id, c := range s.creators {
		if c.SourceID != sourceID {
			continue
		}
		if c.MediaListed || c.DetailsEnriched {
			repair.Reset++
		}
		c.MediaListed, c.MediaListedAt = false, nil
		c.DetailsEnriched, c.DetailsEnrichedAt = false, nil
		c.MediaCount = s.countMediaLocked(id, false)
		if c.MediaCount > 0 {
			c.MediaListed, c.MediaListedAt = true, &ts
			repair.MediaListed++
			if s.countMediaLocked(id, true) == 0 {
				c.DetailsEnriched, c.DetailsEnrichedAt = true, &ts
				repair.DetailsEnriched++
			}
		}
		c.UpdatedAt = s.now()
		s.creators[id] = c
	}
	return repair, nil
}

func (s *Store) countMediaLocked(creatorID int64, incompleteOnly bool) int64 {
	var n int64
	for _, m := range s.media {
		if m.CreatorID != creatorID {
			continue
		}
		if !incompleteOnly || m.Incomplete() {
			n++
		}
	}
	return n
}

func applyStats(c *ingest.Creator, stats ingest.CreatorStats) {
	if stats.Followers != nil {
		c.FollowerCount = *stats.Followers
	}
	if stats.Likes != nil {
		c.LikeCount = *stats.Likes
	}
	if stats.Views != nil {
		c.ViewCount = *stats.Views
	}
	if stats.Posts != nil {
		c.PostCount = *stats.Posts
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
