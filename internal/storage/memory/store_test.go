package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store { return NewStore(fixedClock{t: testNow}) }

func ptr(v int64) *int64 { return &v }

func TestUpsertCreatorIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore()

	first := ingest.CreatorCandidate{ExternalID: "42", DisplayName: "Alice", Stats: ingest.CreatorStats{Followers: ptr(10)}}
	id, isNew, err := store.UpsertCreator(ctx, "demo", first)
	require.NoError(t, err)
	assert.True(t, isNew)

	again := first
	again.DisplayName = "Renamed"
	id2, isNew, err := store.UpsertCreator(ctx, "demo", again)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, id, id2)

	c, err := store.GetCreator(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", c.DisplayName)
	assert.Equal(t, int64(10), c.FollowerCount)
	assert.Equal(t, testNow, c.CreatedAt)
}

func TestUpsertCreatorProfileURLKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore()

	id, _, err := store.UpsertCreator(ctx, "demo", ingest.CreatorCandidate{ProfileURL: "https://example.com/alice", DisplayName: "Alice"})
	require.NoError(t, err)
	id2, isNew, err := store.UpsertCreator(ctx, "demo", ingest.CreatorCandidate{ProfileURL: "https://EXAMPLE.com/alice/", DisplayName: "Alice"})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, id, id2)

	other, isNew, err := store.UpsertCreator(ctx, "other", ingest.CreatorCandidate{ProfileURL: "https://example.com/alice", DisplayName: "Alice"})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEqual(t, id, other)

	_, _, err = store.UpsertCreator(ctx, "demo", ingest.CreatorCandidate{DisplayName: "Nobody"})
	require.ErrorIs(t, err, ingest.ErrExtractionIncomplete)
}

func TestConcurrentUpsertsYieldOneRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore()

	var wg sync.WaitGroup
	ids := make([]int64, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, _, err := store.UpsertCreator(ctx, "demo", ingest.CreatorCandidate{ExternalID: "7", DisplayName: "Bob"})
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	creators, err := store.ListCreators(ctx, "demo")
	require.NoError(t, err)
	assert.Len(t, creators, 1)
}

func seedCreator(t *testing.T, store *Store) int64 {
	t.Helper()
	id, _, err := store.UpsertCreator(context.Background(), "demo", ingest.CreatorCandidate{ExternalID: "1", DisplayName: "Alice"})
	require.NoError(t, err)
	return id
}

func TestUpsertMediaKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore()
	creatorID := seedCreator(t, store)

	id, isNew, err := store.UpsertMedia(ctx, creatorID, ingest.MediaCandidate{PostID: "p1", MediaID: "m1", CanonicalURL: "https://example.com/post/p1"})
	require.NoError(t, err)
	assert.True(t, isNew)

	byPair, isNew, err := store.UpsertMedia(ctx, creatorID, ingest.MediaCandidate{PostID: "p1", MediaID: "m1"})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, id, byPair)

	byURL, isNew, err := store.UpsertMedia(ctx, creatorID, ingest.MediaCandidate{CanonicalURL: "https://example.com/post/p1"})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, id, byURL)

	_, _, err = store.UpsertMedia(ctx, creatorID, ingest.MediaCandidate{PostID: "p2"})
	require.ErrorIs(t, err, ingest.ErrExtractionIncomplete)

	_, _, err = store.UpsertMedia(ctx, 999, ingest.MediaCandidate{PostID: "p3", MediaID: "m3"})
	require.ErrorIs(t, err, ingest.ErrPersistenceFailure)
}

func TestUpsertMediaKeysAreScopedPerSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore()

	siteA, _, err := store.UpsertCreator(ctx, "siteA", ingest.CreatorCandidate{ExternalID: "1", DisplayName: "A"})
	require.NoError(t, err)
	siteB, _, err := store.UpsertCreator(ctx, "siteB", ingest.CreatorCandidate{ExternalID: "1", DisplayName: "B"})
	require.NoError(t, err)

	shared := ingest.MediaCandidate{PostID: "10", MediaID: "10", CanonicalURL: "https://cdn.example.com/v/10"}
	idA, isNew, err := store.UpsertMedia(ctx, siteA, shared)
	require.NoError(t, err)
	assert.True(t, isNew)
	idB, isNew, err := store.UpsertMedia(ctx, siteB, shared)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEqual(t, idA, idB)

	itemB, err := store.GetMedia(ctx, idB)
	require.NoError(t, err)
	assert.Equal(t, siteB, itemB.CreatorID)

	listed, err := store.ListMediaForEnrichment(ctx, "siteB", false)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, idB, listed[0].ID)
}

func TestUpsertKeysKeepIdentifyingQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore()

	first, _, err := store.UpsertCreator(ctx, "demo", ingest.CreatorCandidate{ProfileURL: "https://example.com/profile.php?id=1", DisplayName: "One"})
	require.NoError(t, err)
	second, isNew, err := store.UpsertCreator(ctx, "demo", ingest.CreatorCandidate{ProfileURL: "https://example.com/profile.php?id=2", DisplayName: "Two"})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEqual(t, first, second)

	a, isNew, err := store.UpsertMedia(ctx, first, ingest.MediaCandidate{CanonicalURL: ingest.NormalizeURL("https://example.com/watch?v=aaa&utm_source=x")})
	require.NoError(t, err)
	assert.True(t, isNew)
	b, isNew, err := store.UpsertMedia(ctx, first, ingest.MediaCandidate{CanonicalURL: ingest.NormalizeURL("https://example.com/watch?v=bbb")})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEqual(t, a, b)

	again, isNew, err := store.UpsertMedia(ctx, first, ingest.MediaCandidate{CanonicalURL: ingest.NormalizeURL("https://example.com/watch?v=aaa")})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, a, again)
}

func TestEnrichmentListingAndFlags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore()
	creatorID := seedCreator(t, store)

	a, _, err := store.UpsertMedia(ctx, creatorID, ingest.MediaCandidate{PostID: "p1", MediaID: "m1", Title: "Listing title"})
	require.NoError(t, err)
	b, _, err := store.UpsertMedia(ctx, creatorID, ingest.MediaCandidate{PostID: "p2", MediaID: "m2", PosterURL: "x.jpg", PlayableURL: "x.mp4"})
	require.NoError(t, err)

	pending, err := store.ListMediaForEnrichment(ctx, "demo", false)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a, pending[0].ID)

	all, err := store.ListMediaForEnrichment(ctx, "demo", true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []int64{a, b}, []int64{all[0].ID, all[1].ID})

	incomplete, err := store.CountIncompleteMedia(ctx, creatorID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), incomplete)

	err = store.EnrichMedia(ctx, a, ingest.MediaDetail{PosterURL: "a.jpg", PlayableURL: "a.mp4", Title: "Detail title", Width: 640}, testNow)
	require.NoError(t, err)
	item, err := store.GetMedia(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "Listing title", item.Title)
	assert.Equal(t, 640, item.Width)
	require.NotNil(t, item.EnrichedAt)
	assert.False(t, item.Incomplete())

	count, err := store.RecomputeMediaCount(ctx, creatorID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, store.SetStageFlag(ctx, creatorID, ingest.StageListing, testNow))
	c, err := store.GetCreator(ctx, creatorID)
	require.NoError(t, err)
	assert.True(t, c.MediaListed)
	assert.False(t, c.DetailsEnriched)

	require.Error(t, store.SetStageFlag(ctx, creatorID, ingest.StageDiscovery, testNow))
	require.ErrorIs(t, store.SetStageFlag(ctx, 999, ingest.StageListing, testNow), ingest.ErrNotFound)
	require.ErrorIs(t, store.EnrichMedia(ctx, 999, ingest.MediaDetail{}, testNow), ingest.ErrNotFound)
}

func TestRecomputeStageFlags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore()

	complete := seedCreator(t, store)
	partial, _, err := store.UpsertCreator(ctx, "demo", ingest.CreatorCandidate{ExternalID: "2", DisplayName: "Bob"})
	require.NoError(t, err)
	empty, _, err := store.UpsertCreator(ctx, "demo", ingest.CreatorCandidate{ExternalID: "3", DisplayName: "Carol"})
	require.NoError(t, err)

	_, _, err = store.UpsertMedia(ctx, complete, ingest.MediaCandidate{PostID: "a", MediaID: "1", PosterURL: "p", PlayableURL: "v"})
	require.NoError(t, err)
	_, _, err = store.UpsertMedia(ctx, partial, ingest.MediaCandidate{PostID: "b", MediaID: "1"})
	require.NoError(t, err)

	// A stale flag on a creator with no media must be cleared.
	require.NoError(t, store.SetStageFlag(ctx, empty, ingest.StageEnrichment, testNow))

	repair, err := store.RecomputeStageFlags(ctx, "demo", testNow)
	require.NoError(t, err)
	assert.Equal(t, ingest.FlagRepair{Reset: 1, MediaListed: 2, DetailsEnriched: 1}, repair)

	got := func(id int64) ingest.Creator {
		c, err := store.GetCreator(ctx, id)
		require.NoError(t, err)
		return c
	}
	assert.True(t, got(complete).MediaListed)
	assert.True(t, got(complete).DetailsEnriched)
	assert.True(t, got(partial).MediaListed)
	assert.False(t, got(partial).DetailsEnriched)
	assert.False(t, got(empty).MediaListed)
	assert.False(t, got(empty).DetailsEnriched)
	assert.Equal(t, int64(1), got(partial).MediaCount)
}

func TestUpdateCreatorStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore()
	id := seedCreator(t, store)

	require.NoError(t, store.UpdateCreatorStats(ctx, id, ingest.CreatorStats{Likes: ptr(9)}))
	c, err := store.GetCreator(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(9), c.LikeCount)
	require.ErrorIs(t, store.UpdateCreatorStats(ctx, 999, ingest.CreatorStats{Likes: ptr(1)}), ingest.ErrNotFound)
}
