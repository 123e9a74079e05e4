package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

func TestListingCollectsMediaAndMarksCreators(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedCreators(t)
	h.fetcher.serve(listingURL("101", 1), mediaBody("a1", "a2", "a3"))
	h.fetcher.serve(listingURL("101", 2), mediaBody("a4"))
	h.fetcher.serve(listingURL("102", 1), mediaBody())
	h.fetcher.serve(listingURL("103", 1), mediaBody("c1"))
	h.fetcher.serve(listingURL("104", 1), mediaBody("d1", "d2"))

	report := h.run(t, ingest.RunRequest{Stage: ingest.StageListing})

	assert.Equal(t, ingest.RunCompleted, report.State)
	assert.Equal(t, 4, report.ItemsProcessed)
	assert.Equal(t, 7, report.RecordsFound)
	assert.Equal(t, 7, report.RecordsSaved)
	assert.Zero(t, report.Errors)

	first := h.creatorByExternalID(t, "101")
	assert.True(t, first.MediaListed)
	assert.Equal(t, int64(4), first.MediaCount)
	assert.Equal(t, int64(1200), first.FollowerCount)
	empty := h.creatorByExternalID(t, "102")
	assert.True(t, empty.MediaListed, "a creator without media is still listed")
	assert.Zero(t, empty.MediaCount)
}

func TestListingSkipsListedCreators(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedCreators(t)
	for _, id := range []string{"101", "102", "103", "104"} {
		h.fetcher.serve(listingURL(id, 1), mediaBody("p"+id))
	}
	h.run(t, ingest.RunRequest{Stage: ingest.StageListing})
	before := len(h.fetcher.Calls())

	report := h.run(t, ingest.RunRequest{Stage: ingest.StageListing})

	assert.Equal(t, 4, report.ItemsSkipped)
	assert.Zero(t, report.ItemsProcessed)
	assert.Len(t, h.fetcher.Calls(), before, "a resumed run fetches nothing")

	forced := h.run(t, ingest.RunRequest{Stage: ingest.StageListing, Force: true})
	assert.Equal(t, 4, forced.ItemsProcessed)
	assert.Equal(t, 4, forced.Duplicates)
	assert.Zero(t, forced.RecordsSaved)
}

func TestListingFailureIsIsolated(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedCreators(t)
	h.fetcher.serve(listingURL("101", 1), mediaBody("a1"))
	h.fetcher.serve(listingURL("102", 1), mediaBody("b1"))
	h.fetcher.serve(listingURL("104", 1), mediaBody("d1"))

	report := h.run(t, ingest.RunRequest{Stage: ingest.StageListing})

	assert.Equal(t, ingest.RunCompleted, report.State)
	assert.Equal(t, 3, report.ItemsProcessed)
	assert.Equal(t, 1, report.Errors)
	assert.False(t, h.creatorByExternalID(t, "103").MediaListed)
	assert.True(t, h.creatorByExternalID(t, "104").MediaListed)

	h.fetcher.serve(listingURL("103", 1), mediaBody("c1"))
	retry := h.run(t, ingest.RunRequest{Stage: ingest.StageListing})
	assert.Equal(t, 1, retry.ItemsProcessed)
	assert.Equal(t, 3, retry.ItemsSkipped)
	assert.True(t, h.creatorByExternalID(t, "103").MediaListed)
}

func TestListingRejectedPayloadIsIsolated(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedCreators(t)
	h.fetcher.serve(listingURL("101", 1), mediaBody("a1"))
	h.fetcher.serve(listingURL("102", 1), `{"unexpected":1}`)
	h.fetcher.serve(listingURL("103", 1), mediaBody("c1"))
	h.fetcher.serve(listingURL("104", 1), mediaBody("d1"))

	report := h.run(t, ingest.RunRequest{Stage: ingest.StageListing})

	assert.Equal(t, ingest.RunCompleted, report.State)
	assert.Equal(t, 3, report.ItemsProcessed)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 3, report.RecordsSaved)
	rejected := h.creatorByExternalID(t, "102")
	assert.False(t, rejected.MediaListed)
	assert.True(t, h.creatorByExternalID(t, "103").MediaListed)
	assert.True(t, h.creatorByExternalID(t, "104").MediaListed)

	path := fmt.Sprintf("fansite/listing/run-2/0001-creator-%d-page-1.json", rejected.ID)
	body, ok := h.archive.Get(path)
	require.True(t, ok, "rejected payload is archived at %s", path)
	assert.JSONEq(t, `{"unexpected":1}`, string(body))
}

func TestListingPageCapLeavesCreatorUnlisted(t *testing.T) {
	t.Parallel()
	h := newHarnessWithConfig(t, Config{MaxPages: 1})
	for _, id := range []string{"101", "102"} {
		_, _, err := h.store.UpsertCreator(t.Context(), "fansite", ingest.CreatorCandidate{ExternalID: id, DisplayName: "Creator " + id})
		require.NoError(t, err)
	}
	h.fetcher.serve(listingURL("101", 1), mediaBody("a1", "a2", "a3"))
	h.fetcher.serve(listingURL("101", 2), mediaBody("a4"))
	h.fetcher.serve(listingURL("102", 1), mediaBody("b1"))

	report := h.run(t, ingest.RunRequest{Stage: ingest.StageListing, TargetID: h.creatorByExternalID(t, "101").ID})

	assert.Equal(t, ingest.RunCompleted, report.State)
	assert.Equal(t, 1, report.ItemsProcessed)
	assert.Equal(t, 3, report.RecordsSaved)
	assert.NotContains(t, h.fetcher.Calls(), listingURL("101", 2))
	capped := h.creatorByExternalID(t, "101")
	assert.False(t, capped.MediaListed, "more pages may exist past the cap")
	assert.Equal(t, int64(3), capped.MediaCount)

	report = h.run(t, ingest.RunRequest{Stage: ingest.StageListing, TargetID: h.creatorByExternalID(t, "102").ID})
	assert.Equal(t, 1, report.RecordsSaved)
	assert.True(t, h.creatorByExternalID(t, "102").MediaListed, "a short page ends the listing under the cap")
}

func TestListingSessionLossAbortsRun(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedCreators(t)
	h.fetcher.serve(listingURL("101", 1), mediaBody("a1"))
	h.fetcher.fail(listingURL("102", 1),
		ingest.NewFetchError(ingest.ErrSessionUnavailable, listingURL("102", 1), 0, errors.New("browser gone")))
	before := len(h.fetcher.Calls())

	report := h.run(t, ingest.RunRequest{Stage: ingest.StageListing})

	assert.Equal(t, ingest.RunAborted, report.State)
	assert.Contains(t, report.FatalError, "browser session unavailable")
	assert.Equal(t, 1, report.ItemsProcessed)
	assert.Zero(t, report.Errors, "session loss is not an item error")
	assert.Len(t, h.fetcher.Calls(), before+2)
}

func TestListingTargetCreator(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seedCreators(t)
	target := h.creatorByExternalID(t, "103")
	h.fetcher.serve(listingURL("103", 1), mediaBody("c1"))
	h.run(t, ingest.RunRequest{Stage: ingest.StageListing, TargetID: target.ID})
	before := len(h.fetcher.Calls())

	report := h.run(t, ingest.RunRequest{Stage: ingest.StageListing, TargetID: target.ID})

	assert.Equal(t, 1, report.ItemsProcessed, "targeted runs ignore the listed flag")
	assert.Len(t, h.fetcher.Calls(), before+1)

	missing := h.run(t, ingest.RunRequest{Stage: ingest.StageListing, TargetID: 999})
	assert.Equal(t, 1, missing.Errors)
	assert.Equal(t, ingest.RunCompleted, missing.State)
}

func TestMergeStatsKeepsFirstValue(t *testing.T) {
	t.Parallel()
	one, two := int64(1), int64(2)
	var stats ingest.CreatorStats
	mergeStats(&stats, ingest.CreatorStats{Followers: &one})
	mergeStats(&stats, ingest.CreatorStats{Followers: &two, Likes: &two})
	require.NotNil(t, stats.Followers)
	assert.Equal(t, int64(1), *stats.Followers)
	assert.Equal(t, int64(2), *stats.Likes)
	assert.Nil(t, stats.Views)
}
