package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

func TestPublisherStoresReports(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), ingest.RunReport{RunID: "run-a", Stage: ingest.StageDiscovery})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), ingest.RunReport{RunID: "run-b", Stage: ingest.StageListing})
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	reports := pub.Reports()
	require.Len(t, reports, 2)
	assert.Equal(t, "run-a", reports[0].RunID)
	assert.Equal(t, ingest.StageListing, reports[1].Stage)

	reports[0].RunID = "modified"
	assert.Equal(t, "run-a", pub.Reports()[0].RunID, "Reports must return a copy")
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("boom")
	pub.FailWith(boom)
	_, err := pub.Publish(context.Background(), ingest.RunReport{RunID: "run-a"})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, pub.Reports())

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), ingest.RunReport{RunID: "run-a"})
	require.NoError(t, err)
	assert.Len(t, pub.Reports(), 1)
}
