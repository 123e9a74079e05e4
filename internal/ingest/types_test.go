package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreatorCandidateIdentity(t *testing.T) {
	t.Parallel()

	withID := CreatorCandidate{ExternalID: "42", ProfileURL: "https://example.com/a", DisplayName: "A"}
	assert.True(t, withID.HasIdentity())
	assert.Equal(t, "src:id:42", withID.NaturalKey("src"))

	byURL := CreatorCandidate{ProfileURL: "https://Example.com/a/?utm_medium=x", DisplayName: "A"}
	assert.True(t, byURL.HasIdentity())
	assert.Equal(t, "src:url:https://example.com/a", byURL.NaturalKey("src"))

	assert.False(t, CreatorCandidate{ProfileURL: "https://example.com/a"}.HasIdentity())
	assert.False(t, CreatorCandidate{DisplayName: "nameless"}.HasIdentity())
}

func TestMediaIdentityAndCompleteness(t *testing.T) {
	t.Parallel()

	assert.True(t, MediaCandidate{PostID: "p", MediaID: "m"}.HasIdentity())
	assert.True(t, MediaCandidate{CanonicalURL: "https://example.com/v/1"}.HasIdentity())
	assert.False(t, MediaCandidate{PostID: "p"}.HasIdentity())

	item := MediaItem{PosterURL: "https://cdn.example.com/p.jpg"}
	assert.True(t, item.Incomplete())
	item.PlayableURL = "https://cdn.example.com/v.mp4"
	assert.False(t, item.Incomplete())
}

func TestExtractionRecords(t *testing.T) {
	t.Parallel()

	ex := Extraction{Creators: make([]CreatorCandidate, 2), Media: make([]MediaCandidate, 1)}
	assert.Equal(t, 3, ex.Records())

	ex = Extraction{Detail: &MediaDetail{}}
	assert.Equal(t, 0, ex.Records())
	ex.Detail.PlayableURL = "https://cdn.example.com/v.mp4"
	assert.Equal(t, 1, ex.Records())
}
