package ingest

import (
	"context"
	"time"
)

// Fetcher opens a URL with a single strategy.
type Fetcher interface {
	Open(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// Adapter turns fetched content into records. Implementations must be pure: they read only
// the result they are given.
type Adapter interface {
	Kind() string
	Extract(result FetchResult) (Extraction, error)
}

// CreatorStore persists creators.
type CreatorStore interface {
	UpsertCreator(ctx context.Context, sourceID string, c CreatorCandidate) (id int64, isNew bool, err error)
	GetCreator(ctx context.Context, id int64) (Creator, error)
	ListCreators(ctx context.Context, sourceID string) ([]Creator, error)
	UpdateCreatorStats(ctx context.Context, id int64, stats CreatorStats) error
	RecomputeMediaCount(ctx context.Context, id int64) (int64, error)
}

// MediaStore persists media items.
type MediaStore interface {
	UpsertMedia(ctx context.Context, creatorID int64, m MediaCandidate) (id int64, isNew bool, err error)
	GetMedia(ctx context.Context, id int64) (MediaItem, error)
	ListMediaForEnrichment(ctx context.Context, sourceID string, includeComplete bool) ([]MediaItem, error)
	EnrichMedia(ctx context.Context, id int64, detail MediaDetail, at time.Time) error
	CountIncompleteMedia(ctx context.Context, creatorID int64) (int64, error)
}

// StageFlagStore persists the per-creator stage completion flags.
type StageFlagStore interface {
	SetStageFlag(ctx context.Context, creatorID int64, stage Stage, at time.Time) error
	RecomputeStageFlags(ctx context.Context, sourceID string, at time.Time) (FlagRepair, error)
}

// Store is the full persistence contract used by the pipeline.
type Store interface {
	CreatorStore
	MediaStore
	StageFlagStore
	Close()
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// BlobStore writes raw payloads for later inspection.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher emits run reports to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, report RunReport) (string, error)
}
