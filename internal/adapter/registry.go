// Package adapter turns fetched pages into creator and media records. Each adapter targets
// one site layout and entity type and reads fields through ordered fallback chains.
package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// Built-in adapter kinds.
const (
	KindCreatorJSON = "creator-json"
	KindCreatorHTML = "creator-html"
	KindMediaJSON   = "media-json"
	KindMediaHTML   = "media-html"
	KindDetailHTML  = "detail-html"
	KindDetailJSON  = "detail-json"
)

// Factory builds an adapter bound to a source.
type Factory func(src ingest.Source) ingest.Adapter

// Registry maps adapter kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	stages    map[string]ingest.Stage
}

// NewRegistry returns a registry holding the built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{
		factories: map[string]Factory{},
		stages:    map[string]ingest.Stage{},
	}
	r.Register(KindCreatorJSON, ingest.StageDiscovery, NewCreatorJSON)
	r.Register(KindCreatorHTML, ingest.StageDiscovery, NewCreatorHTML)
	r.Register(KindMediaJSON, ingest.StageListing, NewMediaJSON)
	r.Register(KindMediaHTML, ingest.StageListing, NewMediaHTML)
	r.Register(KindDetailHTML, ingest.StageEnrichment, NewDetailHTML)
	r.Register(KindDetailJSON, ingest.StageEnrichment, NewDetailJSON)
	return r
}

// Register adds or replaces the factory for kind, which serves stage.
func (r *Registry) Register(kind string, stage ingest.Stage, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
	r.stages[kind] = stage
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// For builds the adapter configured for stage on src.
func (r *Registry) For(src ingest.Source, stage ingest.Stage) (ingest.Adapter, error) {
	cfg, err := src.Stage(stage)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.factories[cfg.Adapter]
	served := r.stages[cfg.Adapter]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source %s: unknown adapter kind %q", src.ID, cfg.Adapter)
	}
	if served != stage {
		return nil, fmt.Errorf("source %s: adapter %q serves %s, not %s", src.ID, cfg.Adapter, served, stage)
	}
	return f(src), nil
}
