package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
)

// Registry routes loads to the source registered for each asset class
type Registry struct {
	mu      sync.RWMutex
	sources map[core.AssetClass]Source
}

// NewRegistry creates a new source registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[core.AssetClass]Source),
	}
}

// Register sets the source for an asset class
func (r *Registry) Register(class core.AssetClass, s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[class] = s
}

// Get retrieves the source of an asset class
func (r *Registry) Get(class core.AssetClass) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[class]
	return s, ok
}

// Classes returns the asset classes with a registered source
func (r *Registry) Classes() []core.AssetClass {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]core.AssetClass, 0, len(r.sources))
	for c := range r.sources {
		result = append(result, c)
	}
	return result
}

// Load delegates to the source of class.
func (r *Registry) Load(ctx context.Context, class core.AssetClass, from, to time.Time) (*grid.Grid, error) {
	s, ok := r.Get(class)
	if !ok {
		return nil, core.WrapError(core.ErrSourceFailed, fmt.Errorf("no source for asset class %q", class))
	}
	return s.Load(ctx, class, from, to)
}
