// internal/storage/state/archive.go
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/storage/archive"
)

// ArchiveStore keeps the state as a JSON blob at state/<key>.json.
type ArchiveStore struct {
	storage archive.Storage
	path    string
}

// NewArchiveStore creates a store for key.
func NewArchiveStore(storage archive.Storage, key string) *ArchiveStore {
	if key == "" {
		key = "default"
	}
	return &ArchiveStore{storage: storage, path: path.Join("state", key+".json")}
}

func (a *ArchiveStore) Read(ctx context.Context) (*backtest.State, error) {
	data, err := a.storage.Read(ctx, a.path)
	if errors.Is(err, archive.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", a.path, err)
	}

	var s backtest.State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", a.path, err)
	}
	return &s, nil
}

func (a *ArchiveStore) Write(ctx context.Context, state backtest.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	return a.storage.Write(ctx, a.path, data)
}
