// internal/storage/state/interface.go
package state

import (
	"context"
	"fmt"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/storage/archive"
)

// Store persists the backtest state of one strategy. Read returns nil when
// nothing has been written yet.
type Store interface {
	Read(ctx context.Context) (*backtest.State, error)
	Write(ctx context.Context, state backtest.State) error
}

var (
	_ backtest.StateStore = (*MemoryStore)(nil)
	_ backtest.StateStore = (*ArchiveStore)(nil)
	_ backtest.StateStore = (*SQLiteStore)(nil)
)

// Backend names
const (
	BackendMemory  = "memory"
	BackendArchive = "archive"
	BackendSQLite  = "sqlite"
)

// Config selects a state backend
type Config struct {
	Backend string
	// Path is the SQLite database file
	Path string
	// Key scopes the state, usually the strategy name
	Key string
}

// Open builds the configured store. The archive backend writes through
// storage; the others ignore it. The returned close func releases the
// backend and is never nil.
func Open(cfg Config, storage archive.Storage) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(0), noop, nil
	case BackendArchive:
		if storage == nil {
			return nil, noop, fmt.Errorf("archive state store needs a storage backend")
		}
		return NewArchiveStore(storage, cfg.Key), noop, nil
	case BackendSQLite:
		s, err := NewSQLiteStore(cfg.Path, cfg.Key)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
