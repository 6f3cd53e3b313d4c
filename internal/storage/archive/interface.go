// internal/storage/archive/interface.go
package archive

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Read when nothing is stored at the path.
var ErrNotFound = errors.New("archive: not found")

// Storage is a flat blob store keyed by slash-separated paths. Bars,
// weights and backtest state all live behind it.
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

// Backend names
const (
	BackendLocalFS = "localfs"
	BackendS3      = "s3"
)

// Config selects and configures a backend
type Config struct {
	Backend string
	Path    string // localfs root
	S3      S3Config
}

// Open builds the configured backend.
func Open(cfg Config) (Storage, error) {
	switch cfg.Backend {
	case BackendLocalFS, "":
		return NewLocalFS(cfg.Path)
	case BackendS3:
		return NewS3(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
