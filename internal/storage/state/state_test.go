package state

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/storage/archive"
)

func sample() backtest.State {
	return backtest.State{
		Payload:        json.RawMessage(`{"scores":{"A":0.1}}`),
		Model:          json.RawMessage(`{"slopes":{"A":0.01}}`),
		ModelCreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		CreatedAt:      time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

// stores returns every backend, each over fresh storage
func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := archive.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), "momentum")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory":  NewMemoryStore(10),
		"archive": NewArchiveStore(fs, "momentum"),
		"sqlite":  sqlite,
	}
}

func TestStores_ReadEmpty(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Read(context.Background())
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got != nil {
				t.Errorf("expected nil state, got %+v", got)
			}
		})
	}
}

func TestStores_WriteRead(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := sample()
			first.Payload = json.RawMessage(`1`)
			if err := s.Write(ctx, first); err != nil {
				t.Fatalf("Write: %v", err)
			}
			want := sample()
			if err := s.Write(ctx, want); err != nil {
				t.Fatalf("Write: %v", err)
			}

			got, err := s.Read(ctx)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got == nil {
				t.Fatal("expected a state")
			}
			if string(got.Payload) != string(want.Payload) || string(got.Model) != string(want.Model) {
				t.Errorf("got payload %s model %s", got.Payload, got.Model)
			}
			if !got.ModelCreatedAt.Equal(want.ModelCreatedAt) || !got.CreatedAt.Equal(want.CreatedAt) {
				t.Errorf("timestamps differ: %v %v", got.ModelCreatedAt, got.CreatedAt)
			}
		})
	}
}

func TestStores_NoModel(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Write(ctx, backtest.State{Payload: json.RawMessage(`"x"`)}); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := s.Read(ctx)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got.HasModel() {
				t.Errorf("expected no model, got %s", got.Model)
			}
			if !got.ModelCreatedAt.IsZero() {
				t.Errorf("expected zero model time, got %v", got.ModelCreatedAt)
			}
		})
	}
}

func TestMemoryStore_History(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()
	for _, p := range []string{`1`, `2`, `3`} {
		s.Write(ctx, backtest.State{Payload: json.RawMessage(p)})
	}

	h := s.History()
	if len(h) != 2 {
		t.Fatalf("expected 2 states, got %d", len(h))
	}
	if string(h[0].Payload) != "2" {
		t.Errorf("expected oldest kept state 2, got %s", h[0].Payload)
	}

	// mutating a read copy must not touch the store
	got, _ := s.Read(ctx)
	got.Payload[0] = '9'
	again, _ := s.Read(ctx)
	if string(again.Payload) != "3" {
		t.Errorf("store was mutated through a read: %s", again.Payload)
	}
}

func TestSQLiteStore_KeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	a, err := NewSQLiteStore(path, "a")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer a.Close()
	b, err := NewSQLiteStore(path, "b")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer b.Close()

	if err := a.Write(ctx, sample()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got, _ := b.Read(ctx); got != nil {
		t.Errorf("expected no state for key b, got %+v", got)
	}
	if n, err := a.Versions(ctx); err != nil || n != 1 {
		t.Errorf("Versions = %d, %v", n, err)
	}
}

func TestOpen(t *testing.T) {
	fs, _ := archive.NewLocalFS(t.TempDir())
	tests := []struct {
		name    string
		cfg     Config
		storage archive.Storage
		wantErr bool
	}{
		{"memory", Config{Backend: BackendMemory}, nil, false},
		{"archive", Config{Backend: BackendArchive, Key: "k"}, fs, false},
		{"archive without storage", Config{Backend: BackendArchive}, nil, true},
		{"sqlite", Config{Backend: BackendSQLite, Path: filepath.Join(t.TempDir(), "s.db")}, nil, false},
		{"sqlite without path", Config{Backend: BackendSQLite}, nil, true},
		{"unknown", Config{Backend: "redis"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, closeFn, err := Open(tt.cfg, tt.storage)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if closeFn == nil {
				t.Fatal("expected a close func")
			}
			if err == nil && s == nil {
				t.Error("expected a store")
			}
			closeFn()
		})
	}
}
