// internal/storage/state/memory.go
package state

import (
	"context"
	"sync"

	"github.com/newthinker/quantlab/internal/backtest"
)

// MemoryStore keeps the written states in memory, newest last.
type MemoryStore struct {
	states  []backtest.State
	maxSize int
	mu      sync.RWMutex
}

// NewMemoryStore creates a store that remembers at most maxSize states;
// zero keeps only the latest.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &MemoryStore{
		states:  make([]backtest.State, 0, maxSize),
		maxSize: maxSize,
	}
}

// Read returns a copy of the latest state.
func (m *MemoryStore) Read(ctx context.Context) (*backtest.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.states) == 0 {
		return nil, nil
	}
	s := clone(m.states[len(m.states)-1])
	return &s, nil
}

// Write appends a state.
func (m *MemoryStore) Write(ctx context.Context, state backtest.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states = append(m.states, clone(state))

	// Trim if over capacity (remove oldest)
	if len(m.states) > m.maxSize {
		m.states = m.states[len(m.states)-m.maxSize:]
	}
	return nil
}

// History returns the remembered states, oldest first.
func (m *MemoryStore) History() []backtest.State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]backtest.State, len(m.states))
	for i, s := range m.states {
		out[i] = clone(s)
	}
	return out
}

func clone(s backtest.State) backtest.State {
	s.Payload = append(s.Payload[:0:0], s.Payload...)
	s.Model = append(s.Model[:0:0], s.Model...)
	return s
}
