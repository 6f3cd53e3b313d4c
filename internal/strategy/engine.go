package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/core"
	"go.uber.org/zap"
)

// Engine manages the strategies available to the CLI
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	logger     *zap.Logger
}

// NewEngine creates a new strategy engine
func NewEngine(logger ...*zap.Logger) *Engine {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Engine{
		strategies: make(map[string]Strategy),
		logger:     l,
	}
}

// Register adds a strategy to the engine
func (e *Engine) Register(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.Name()] = s
}

// Get retrieves a strategy by name
func (e *Engine) Get(name string) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[name]
	return s, ok
}

// GetAll returns all registered strategies sorted by name
func (e *Engine) GetAll() []Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Build configures the named strategy and returns its driver callable
func (e *Engine) Build(name string, cfg Config) (backtest.Strategy, error) {
	s, ok := e.Get(name)
	if !ok {
		return backtest.Strategy{}, core.WrapError(core.ErrInvalidInput, fmt.Errorf("unknown strategy %q", name))
	}
	if err := s.Init(cfg); err != nil {
		return backtest.Strategy{}, core.WrapError(core.ErrInvalidInput, fmt.Errorf("init %s: %w", name, err))
	}

	bs := s.Backtest().Named(s.Name())
	e.logger.Debug("strategy ready",
		zap.String("strategy", name),
		zap.Stringer("kind", bs.Kind()),
		zap.String("description", s.Description()),
	)
	return bs, nil
}
