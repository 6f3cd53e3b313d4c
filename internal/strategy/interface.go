package strategy

import (
	"fmt"

	"github.com/newthinker/quantlab/internal/backtest"
)

// Config holds strategy configuration
type Config struct {
	Params map[string]any
}

// Strategy is a named, configurable weight strategy
type Strategy interface {
	Name() string
	Description() string
	Init(cfg Config) error
	// Backtest returns the strategy as a driver callable
	Backtest() backtest.Strategy
}

// IntParam reads an integer parameter. Config files decode numbers as int
// or float64 depending on the format, so both are accepted.
func IntParam(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%s: %v is not an integer", key, v)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%s: unexpected type %T", key, v)
	}
}

// FloatParam reads a float parameter.
func FloatParam(params map[string]any, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%s: unexpected type %T", key, v)
	}
}

// BoolParam reads a boolean parameter.
func BoolParam(params map[string]any, key string, def bool) (bool, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s: unexpected type %T", key, v)
	}
	return b, nil
}
