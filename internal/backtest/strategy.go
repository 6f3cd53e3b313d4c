package backtest

import (
	"encoding/json"
	"fmt"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
)

// Kind selects how the driver calls a strategy.
type Kind int

const (
	KindStateless Kind = iota
	KindStateful
	KindModel
)

func (k Kind) String() string {
	switch k {
	case KindStateless:
		return "stateless"
	case KindStateful:
		return "stateful"
	case KindModel:
		return "model"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StatelessFunc maps a data window to weights.
type StatelessFunc func(data *grid.Grid) (*grid.Panel, error)

// StatefulFunc maps a data window and the previous state to weights and the
// next state.
type StatefulFunc func(data *grid.Grid, state json.RawMessage) (*grid.Panel, json.RawMessage, error)

// TrainFunc fits a model on a training window.
type TrainFunc func(data *grid.Grid) (json.RawMessage, error)

// PredictFunc produces weights from a data window with a trained model.
type PredictFunc func(data *grid.Grid, model, state json.RawMessage) (*grid.Panel, json.RawMessage, error)

// Strategy is a user strategy tagged with its calling convention. Build one
// with Stateless, Stateful or ModelBased.
type Strategy struct {
	name      string
	kind      Kind
	stateless StatelessFunc
	stateful  StatefulFunc
	train     TrainFunc
	predict   PredictFunc
}

func Stateless(fn StatelessFunc) Strategy {
	return Strategy{kind: KindStateless, stateless: fn}
}

func Stateful(fn StatefulFunc) Strategy {
	return Strategy{kind: KindStateful, stateful: fn}
}

func ModelBased(train TrainFunc, predict PredictFunc) Strategy {
	return Strategy{kind: KindModel, train: train, predict: predict}
}

// Named returns a copy of s labeled for logs and reports.
func (s Strategy) Named(name string) Strategy {
	s.name = name
	return s
}

func (s Strategy) Name() string {
	if s.name == "" {
		return s.kind.String()
	}
	return s.name
}

func (s Strategy) Kind() Kind { return s.kind }

// Validate checks that the functions required by the kind are set.
func (s Strategy) Validate() error {
	var missing bool
	switch s.kind {
	case KindStateless:
		missing = s.stateless == nil
	case KindStateful:
		missing = s.stateful == nil
	case KindModel:
		missing = s.train == nil || s.predict == nil
	default:
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("unknown strategy kind %d", int(s.kind)))
	}
	if missing {
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("%s strategy %q has no function", s.kind, s.Name()))
	}
	return nil
}

// Outcome is the result of one strategy call. Err is set when the call
// failed, panicked or returned unusable weights.
type Outcome struct {
	Weights *grid.Panel
	State   json.RawMessage
	Model   json.RawMessage
	Err     error
}

func (o Outcome) OK() bool { return o.Err == nil }

// Run calls a stateless or stateful strategy. Stateless strategies pass the
// state through unchanged.
func (s Strategy) Run(data *grid.Grid, state json.RawMessage) (out Outcome) {
	defer recoverInto(&out)

	switch s.kind {
	case KindStateless:
		w, err := s.stateless(data)
		out = Outcome{Weights: w, State: state, Err: err}
	case KindStateful:
		w, next, err := s.stateful(data, state)
		out = Outcome{Weights: w, State: next, Err: err}
	default:
		return Outcome{Err: fmt.Errorf("%s strategy needs Train and Predict", s.kind)}
	}
	if out.Err == nil {
		out.Err = ValidateWeights(out.Weights)
	}
	return out
}

// Train fits a model strategy.
func (s Strategy) Train(data *grid.Grid) (out Outcome) {
	defer recoverInto(&out)

	if s.kind != KindModel {
		return Outcome{Err: fmt.Errorf("%s strategy cannot be trained", s.kind)}
	}
	model, err := s.train(data)
	if err == nil && model == nil {
		err = fmt.Errorf("train returned no model")
	}
	return Outcome{Model: model, Err: err}
}

// Predict calls a model strategy with a trained model.
func (s Strategy) Predict(data *grid.Grid, model, state json.RawMessage) (out Outcome) {
	defer recoverInto(&out)

	if s.kind != KindModel {
		return Outcome{Err: fmt.Errorf("%s strategy cannot predict", s.kind)}
	}
	w, next, err := s.predict(data, model, state)
	out = Outcome{Weights: w, State: next, Model: model, Err: err}
	if out.Err == nil {
		out.Err = ValidateWeights(out.Weights)
	}
	return out
}

func recoverInto(out *Outcome) {
	if r := recover(); r != nil {
		*out = Outcome{Err: fmt.Errorf("strategy panicked: %v", r)}
	}
}

// ValidateWeights checks a strategy output: a non-nil panel indexed by
// {asset} or {asset, time} with at least one finite value.
func ValidateWeights(w *grid.Panel) error {
	if w == nil {
		return core.ErrNilWeights
	}
	if len(w.Assets) == 0 || w.Rows() == 0 {
		return core.WrapError(core.ErrWrongShape, fmt.Errorf("empty output (%d rows x %d assets)", w.Rows(), len(w.Assets)))
	}
	if err := w.Validate(); err != nil {
		return core.WrapError(core.ErrWrongShape, err)
	}
	if !w.HasFinite() {
		return core.ErrNonFinite
	}
	return nil
}
