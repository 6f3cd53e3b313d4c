package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Iteration outcomes used as the status label.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Registry holds all Prometheus metrics. Record methods are no-ops on a nil
// registry so components can run uninstrumented.
type Registry struct {
	*prometheus.Registry

	iterations       *prometheus.CounterVec
	strategyDuration *prometheus.HistogramVec
	retrains         prometheus.Counter
	lookAhead        prometheus.Counter
	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram
	simulatedDays    prometheus.Counter
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{Registry: reg}

	r.iterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantlab_iterations_total",
			Help: "Total number of strategy iterations",
		},
		[]string{"status"},
	)
	r.strategyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quantlab_strategy_duration_seconds",
			Help:    "Strategy call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"call"},
	)
	r.retrains = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quantlab_retrains_total",
			Help: "Total number of model trainings",
		},
	)
	r.lookAhead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quantlab_lookahead_violations_total",
			Help: "Total number of look-ahead checks that found a difference",
		},
	)
	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantlab_backtests_total",
			Help: "Total number of backtests",
		},
		[]string{"status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quantlab_backtest_duration_seconds",
			Help:    "Backtest duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900},
		},
	)
	r.simulatedDays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quantlab_simulated_days_total",
			Help: "Total number of days replayed by the simulator",
		},
	)

	reg.MustRegister(r.iterations)
	reg.MustRegister(r.strategyDuration)
	reg.MustRegister(r.retrains)
	reg.MustRegister(r.lookAhead)
	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.simulatedDays)

	return r
}

// RecordIteration records one strategy call of kind call ("train",
// "predict" or "run") and whether it produced usable weights.
func (r *Registry) RecordIteration(call string, ok bool, duration float64) {
	if r == nil {
		return
	}
	r.iterations.WithLabelValues(status(ok)).Inc()
	r.strategyDuration.WithLabelValues(call).Observe(duration)
}

// RecordRetrain records a model training.
func (r *Registry) RecordRetrain() {
	if r == nil {
		return
	}
	r.retrains.Inc()
}

// RecordLookAheadViolation records a failed look-ahead check.
func (r *Registry) RecordLookAheadViolation() {
	if r == nil {
		return
	}
	r.lookAhead.Inc()
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(ok bool, duration float64) {
	if r == nil {
		return
	}
	r.backtestsTotal.WithLabelValues(status(ok)).Inc()
	r.backtestDuration.Observe(duration)
}

// RecordSimulation records the number of simulated days.
func (r *Registry) RecordSimulation(days int) {
	if r == nil {
		return
	}
	r.simulatedDays.Add(float64(days))
}

// WriteFile dumps the registry in the text exposition format.
func (r *Registry) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}

func status(ok bool) string {
	if ok {
		return StatusOK
	}
	return StatusFailed
}
