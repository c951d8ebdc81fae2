package core

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the "outcome" label.
const (
	OutcomeFinished        = "finished"
	OutcomeCancelled       = "cancelled"
	OutcomeTransportFailed = "transport_failed"
)

// Metrics exposes Prometheus collectors that report dispatcher activity.
type Metrics struct {
	eventsApplied *prometheus.CounterVec
	linesDropped  prometheus.Counter
	runs          *prometheus.CounterVec
	runsActive    prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the instance registered with the global registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs Metrics on reg. Collectors that are already
// registered are reused; any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fanprompt",
			Subsystem: "dispatcher",
			Name:      "events_applied_total",
			Help:      "Events read from the stream, by type.",
		}, []string{"type"}),
		linesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fanprompt",
			Subsystem: "dispatcher",
			Name:      "lines_dropped_total",
			Help:      "Protocol lines discarded because they could not be decoded.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fanprompt",
			Subsystem: "dispatcher",
			Name:      "runs_total",
			Help:      "Finished runs, by outcome.",
		}, []string{"outcome"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fanprompt",
			Subsystem: "dispatcher",
			Name:      "runs_active",
			Help:      "Runs currently reading a stream.",
		}),
	}

	m.eventsApplied = MustRegister(reg, m.eventsApplied)
	m.linesDropped = MustRegister(reg, m.linesDropped)
	m.runs = MustRegister(reg, m.runs)
	m.runsActive = MustRegister(reg, m.runsActive)
	return m
}

// MustRegister registers c on reg and returns it, or returns the collector
// already registered under the same descriptor. Any other error panics.
func MustRegister[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) eventApplied(kind string) {
	if m == nil {
		return
	}
	m.eventsApplied.WithLabelValues(kind).Inc()
}

func (m *Metrics) dropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.linesDropped.Add(float64(n))
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
}

func (m *Metrics) runFinished(outcome string) {
	if m == nil {
		return
	}
	m.runsActive.Dec()
	m.runs.WithLabelValues(outcome).Inc()
}
