package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	instruments *prometheus.CounterVec
	events      *prometheus.CounterVec
	issues      *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	lastRun     prometheus.Gauge
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		instruments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rangebreak_instruments_total",
				Help: "Instruments processed by outcome (ok, failed)",
			},
			[]string{"outcome"},
		),
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rangebreak_events_total",
				Help: "Breakout events emitted by direction",
			},
			[]string{"direction"},
		),
		issues: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rangebreak_data_quality_issues_total",
				Help: "Anchor days skipped for data quality reasons",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rangebreak_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rangebreak_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 60, 300},
			},
			[]string{"operation"},
		),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "rangebreak_last_run_timestamp_seconds",
			Help: "Unix time the last backtest finished",
		}),
	}
}

// RecordInstrument counts one instrument by outcome.
func (r *Recorder) RecordInstrument(outcome string) {
	r.instruments.WithLabelValues(outcome).Inc()
}

// RecordEvents adds n emitted events for direction.
func (r *Recorder) RecordEvents(direction string, n int) {
	r.events.WithLabelValues(direction).Add(float64(n))
}

// RecordIssue counts a skipped anchor day.
func (r *Recorder) RecordIssue(kind string) {
	r.issues.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency.
func (r *Recorder) RecordLatency(op string, d time.Duration) {
	r.latency.WithLabelValues(op).Observe(d.Seconds())
	if op == "backtest" {
		r.lastRun.SetToCurrentTime()
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordInstrument(string)             {}
func (Nop) RecordEvents(string, int)            {}
func (Nop) RecordIssue(string)                  {}
func (Nop) RecordError(string)                  {}
func (Nop) RecordLatency(string, time.Duration) {}
