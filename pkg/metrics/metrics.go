// Package metrics provides Prometheus metrics for match generation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels a generation pass.
type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeReadError  Outcome = "read_error"
	OutcomeWriteError Outcome = "write_error"
)

// Recorder records generation and import metrics. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	passes         *prometheus.CounterVec
	passDuration   prometheus.Histogram
	candidates     prometheus.Counter
	lastCandidates prometheus.Gauge
	lastPassUnix   prometheus.Gauge
	imported       *prometheus.CounterVec
	pruned         prometheus.Counter
}

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for the pass duration histogram.
func WithHistogramBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = buckets
		}
	}
}

// New creates a Recorder on its own registry.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: "campusmatch",
		buckets:   prometheus.DefBuckets,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}

	auto := promauto.With(r.registry)

	r.passes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "match",
		Name:      "passes_total",
		Help:      "Generation passes by outcome",
	}, []string{"outcome"})

	r.passDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: "match",
		Name:      "pass_duration_seconds",
		Help:      "Wall time of a generation pass",
		Buckets:   r.buckets,
	})

	r.candidates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "match",
		Name:      "candidates_total",
		Help:      "Candidates written across all passes",
	})

	r.lastCandidates = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: "match",
		Name:      "last_pass_candidates",
		Help:      "Candidates produced by the most recent successful pass",
	})

	r.lastPassUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: "match",
		Name:      "last_pass_timestamp_seconds",
		Help:      "Unix time of the most recent successful pass",
	})

	r.imported = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "feed",
		Name:      "listings_imported_total",
		Help:      "Listings imported from feeds",
	}, []string{"feed"})

	r.pruned = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "match",
		Name:      "pruned_total",
		Help:      "Stale matches removed",
	})

	return r
}

// ObservePass records one generation pass.
func (r *Recorder) ObservePass(outcome Outcome, candidates int, d time.Duration) {
	if r == nil {
		return
	}
	r.passes.WithLabelValues(string(outcome)).Inc()
	r.passDuration.Observe(d.Seconds())
	if outcome != OutcomeOK {
		return
	}
	r.candidates.Add(float64(candidates))
	r.lastCandidates.Set(float64(candidates))
	r.lastPassUnix.Set(float64(time.Now().Unix()))
}

// ObserveImport records listings imported from one feed.
func (r *Recorder) ObserveImport(feed string, n int) {
	if r == nil {
		return
	}
	r.imported.WithLabelValues(feed).Add(float64(n))
}

// Imported returns the import counter of one feed.
func (r *Recorder) Imported(feed string) prometheus.Counter {
	return r.imported.WithLabelValues(feed)
}

// ObservePrune records removed matches.
func (r *Recorder) ObservePrune(n int64) {
	if r == nil {
		return
	}
	r.pruned.Add(float64(n))
}

// Pruned returns the pruned-matches counter.
func (r *Recorder) Pruned() prometheus.Counter { return r.pruned }

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}
