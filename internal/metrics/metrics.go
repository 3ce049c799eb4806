package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Outcome string

const (
	Success Outcome = "success"
	Error   Outcome = "error"
)

func (o Outcome) String() string {
	return string(o)
}

var (
	once sync.Once

	upstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_upstream_request_duration_seconds",
			Help:    "Duration of requests to the mining operations API",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "outcome"},
	)
	sourceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_source_failures_total",
			Help: "Source calls that degraded a metric to its default value",
		},
		[]string{"source", "kind"},
	)
	snapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_snapshot_duration_seconds",
			Help:    "Duration of a whole fleet snapshot",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
	)
	degradedSnapshots = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_degraded_snapshots_total",
			Help: "Snapshots served with at least one fallback value",
		},
	)
)

// Init registers the collectors with the default registry, safe to call more than once
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			upstreamRequestDuration,
			sourceFailures,
			snapshotDuration,
			degradedSnapshots,
		)
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordUpstreamRequest(endpoint string, outcome Outcome, d time.Duration) {
	upstreamRequestDuration.WithLabelValues(endpoint, outcome.String()).Observe(d.Seconds())
}

func RecordSourceFailure(source, kind string) {
	sourceFailures.WithLabelValues(source, kind).Inc()
}

func RecordSnapshot(d time.Duration, degraded bool) {
	snapshotDuration.Observe(d.Seconds())
	if degraded {
		degradedSnapshots.Inc()
	}
}
