package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ProbeTotal counts ML endpoint health probes by outcome ("up"/"down").
	ProbeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mangrovewatch",
		Subsystem: "ml",
		Name:      "probe_total",
		Help:      "Total number of ML endpoint health probes, labeled by outcome.",
	}, []string{"outcome"})

	// FallbackTotal counts how often a fallback substituted for the ML
	// endpoint, labeled by which fallback ("estimator"/"heuristic").
	FallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mangrovewatch",
		Subsystem: "ml",
		Name:      "fallback_total",
		Help:      "Total number of requests served by a local fallback instead of the ML endpoint.",
	}, []string{"fallback"})

	// VerificationTotal counts completed verification workflow runs by
	// terminal status.
	VerificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mangrovewatch",
		Subsystem: "verification",
		Name:      "runs_total",
		Help:      "Total number of verification workflow runs, labeled by terminal status.",
	}, []string{"status"})

	// VerificationDurationSeconds is end-to-end workflow time per incident.
	VerificationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mangrovewatch",
		Subsystem: "verification",
		Name:      "duration_seconds",
		Help:      "End-to-end time to run the verification workflow for one incident.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 30, 60},
	})

	// IncidentsCreatedTotal counts stored incidents by type.
	IncidentsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mangrovewatch",
		Subsystem: "incidents",
		Name:      "created_total",
		Help:      "Total number of incidents created, labeled by incident type.",
	}, []string{"type"})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ProbeTotal,
			FallbackTotal,
			VerificationTotal,
			VerificationDurationSeconds,
			IncidentsCreatedTotal,
		)
	})
}
