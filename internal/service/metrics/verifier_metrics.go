package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	VerifierLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "horizon",
			Subsystem: "verifier",
			Name:      "latency_seconds",
			Help:      "Latency of exact-rank verification calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	VerifierErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "horizon",
			Subsystem: "verifier",
			Name:      "errors_total",
			Help:      "Verification failures by kind",
		},
		[]string{"kind"},
	)

	VerifierRanks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "horizon",
			Subsystem: "verifier",
			Name:      "ranks_total",
			Help:      "Verified ranks reported for flagged candidates",
		},
		[]string{"rank"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(VerifierLatency, VerifierErrors, VerifierRanks)
	})
}
