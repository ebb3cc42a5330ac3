package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	classified *prometheus.CounterVec
	errorsTot  *prometheus.CounterVec
	excluded   *prometheus.CounterVec
	sinkWrites *prometheus.CounterVec
	lastTheta  prometheus.Gauge
	lastTau    prometheus.Gauge
	latency    *prometheus.HistogramVec
}

// New registers the recorder's collectors with reg; nil means the default
// registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		classified: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_curves_classified_total",
				Help: "Curves classified, by category and tier",
			},
			[]string{"category", "tier"},
		),
		errorsTot: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_errors_total",
				Help: "Errors encountered, by kind",
			},
			[]string{"kind"},
		),
		excluded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_excluded_primes_total",
				Help: "Primes left out of samples or signals, by reason",
			},
			[]string{"reason"},
		),
		sinkWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_sink_writes_total",
				Help: "Verdict sink writes, by sink and outcome",
			},
			[]string{"sink", "outcome"},
		),
		lastTheta: f.NewGauge(prometheus.GaugeOpts{
			Name: "horizon_last_theta",
			Help: "BSD proxy of the most recently classified curve",
		}),
		lastTau: f.NewGauge(prometheus.GaugeOpts{
			Name: "horizon_last_tau",
			Help: "Collatz entropy of the most recently classified curve",
		}),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "horizon_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordVerdict(category, tier string) {
	r.classified.WithLabelValues(category, tier).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTot.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordExcluded(reason string, n int) {
	if n > 0 {
		r.excluded.WithLabelValues(reason).Add(float64(n))
	}
}

func (r *Recorder) RecordSignals(theta float64, tau int) {
	r.lastTheta.Set(theta)
	r.lastTau.Set(float64(tau))
}

func (r *Recorder) RecordSinkWrite(sink string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	r.sinkWrites.WithLabelValues(sink, outcome).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
