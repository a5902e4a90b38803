package interpret

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricDirectives = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interpret_directives_total",
		Help: "Interpretation outcomes by directive class",
	}, []string{"reason"})

	metricInterpretLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interpret_latency_ms",
		Help:    "Time spent interpreting one utterance",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
