package gesture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gesture_taps_total",
		Help: "Total presses classified as taps",
	})

	metricLongPresses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gesture_long_presses_total",
		Help: "Total presses that crossed the long-press threshold",
	})

	metricCancels = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gesture_cancels_total",
		Help: "Total presses cancelled before classification",
	})

	metricPressDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gesture_press_duration_ms",
		Help:    "Press duration from start to release",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 10),
	})
)
