package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	conversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelconv",
			Subsystem: "pipeline",
			Name:      "conversions_total",
			Help:      "Total conversion attempts by target format and outcome",
		},
		[]string{"format", "outcome"},
	)

	conversionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelconv",
			Subsystem: "pipeline",
			Name:      "conversion_duration_seconds",
			Help:      "Wall time of external conversion tool runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"format"},
	)

	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelconv",
			Subsystem: "pipeline",
			Name:      "validations_total",
			Help:      "Total serving config validations by verdict",
		},
		[]string{"verdict"},
	)
)

func init() {
	prometheus.MustRegister(conversionsTotal, conversionDuration, validationsTotal)
}
