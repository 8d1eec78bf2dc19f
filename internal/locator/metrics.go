package locator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks run outcomes and the time spent in the decoder and the localization pipeline
type Metrics struct {
	runsTotal           *prometheus.CounterVec
	decoderDuration     prometheus.Histogram
	localizationLatency prometheus.Histogram
}

// NewMetrics creates run metrics registered on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jamloc_runs_total",
			Help: "Finished localization runs, by outcome type and status",
		}, []string{"type", "status"}),

		decoderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jamloc_decoder_duration_seconds",
			Help:    "Wall time of the decoder subprocess",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),

		localizationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jamloc_localization_duration_seconds",
			Help:    "Wall time of distance estimation and localization",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}
