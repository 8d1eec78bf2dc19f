package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK        = "ok"
	outcomeMalformed = "malformed"
	outcomeReadError = "read_error"
)

// Metrics counts telemetry ingestion by outcome
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	bodyBytes     prometheus.Histogram
	lastFix       *prometheus.GaugeVec
}

// NewMetrics creates ingestion metrics registered on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jamloc_telemetry_requests_total",
			Help: "Telemetry reports received on the ingestion endpoint, by outcome",
		}, []string{"outcome"}),

		bodyBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jamloc_telemetry_body_bytes",
			Help:    "Size of telemetry report bodies",
			Buckets: prometheus.ExponentialBuckets(64, 2, 8),
		}),

		lastFix: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jamloc_telemetry_last_fix",
			Help: "Most recent position reported by the decoder",
		}, []string{"field"}),
	}
}

func (m *Metrics) observe(outcome string) {
	m.requestsTotal.WithLabelValues(outcome).Inc()
}
