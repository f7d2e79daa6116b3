// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "odds_arbitrage"

// Cycle results
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics groups the service collectors
type Metrics struct {
	CyclesTotal              *prometheus.CounterVec
	CycleDurationSeconds     prometheus.Histogram
	EventsSkippedTotal       *prometheus.CounterVec
	Opportunities            *prometheus.GaugeVec
	OddsAPIRequestsRemaining prometheus.Gauge
	ProviderRequestsTotal    *prometheus.CounterVec
	PublishedMessagesTotal   *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Pipeline cycles by result",
		}, []string{"result"}),

		CycleDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one fetch, merge and analyse cycle",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		EventsSkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_skipped_total",
			Help:      "Events dropped from a cycle by reason",
		}, []string{"reason"}),

		Opportunities: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "opportunities",
			Help:      "Arbitrage opportunities in the latest snapshot",
		}, []string{"view", "kind"}),

		OddsAPIRequestsRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "odds_api_requests_remaining",
			Help:      "Quota left on the bookmaker feed as reported by the API",
		}),

		ProviderRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Outbound provider requests by provider and result",
		}, []string{"provider", "result"}),

		PublishedMessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_messages_total",
			Help:      "Opportunity messages written to Kafka by result",
		}, []string{"result"}),
	}
}

// ObserveProvider counts one provider request
func (m *Metrics) ObserveProvider(provider string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.ProviderRequestsTotal.WithLabelValues(provider, result).Inc()
}
