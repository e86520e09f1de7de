// Package metrics holds the Prometheus collectors for authenticated request execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes
const (
	OutcomeSuccess      = "success"
	OutcomeAPIError     = "api_error"
	OutcomeTransport    = "transport_error"
	OutcomeUnauthorized = "unauthorized"
)

// Refresh results
const (
	RefreshOK     = "ok"
	RefreshFailed = "failed"
)

// Metrics groups the collectors of one client.
type Metrics struct {
	// RequestsTotal tracks executed requests by outcome
	RequestsTotal *prometheus.CounterVec

	// RequestDuration tracks transport round trip latency in seconds
	RequestDuration prometheus.Histogram

	// RefreshesTotal tracks access token refreshes by kind (session/impersonation) and result
	RefreshesTotal *prometheus.CounterVec

	// RetriesTotal tracks requests replayed after a refresh
	RetriesTotal prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stitch_auth_requests_total",
				Help: "Total authenticated requests by outcome",
			},
			[]string{"outcome"},
		),
		RequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stitch_auth_request_duration_seconds",
				Help:    "Transport round trip duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		RefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stitch_auth_refreshes_total",
				Help: "Total access token refreshes by kind and result",
			},
			[]string{"kind", "result"},
		),
		RetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "stitch_auth_retries_total",
				Help: "Total requests replayed after a refresh",
			},
		),
	}
}
