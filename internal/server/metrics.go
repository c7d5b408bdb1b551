package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the transport-level collectors.
type Metrics struct {
	Upgrades    *prometheus.CounterVec
	RateLimited prometheus.Counter
}

// NewMetrics registers the transport collectors with reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Upgrades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairchat",
			Name:      "ws_upgrades_total",
			Help:      "WebSocket upgrade attempts by result.",
		}, []string{"result"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pairchat",
			Name:      "rate_limited_events_total",
			Help:      "Inbound frames discarded by the per-connection rate limiter.",
		}),
	}
}
