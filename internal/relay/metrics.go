package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the relay's Prometheus collectors.
type Metrics struct {
	OnlineUsers     prometheus.Gauge
	ActiveSessions  prometheus.Gauge
	BroadcastPasses prometheus.Counter
	SendFailures    prometheus.Counter
	InboundEvents   *prometheus.CounterVec
	ProtocolErrors  *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OnlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pairchat",
			Name:      "online_users",
			Help:      "Number of identities currently registered.",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pairchat",
			Name:      "active_sessions",
			Help:      "Number of open two-party chat sessions.",
		}),
		BroadcastPasses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pairchat",
			Name:      "broadcast_passes_total",
			Help:      "Online-user broadcast passes performed.",
		}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pairchat",
			Name:      "send_failures_total",
			Help:      "Sends rejected by a sink, each one tearing down its identity.",
		}),
		InboundEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairchat",
			Name:      "inbound_events_total",
			Help:      "Inbound client events routed, by type.",
		}, []string{"type"}),
		ProtocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairchat",
			Name:      "protocol_errors_total",
			Help:      "Inbound events ignored as protocol misuse, by code.",
		}, []string{"code"}),
	}
}
