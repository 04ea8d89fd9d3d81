package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics instruments the collaboration relay
type RelayMetrics struct {
	ActiveConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	BroadcastsTotal   prometheus.Counter
	DeliveryFailures  prometheus.Counter
	MessagesRouted    *prometheus.CounterVec
}

// NewRelayMetrics builds and registers the relay metric set. A nil registerer
// leaves the metrics unregistered, which is what tests want.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "filecollab_ws_active_connections",
			Help: "Number of open websocket connections.",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "filecollab_ws_active_rooms",
			Help: "Number of files with at least one connected editor.",
		}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filecollab_ws_broadcasts_total",
			Help: "Total broadcast fan-outs performed.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filecollab_ws_delivery_failures_total",
			Help: "Messages dropped because a client could not keep up.",
		}),
		MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filecollab_ws_messages_routed_total",
			Help: "Inbound client messages routed, by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ActiveConnections,
			m.ActiveRooms,
			m.BroadcastsTotal,
			m.DeliveryFailures,
			m.MessagesRouted,
		)
	}
	return m
}
