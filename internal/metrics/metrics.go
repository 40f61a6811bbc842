// Package metrics defines the Prometheus collectors for the realtime server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "excelidraw"

// Metrics groups the collectors shared by the registry and the socket handler.
type Metrics struct {
	Connections     prometheus.Gauge
	Memberships     prometheus.Gauge
	Admissions      *prometheus.CounterVec // result=accepted|rejected
	Messages        *prometheus.CounterVec // type
	ProtocolErrors  *prometheus.CounterVec // reason
	Broadcasts      prometheus.Counter
	Deliveries      prometheus.Counter
	SendFailures    prometheus.Counter
	PersistDuration prometheus.Histogram
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Live registered socket connections.",
		}),
		Memberships: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "room_memberships",
			Help:      "Total (connection, room) membership pairs.",
		}),
		Admissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "admissions_total",
			Help:      "Socket admission attempts by result.",
		}, []string{"result"}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "messages_total",
			Help:      "Inbound client messages by type.",
		}, []string{"type"}),
		ProtocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "errors_total",
			Help:      "Error replies sent to clients by reason.",
		}, []string{"reason"}),
		Broadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Room broadcasts performed.",
		}),
		Deliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "deliveries_total",
			Help:      "Messages enqueued to member connections by broadcasts.",
		}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "send_failures_total",
			Help:      "Broadcast sends that failed and pruned the target connection.",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "persist_duration_seconds",
			Help:      "Time spent writing chat messages to the message log.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
