// Package diagnostics exposes the node's operational surface: a liveness
// probe and Prometheus gauges/counters over the Connection Registry and
// Participant Service, grounded on DMRHub's internal/metrics package.
package diagnostics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chatfabric/relay-node/internal/domain/model"
)

// Metrics holds the node's Prometheus collectors.
type Metrics struct {
	ParticipantsOnline  prometheus.Gauge
	PendingConnections  prometheus.Gauge
	DeliveriesTotal     *prometheus.CounterVec
	ContactLookupsTotal prometheus.Counter
	PassoversTotal      prometheus.Counter
}

// NewMetrics builds and registers the node's collectors against the default
// registry, the way DMRHub's NewMetrics does for its KV store collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		ParticipantsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_participants_online",
			Help: "Number of participants with at least one attached device connection.",
		}),
		PendingConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_pending_connections",
			Help: "Number of TCP connections accepted but not yet authenticated.",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Direct message relay attempts by outcome.",
		}, []string{"state"}),
		ContactLookupsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_contact_lookups_total",
			Help: "Total MATCH_CONTACTS requests resolved.",
		}),
		PassoversTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_passovers_total",
			Help: "Total direct messages handed over to another node.",
		}),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	prometheus.MustRegister(m.ParticipantsOnline)
	prometheus.MustRegister(m.PendingConnections)
	prometheus.MustRegister(m.DeliveriesTotal)
	prometheus.MustRegister(m.ContactLookupsTotal)
	prometheus.MustRegister(m.PassoversTotal)
}

// RecordDelivery increments the delivery outcome counter (e.g. "delivered",
// "failed", "sent" — the wire.DeliveryState names).
func (m *Metrics) RecordDelivery(state string) {
	m.DeliveriesTotal.WithLabelValues(state).Inc()
}

// RecordContactLookup increments the MATCH_CONTACTS counter.
func (m *Metrics) RecordContactLookup() {
	m.ContactLookupsTotal.Inc()
}

// RecordPassover increments the cross-node handover counter.
func (m *Metrics) RecordPassover() {
	m.PassoversTotal.Inc()
}

// Refresh sets the occupancy gauges from a registry snapshot.
func (m *Metrics) Refresh(stats model.HubStats) {
	m.ParticipantsOnline.Set(float64(stats.TotalUsers))
	m.PendingConnections.Set(float64(stats.TotalConnections - stats.TotalUsers))
}

// StatsProvider is the slice of the Connection Registry the metrics
// refresher polls.
type StatsProvider interface {
	Stats() model.HubStats
}
