// Package telemetry exposes prometheus collectors for relay operation.
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the relay's prometheus collectors.
type Metrics struct {
	FramesReceived    prometheus.Counter
	EventsAdmitted    prometheus.Counter
	AdmissionRejected *prometheus.CounterVec
	Deliveries        prometheus.Counter
	DeliveriesDropped prometheus.Counter
	LiveSubscriptions prometheus.Gauge
	OpenConnections   prometheus.Gauge
}

// New registers the relay collectors with the given registerer. Passing
// nil uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventrelay_frames_received_total",
			Help: "Inbound wire frames parsed by the dispatcher.",
		}),
		EventsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventrelay_events_admitted_total",
			Help: "Events that cleared the admission pipeline and were persisted.",
		}),
		AdmissionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventrelay_admission_rejected_total",
			Help: "Admission failures by numeric status code.",
		}, []string{"code"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventrelay_deliveries_total",
			Help: "Events delivered to matched subscriptions.",
		}),
		DeliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventrelay_deliveries_dropped_total",
			Help: "Matched deliveries dropped because the connection buffer was full.",
		}),
		LiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventrelay_live_subscriptions",
			Help: "Currently registered live subscriptions.",
		}),
		OpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventrelay_open_connections",
			Help: "Currently open client connections.",
		}),
	}
	reg.MustRegister(
		m.FramesReceived,
		m.EventsAdmitted,
		m.AdmissionRejected,
		m.Deliveries,
		m.DeliveriesDropped,
		m.LiveSubscriptions,
		m.OpenConnections,
	)
	return m
}

// The increment helpers below are nil-safe so components can run
// without a metrics sink wired in, as tests do.

// RecordRejection counts one admission failure under its status code.
func (m *Metrics) RecordRejection(code int) {
	if m == nil {
		return
	}
	m.AdmissionRejected.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordFrame counts one parsed inbound frame.
func (m *Metrics) RecordFrame() {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
}

// RecordAdmission counts one persisted event.
func (m *Metrics) RecordAdmission() {
	if m == nil {
		return
	}
	m.EventsAdmitted.Inc()
}

// RecordDelivery counts one delivered or dropped fan-out send.
func (m *Metrics) RecordDelivery(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.Deliveries.Inc()
	} else {
		m.DeliveriesDropped.Inc()
	}
}

// SubscriptionsChanged moves the live subscription gauge.
func (m *Metrics) SubscriptionsChanged(delta int) {
	if m == nil {
		return
	}
	m.LiveSubscriptions.Add(float64(delta))
}

// ConnectionsChanged moves the open connection gauge.
func (m *Metrics) ConnectionsChanged(delta int) {
	if m == nil {
		return
	}
	m.OpenConnections.Add(float64(delta))
}
