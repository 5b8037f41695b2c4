// Package metrics exposes Prometheus collectors for parameter tree traffic.
//
// All methods are safe to call on a nil *Metrics, which disables
// collection.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paramtree"

// Drop reasons used with MessageDropped.
const (
	ReasonDecode    = "decode"
	ReasonNotFound  = "not_found"
	ReasonAccess    = "access"
	ReasonType      = "type"
	ReasonHandshake = "handshake"
	ReasonSend      = "send"
	ReasonSchedule  = "schedule"
)

// Metrics holds the collectors of one device.
type Metrics struct {
	received *prometheus.CounterVec
	sent     *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	pushes   prometheus.Counter
	nodes    prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg uses
// a fresh private registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Wire messages received, by protocol.",
		}, []string{"protocol"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Wire messages sent, by protocol.",
		}, []string{"protocol"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Wire messages dropped, by protocol and reason.",
		}, []string{"protocol", "reason"}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Values pushed into parameters.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Nodes in the tree, including the root.",
		}),
	}
	for _, c := range []prometheus.Collector{m.received, m.sent, m.dropped, m.pushes, m.nodes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MessageReceived counts an inbound wire message.
func (m *Metrics) MessageReceived(protocol string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(protocol).Inc()
}

// MessageSent counts an outbound wire message.
func (m *Metrics) MessageSent(protocol string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(protocol).Inc()
}

// MessageDropped counts a message that was discarded.
func (m *Metrics) MessageDropped(protocol, reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(protocol, reason).Inc()
}

// IncPushes counts a value pushed into a parameter.
func (m *Metrics) IncPushes() {
	if m == nil {
		return
	}
	m.pushes.Inc()
}

// SetNodes records the number of nodes in the tree.
func (m *Metrics) SetNodes(n int) {
	if m == nil {
		return
	}
	m.nodes.Set(float64(n))
}

// Handler serves the metrics of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
