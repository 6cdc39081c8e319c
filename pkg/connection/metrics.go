package connection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for one connection. A nil
// *Metrics disables instrumentation; every recording method is nil-safe.
type Metrics struct {
	packetsSent      prometheus.Counter
	packetsReceived  prometheus.Counter
	reconnects       prometheus.Counter
	watchdogExpiries prometheus.Counter
	decodeErrors     prometheus.Counter
	pendingReplies   prometheus.Gauge
}

// NewMetrics registers connection metrics with the given registry.
// A nil registry falls back to prometheus.DefaultRegisterer. Labels are
// attached as constant labels, typically {"room": name}.
func NewMetrics(registry prometheus.Registerer, labels prometheus.Labels) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "euphony",
			Subsystem:   "connection",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	return &Metrics{
		packetsSent:      counter("packets_sent_total", "Packets transmitted to the server."),
		packetsReceived:  counter("packets_received_total", "Packets received from the server."),
		reconnects:       counter("reconnects_total", "Reconnect attempts after connection loss."),
		watchdogExpiries: counter("watchdog_expiries_total", "Forced reconnects due to ping silence."),
		decodeErrors:     counter("decode_errors_total", "Frames that failed to decode as packets."),
		pendingReplies: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "euphony",
			Subsystem:   "connection",
			Name:        "pending_replies",
			Help:        "Commands awaiting a correlated reply.",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) packetSent() {
	if m != nil {
		m.packetsSent.Inc()
	}
}

func (m *Metrics) packetReceived() {
	if m != nil {
		m.packetsReceived.Inc()
	}
}

func (m *Metrics) reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) watchdogExpired() {
	if m != nil {
		m.watchdogExpiries.Inc()
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.pendingReplies.Set(float64(n))
	}
}
