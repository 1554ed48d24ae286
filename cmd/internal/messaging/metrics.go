package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the messaging core's Prometheus instruments.
// A nil *Metrics is valid and turns every record call into a no-op, so tests
// and callers that do not care about metrics can pass nil.
type Metrics struct {
	connections   prometheus.Gauge
	messagesSent  *prometheus.CounterVec
	sendRejected  *prometheus.CounterVec
	framesDropped prometheus.Counter
}

// NewMetrics registers the messaging instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vroom",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Live websocket connections currently registered.",
		}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vroom",
			Subsystem: "messaging",
			Name:      "messages_sent_total",
			Help:      "Messages persisted, labeled by message type.",
		}, []string{"type"}),
		sendRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vroom",
			Subsystem: "messaging",
			Name:      "sends_rejected_total",
			Help:      "Send intents rejected before persistence, labeled by reason.",
		}, []string{"reason"}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vroom",
			Subsystem: "ws",
			Name:      "frames_dropped_total",
			Help:      "Outbound frames dropped due to backpressure or closed clients.",
		}),
	}
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) messageSent(kind Kind) {
	if m != nil {
		m.messagesSent.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) sendRejectedWith(reason string) {
	if m != nil {
		m.sendRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) frameDropped() {
	if m != nil {
		m.framesDropped.Inc()
	}
}
