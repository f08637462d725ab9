package realtime

import "github.com/prometheus/client_golang/prometheus"

// Frame outcomes recorded by Metrics.
const (
	OutcomeDelivered           = "delivered"
	OutcomeRecipientMissing    = "recipient_missing"
	OutcomeDeliveryFailed      = "delivery_failed"
	OutcomeSenderNotified      = "sender_notified"
	OutcomeNotificationDropped = "notification_dropped"
	OutcomeInvalid             = "invalid"
	OutcomeIgnored             = "ignored"
	OutcomeRateLimited         = "rate_limited"
)

// Metrics holds the relay collectors. A nil *Metrics records nothing.
type Metrics struct {
	connections prometheus.Gauge
	frames      *prometheus.CounterVec
}

// NewMetrics registers relay collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_ws_connections",
			Help: "Open relay websocket connections.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_total",
			Help: "Inbound relay frames by action and outcome.",
		}, []string{"action", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.frames)
	}
	return m
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

func (m *Metrics) frame(action, outcome string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "none"
	}
	m.frames.WithLabelValues(action, outcome).Inc()
}
