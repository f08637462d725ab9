package identity

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts credential store operations. A nil *Metrics is a no-op.
type Metrics struct {
	ops *prometheus.CounterVec
}

// NewMetrics registers identity collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_identity_operations_total",
			Help: "Credential store operations by operation and result.",
		}, []string{"op", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.ops)
	}
	return m
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsInvalidInput(err):
		return "invalid"
	case IsConflict(err):
		return "conflict"
	case IsInvalidCredentials(err):
		return "denied"
	default:
		return "error"
	}
}
