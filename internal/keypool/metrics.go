package keypool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes.
const (
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomeExhausted = "exhausted"
)

// Metrics holds the credential pool collectors.
type Metrics struct {
	Requests          *prometheus.CounterVec
	ActiveCredentials prometheus.Gauge
}

// NewMetrics creates and registers the pool metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkweaver",
			Subsystem: "keypool",
			Name:      "requests_total",
			Help:      "Provider calls routed through the credential pool by outcome",
		}, []string{"outcome"}),
		ActiveCredentials: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "linkweaver",
			Subsystem: "keypool",
			Name:      "active_credentials",
			Help:      "Active credentials after the last recalibration",
		}),
	}
}

func (m *Metrics) request(outcome string) {
	if m != nil {
		m.Requests.WithLabelValues(outcome).Inc()
	}
}
