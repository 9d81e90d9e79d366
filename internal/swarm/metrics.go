package swarm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	outcomeRegistered = "registered"
	outcomeRejected   = "rejected"
	outcomeConnected  = "connected"
	outcomeDenied     = "denied"
	outcomeError      = "error"
)

// Metrics holds the Prometheus metrics for a swarm.
type Metrics struct {
	Registrations  *prometheus.CounterVec
	Connects       *prometheus.CounterVec
	KnownAddresses prometheus.Gauge
	Running        prometheus.Gauge
}

// NewMetrics creates metrics in the given namespace and registers them with
// reg. A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "registrations_total",
			Help:      "Peer address registrations by outcome",
		}, []string{"outcome"}),
		Connects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "connects_total",
			Help:      "Connect requests by outcome",
		}, []string{"outcome"}),
		KnownAddresses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "known_addresses",
			Help:      "Number of registered peer addresses",
		}),
		Running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "running",
			Help:      "1 while the swarm is running",
		}),
	}
}

// Helpers are no-ops on a nil receiver.

func (m *Metrics) registration(outcome string) {
	if m != nil {
		m.Registrations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) connect(outcome string) {
	if m != nil {
		m.Connects.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) known(n int) {
	if m != nil {
		m.KnownAddresses.Set(float64(n))
	}
}

func (m *Metrics) running(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Running.Set(1)
	} else {
		m.Running.Set(0)
	}
}
