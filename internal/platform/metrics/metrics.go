package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the Telegram transport
type Metrics struct {
	UpdatesReceived *prometheus.CounterVec
	PollErrors      prometheus.Counter
	QueuedEvents    prometheus.Gauge
}

// New creates and registers the transport metrics on reg, or on the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		UpdatesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_updates_received_total",
			Help: "Telegram updates received, by normalized event kind",
		}, []string{"kind"}),
		PollErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_poll_errors_total",
			Help: "Failed getUpdates calls",
		}),
		QueuedEvents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_queued_events",
			Help: "Events waiting behind an earlier event for the same member",
		}),
	}
}

// IncUpdate increments the received counter for kind
func (m *Metrics) IncUpdate(kind string) {
	if m == nil {
		return
	}
	m.UpdatesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncPollError() {
	if m == nil {
		return
	}
	m.PollErrors.Inc()
}

func (m *Metrics) AddQueued(delta float64) {
	if m == nil {
		return
	}
	m.QueuedEvents.Add(delta)
}
