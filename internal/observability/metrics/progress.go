package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/chapterflow/internal/core/domain"
)

// ProgressMetrics implements progress.Observer and tracks breaker state.
type ProgressMetrics struct {
	sessions     prometheus.Gauge
	delivered    *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func NewProgressMetrics(service string, reg prometheus.Registerer) *ProgressMetrics {
	labels := prometheus.Labels{"service": service}
	m := &ProgressMetrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "progress",
			Name:        "websocket_sessions",
			Help:        "Live websocket sessions.",
			ConstLabels: labels,
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "progress",
			Name:        "events_delivered_total",
			Help:        "Progress events handed to a session or relay.",
			ConstLabels: labels,
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "progress",
			Name:        "events_dropped_total",
			Help:        "Progress events dropped by reason.",
			ConstLabels: labels,
		}, []string{"type", "reason"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "resilience",
			Name:        "breaker_open",
			Help:        "1 while the circuit breaker for an operation is not closed.",
			ConstLabels: labels,
		}, []string{"operation"}),
	}
	reg.MustRegister(m.sessions, m.delivered, m.dropped, m.breakerState)
	return m
}

func (m *ProgressMetrics) SessionOpened() { m.sessions.Inc() }
func (m *ProgressMetrics) SessionClosed() { m.sessions.Dec() }

func (m *ProgressMetrics) EventDelivered(kind domain.EventKind) {
	m.delivered.WithLabelValues(kind.String()).Inc()
}

func (m *ProgressMetrics) EventDropped(kind domain.EventKind, reason string) {
	m.dropped.WithLabelValues(kind.String(), reason).Inc()
}

func (m *ProgressMetrics) BreakerStateChanged(operation, state string) {
	v := 0.0
	if state != "closed" {
		v = 1
	}
	m.breakerState.WithLabelValues(operation).Set(v)
}
