package proforma

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for proforma operations.
type Metrics struct {
	created     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	degraded    *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the proforma collectors against registerer. A nil
// registerer shares one set of collectors on the default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proforma_created_total",
		Help: "Proformas created partitioned by initial status.",
	}, []string{"status"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proforma_transitions_total",
		Help: "Lifecycle transitions partitioned by action and outcome.",
	}, []string{"action", "outcome"})
	degraded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proforma_notifications_failed_total",
		Help: "Notifications that failed after a committed transition.",
	}, []string{"kind"})
	registerer.MustRegister(created, transitions, degraded)
	return &Metrics{created: created, transitions: transitions, degraded: degraded}
}

func (m *Metrics) observeCreated(status Status) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) observeTransition(action Action, err error) {
	if m == nil {
		return
	}
	outcome := "committed"
	if err != nil {
		outcome = string(Kind(err))
	}
	m.transitions.WithLabelValues(string(action), outcome).Inc()
}

func (m *Metrics) observeNotificationFailure(kind NotificationKind) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(string(kind)).Inc()
}
