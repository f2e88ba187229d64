package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
)

// Metrics holds the Prometheus metrics of the sync core.
// A nil *Metrics disables recording.
type Metrics struct {
	LiveListeners      prometheus.Gauge
	SubscriptionEvents *prometheus.CounterVec
	SessionStatus      *prometheus.GaugeVec
	Deletions          *prometheus.CounterVec
	OrphanedObjects    prometheus.Counter
	StreamDrops        prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		LiveListeners: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "commandability",
				Name:      "live_listeners",
				Help:      "Number of live backend listeners held by the aggregator",
			},
		),
		SubscriptionEvents: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "commandability",
				Name:      "subscription_events_total",
				Help:      "Backend listener events by outcome",
			},
			[]string{"result"}, // result=accepted/discarded
		),
		SessionStatus: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "commandability",
				Name:      "session_status",
				Help:      "1 for the current session status, 0 otherwise",
			},
			[]string{"status"},
		),
		Deletions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "commandability",
				Name:      "deletions_total",
				Help:      "Coordinated deletions by outcome",
			},
			[]string{"outcome"}, // outcome=ok/partial/reauth_failed/invalid/error
		),
		OrphanedObjects: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "commandability",
				Name:      "orphaned_objects_total",
				Help:      "Stored objects left behind after their metadata was deleted",
			},
		),
		StreamDrops: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "commandability",
				Name:      "stream_drops_total",
				Help:      "Aggregate updates dropped for slow stream subscribers",
			},
		),
	}
}

func (m *Metrics) setListeners(n int) {
	if m == nil {
		return
	}
	m.LiveListeners.Set(float64(n))
}

func (m *Metrics) event(accepted bool) {
	if m == nil {
		return
	}
	result := "discarded"
	if accepted {
		result = "accepted"
	}
	m.SubscriptionEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) sessionStatus(status session.Status) {
	if m == nil {
		return
	}
	for _, s := range []session.Status{session.StatusPending, session.StatusResolved, session.StatusRejected} {
		v := 0.0
		if s == status {
			v = 1
		}
		m.SessionStatus.WithLabelValues(string(s)).Set(v)
	}
}

func (m *Metrics) deletion(outcome string, orphaned int) {
	if m == nil {
		return
	}
	m.Deletions.WithLabelValues(outcome).Inc()
	if orphaned > 0 {
		m.OrphanedObjects.Add(float64(orphaned))
	}
}

func (m *Metrics) streamDrop() {
	if m == nil {
		return
	}
	m.StreamDrops.Inc()
}
