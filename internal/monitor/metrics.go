package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pricewatch"

// Pass results.
const (
	passSuccess    = "success"
	passFailed     = "failed"
	passInProgress = "in_progress"
)

// Product outcomes.
const (
	outcomeUpdated       = "updated"
	outcomeScrapeFailed  = "scrape_failed"
	outcomePersistFailed = "persist_failed"
	outcomeUnexpected    = "unexpected"
)

type metrics struct {
	passes        *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	duration      prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "passes_total",
			Help:      "Monitoring passes by result.",
		}, []string{"result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "product_outcomes_total",
			Help:      "Per-product pipeline outcomes.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_total",
			Help:      "Notifications dispatched by type and result.",
		}, []string{"type", "result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall-clock duration of monitoring passes.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.passes, m.outcomes, m.notifications, m.duration)
	}

	return m
}
