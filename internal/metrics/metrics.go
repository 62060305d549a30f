package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"time"
)

const (
	namespace = "alert_notifier"

	ResultDelivered   = "delivered"
	ResultFailed      = "failed"
	ResultSkipped     = "skipped"
	ResultFulfilled   = "fulfilled"
	ResultUnconfirmed = "unconfirmed"
)

// Metrics groups the collectors updated by the evaluation cycle.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CyclesTotal        prometheus.Counter
	CycleDuration      prometheus.Histogram
	ActiveAlerts       prometheus.Gauge
	QuoteFetchFailures *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	FulfillmentsTotal  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "The total number of completed evaluation cycles",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one evaluation cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Active alerts seen by the last cycle",
		}),
		QuoteFetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quote_fetch_failures_total",
				Help:      "Quote lookups that yielded no price",
			},
			[]string{"reason"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification attempts for triggered alerts by result",
			},
			[]string{"result"},
		),
		FulfillmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fulfillments_total",
				Help:      "Fulfillment writes after a delivered notification by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(m.CyclesTotal)
	reg.MustRegister(m.CycleDuration)
	reg.MustRegister(m.ActiveAlerts)
	reg.MustRegister(m.QuoteFetchFailures)
	reg.MustRegister(m.NotificationsTotal)
	reg.MustRegister(m.FulfillmentsTotal)

	return m
}

func (m *Metrics) ObserveCycle(active int, took time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
	m.ActiveAlerts.Set(float64(active))
	m.CycleDuration.Observe(took.Seconds())
}

func (m *Metrics) QuoteFailed(reason string) {
	if m == nil {
		return
	}
	m.QuoteFetchFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Fulfillment(result string) {
	if m == nil {
		return
	}
	m.FulfillmentsTotal.WithLabelValues(result).Inc()
}
