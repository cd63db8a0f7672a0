package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "groupnotifier"

// Metrics holds the notifier's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	events       *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	tokensPruned prometheus.Counter
	tokensSwept  prometheus.Counter
	sweepRuns    *prometheus.CounterVec
	duration     prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Group change events processed, by change kind and outcome.",
		}, []string{"kind", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-token push delivery outcomes.",
		}, []string{"outcome"}),
		tokensPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_pruned_total",
			Help:      "Tokens deleted after the gateway reported them unregistered.",
		}),
		tokensSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_swept_total",
			Help:      "Expired tokens deleted by the sweep job.",
		}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Token sweep runs, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent processing one change event that required dispatch.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.events, m.deliveries, m.tokensPruned, m.tokensSwept, m.sweepRuns, m.duration)
	return m
}

// ObserveEvent counts one processed change event.
func (m *Metrics) ObserveEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, outcome).Inc()
}

// ObserveDispatch records the duration of a dispatch cycle.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

// ObserveDelivery counts one per-token delivery outcome.
func (m *Metrics) ObserveDelivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// TokenPruned counts one token removed after an unregistered response.
func (m *Metrics) TokenPruned() {
	if m == nil {
		return
	}
	m.tokensPruned.Inc()
}

// ObserveSweep records a sweep run and the number of tokens it removed.
func (m *Metrics) ObserveSweep(deleted int, err error) {
	if m == nil {
		return
	}
	m.tokensSwept.Add(float64(deleted))
	if err != nil {
		m.sweepRuns.WithLabelValues("error").Inc()
		return
	}
	m.sweepRuns.WithLabelValues("ok").Inc()
}
