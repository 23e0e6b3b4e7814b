// Package metrics exposes prometheus instrumentation of the wallet session.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pinwallet"

// Metrics holds the collectors
type Metrics struct {
	onboardingRuns    *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec
	reconcilerActions *prometheus.CounterVec
	connected         prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		onboardingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "onboarding_runs_total",
			Help:      "Onboarding runs by terminal outcome.",
		}, []string{"outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "onboarding_step_duration_seconds",
			Help:      "Duration of onboarding steps.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"step", "result"}),
		reconcilerActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciler_actions_total",
			Help:      "Corrective actions issued by the sync reconciler.",
		}, []string{"action", "result"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wallet_connected",
			Help:      "1 when a wallet session is connected.",
		}),
	}
	reg.MustRegister(m.onboardingRuns, m.stepDuration, m.reconcilerActions, m.connected)
	return m
}

// OnboardingFinished counts a terminal run
func (m *Metrics) OnboardingFinished(outcome string) {
	if m == nil {
		return
	}
	m.onboardingRuns.WithLabelValues(outcome).Inc()
}

// ObserveStep records how long a step took
func (m *Metrics) ObserveStep(step string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step, result(err)).Observe(time.Since(start).Seconds())
}

// ReconcilerAction counts a corrective action
func (m *Metrics) ReconcilerAction(action string, err error) {
	if m == nil {
		return
	}
	m.reconcilerActions.WithLabelValues(action, result(err)).Inc()
}

// SetConnected updates the connected gauge
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
