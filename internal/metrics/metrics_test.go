package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.OnboardingFinished("connected")
	m.OnboardingFinished("connected")
	m.ReconcilerAction("connect", errors.New("no session"))
	m.ObserveStep("issue_token", time.Now(), nil)
	m.SetConnected(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.onboardingRuns.WithLabelValues("connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcilerActions.WithLabelValues("connect", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OnboardingFinished("connected")
		m.ObserveStep("list_wallets", time.Now(), nil)
		m.ReconcilerAction("disconnect", nil)
		m.SetConnected(false)
	})
}
