package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAskCountsByOutcome(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveAsk("answered", "miss", 200*time.Millisecond, 0.7)
	m.ObserveAsk("answered", "hit", time.Millisecond, 0.7)
	m.ObserveAsk("error", "miss", time.Second, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AsksTotal.WithLabelValues("answered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AsksTotal.WithLabelValues("error")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAsk("answered", "miss", time.Second, 0.5)
		m.ObserveRefresh(2, 1, time.Second)
		m.SetIndexSize(3)
		m.CacheHit()
		m.BreakerState("chat", "open")
	})
}

func TestBreakerStateValue(t *testing.T) {
	assert.Equal(t, 0.0, BreakerStateValue("closed"))
	assert.Equal(t, 1.0, BreakerStateValue("open"))
	assert.Equal(t, 2.0, BreakerStateValue("half-open"))
}
