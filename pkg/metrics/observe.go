package metrics

import "time"

// The helpers below accept a nil receiver so components can run without a
// metrics registry (CLI tools, tests).

func (m *Metrics) ObserveAsk(outcome, cacheStatus string, elapsed time.Duration, confidence float64) {
	if m == nil {
		return
	}
	m.AsksTotal.WithLabelValues(outcome).Inc()
	m.AskLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	if outcome != "error" {
		m.AnswerConfidence.Observe(confidence)
	}
}

func (m *Metrics) ObserveRefresh(indexed, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RefreshDocuments.WithLabelValues("indexed").Add(float64(indexed))
	m.RefreshDocuments.WithLabelValues("failed").Add(float64(failed))
	m.RefreshDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) SetIndexSize(n int) {
	if m == nil {
		return
	}
	m.IndexDocuments.Set(float64(n))
}

func (m *Metrics) ExternalFailure(service, operation string) {
	if m == nil {
		return
	}
	m.ExternalFailures.WithLabelValues(service, operation).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) BreakerState(name, state string) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(BreakerStateValue(state))
}

func (m *Metrics) BotMessage(kind string) {
	if m == nil {
		return
	}
	m.BotMessagesTotal.WithLabelValues(kind).Inc()
}
