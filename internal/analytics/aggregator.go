package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/kafka"
)

const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalQueries           int64            `json:"total_queries"`
	Outcomes               map[string]int64 `json:"outcomes"`
	Channels               map[string]int64 `json:"channels"`
	CacheHits              int64            `json:"cache_hits"`
	CacheMisses            int64            `json:"cache_misses"`
	AvgConfidence          float64          `json:"avg_confidence"`
	LowConfidenceCount     int64            `json:"low_confidence_count"`
	AvgLatencyMs           float64          `json:"avg_latency_ms"`
	P50LatencyMs           int64            `json:"p50_latency_ms"`
	P95LatencyMs           int64            `json:"p95_latency_ms"`
	P99LatencyMs           int64            `json:"p99_latency_ms"`
	TopQuestions           []QueryCount     `json:"top_questions"`
	LowConfidenceQuestions []QueryCount     `json:"low_confidence_questions"`
	QueriesPerMinute       float64          `json:"queries_per_minute"`
	Refreshes              int64            `json:"refreshes"`
	LastRefresh            *RefreshEvent    `json:"last_refresh,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds query and refresh events into running statistics.
type Aggregator struct {
	mu             sync.RWMutex
	lowConfidence  float64
	totalQueries   int64
	cacheHits      int64
	confidenceSum  float64
	lowCount       int64
	outcomes       map[string]int64
	channels       map[string]int64
	latencies      []int64
	queryCounts    map[string]int64
	lowConfQueries map[string]int64
	refreshes      int64
	lastRefresh    *RefreshEvent
	startTime      time.Time
	logger         *slog.Logger
}

// NewAggregator counts answers scoring below lowConfidence as low-confidence
// questions.
func NewAggregator(lowConfidence float64) *Aggregator {
	return &Aggregator{
		lowConfidence:  lowConfidence,
		outcomes:       make(map[string]int64),
		channels:       make(map[string]int64),
		latencies:      make([]int64, 0, 1024),
		queryCounts:    make(map[string]int64),
		lowConfQueries: make(map[string]int64),
		startTime:      time.Now(),
		logger:         slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent decodes a query or refresh event by its "type" field. Unknown
// or malformed events are logged and dropped so they are not redelivered.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(_ context.Context, _ []byte, value []byte) error {
		if err := agg.Record(value); err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
		}
		return nil
	}
}

// Publish records events directly, standing in for a Kafka producer.
func (a *Aggregator) Publish(_ context.Context, events ...kafka.Event) error {
	for _, e := range events {
		data, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("marshaling %s event: %w", e.Type, err)
		}
		if err := a.Record(data); err != nil {
			return err
		}
	}
	return nil
}

// Record applies one JSON-encoded event.
func (a *Aggregator) Record(value []byte) error {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return fmt.Errorf("decoding event type: %w", err)
	}
	switch head.Type {
	case EventQuery:
		e, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			return err
		}
		a.recordQuery(e)
	case EventRefreshed:
		e, err := kafka.DecodeJSON[RefreshEvent](value)
		if err != nil {
			return err
		}
		a.recordRefresh(e)
	default:
		return fmt.Errorf("unknown event type %q", head.Type)
	}
	return nil
}

func (a *Aggregator) recordQuery(e QueryEvent) {
	q := strings.ToLower(strings.Join(strings.Fields(e.Query), " "))

	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalQueries++
	if e.CacheHit {
		a.cacheHits++
	}
	a.outcomes[e.Outcome]++
	channel := e.Channel
	if channel == "" {
		channel = "unknown"
	}
	a.channels[channel]++
	a.confidenceSum += e.Confidence
	if e.Confidence < a.lowConfidence {
		a.lowCount++
		a.lowConfQueries[q]++
	}
	a.queryCounts[q]++
	if len(a.latencies) == maxLatencySamples {
		a.latencies = a.latencies[1:]
	}
	a.latencies = append(a.latencies, e.LatencyMs)
}

func (a *Aggregator) recordRefresh(e RefreshEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshes++
	if a.lastRefresh == nil || !e.Timestamp.Before(a.lastRefresh.Timestamp) {
		last := e
		a.lastRefresh = &last
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:           a.totalQueries,
		Outcomes:               copyCounts(a.outcomes),
		Channels:               copyCounts(a.channels),
		CacheHits:              a.cacheHits,
		CacheMisses:            a.totalQueries - a.cacheHits,
		LowConfidenceCount:     a.lowCount,
		TopQuestions:           topN(a.queryCounts, 10),
		LowConfidenceQuestions: topN(a.lowConfQueries, 10),
		Refreshes:              a.refreshes,
	}
	if a.lastRefresh != nil {
		last := *a.lastRefresh
		stats.LastRefresh = &last
	}
	if a.totalQueries > 0 {
		stats.AvgConfidence = a.confidenceSum / float64(a.totalQueries)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.totalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then alphabetically for a stable listing.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
