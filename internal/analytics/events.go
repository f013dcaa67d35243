package analytics

import (
	"context"
	"time"
)

type EventType string

const (
	EventQuery     EventType = "query"
	EventRefreshed EventType = "knowledge.refreshed"
)

// QueryEvent describes one answered question.
type QueryEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Outcome    string    `json:"outcome"`
	Confidence float64   `json:"confidence"`
	Retrieved  int       `json:"retrieved"`
	Sources    []string  `json:"sources,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Channel    string    `json:"channel,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// RefreshEvent is published after each successful knowledge refresh.
type RefreshEvent struct {
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id"`
	Indexed    int       `json:"indexed"`
	Failed     int       `json:"failed"`
	Total      int       `json:"total"`
	DurationMs int64     `json:"duration_ms"`
	Model      string    `json:"model"`
	Timestamp  time.Time `json:"timestamp"`
}

type channelKey struct{}

// WithChannel tags ctx with the surface a question arrived on ("http",
// "telegram", "rpc").
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey{}, channel)
}

// ChannelFrom returns the channel set by WithChannel, or "".
func ChannelFrom(ctx context.Context) string {
	ch, _ := ctx.Value(channelKey{}).(string)
	return ch
}
