// Package cache stores synthesized answers in Redis keyed by the normalized
// question.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/redis"
)

const keyPrefix = "answer:"

// Answer is a cached synthesized answer.
type Answer struct {
	Answer     string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources,omitempty"`
}

// Stats reports cache effectiveness since process start.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Entries int64   `json:"entries"`
}

type AnswerCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *AnswerCache {
	return &AnswerCache{
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "answer-cache"),
	}
}

// Get returns the cached answer for query. Redis errors count as misses.
func (c *AnswerCache) Get(ctx context.Context, query string) (Answer, bool) {
	key := Key(query)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return Answer{}, false
	}
	var a Answer
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return Answer{}, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	return a, true
}

// Set stores a. Failures are logged and otherwise ignored.
func (c *AnswerCache) Set(ctx context.Context, query string, a Answer) {
	key := Key(query)
	data, err := json.Marshal(a)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops every cached answer and returns how many were removed.
func (c *AnswerCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("invalidating answer cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *AnswerCache) Stats(ctx context.Context) Stats {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	n, err := c.client.CountByPattern(ctx, keyPrefix+"*")
	if err != nil {
		c.logger.Warn("counting cache entries failed", "error", err)
	}
	s.Entries = n
	return s
}

func (c *AnswerCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}

// Key maps a question to its cache key. Questions differing only in case or
// whitespace share a key.
func Key(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}
