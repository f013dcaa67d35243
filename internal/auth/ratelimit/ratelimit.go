// Package ratelimit bounds how often one client or conversation may hit the
// expensive ask path. Bucket is an in-process token bucket; Window is a
// fixed window kept in Redis and shared across replicas.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/redis"
)

// Limiter reports whether key may proceed, consuming one unit if so.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// entry tracks the token-bucket state for a single key.
type entry struct {
	tokens    float64
	lastCheck time.Time
}

// Bucket gives each key limit tokens per window, refilled continuously.
type Bucket struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewBucket(limit int, window time.Duration) *Bucket {
	return &Bucket{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (b *Bucket) Allow(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	e, exists := b.entries[key]
	if !exists {
		b.entries[key] = &entry{tokens: float64(b.limit - 1), lastCheck: now}
		return b.limit > 0, nil
	}

	elapsed := now.Sub(e.lastCheck)
	e.lastCheck = now

	rate := float64(b.limit) / b.window.Seconds()
	e.tokens = min(e.tokens+elapsed.Seconds()*rate, float64(b.limit))
	if e.tokens < 1 {
		return false, nil
	}
	e.tokens--
	return true, nil
}

// Reset clears the state for key.
func (b *Bucket) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
}

// Run drops idle keys every interval until ctx is cancelled.
func (b *Bucket) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bucket) sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := b.now().Add(-2 * b.window)
	removed := 0
	for key, e := range b.entries {
		if e.lastCheck.Before(cutoff) {
			delete(b.entries, key)
			removed++
		}
	}
	return removed
}

// Window counts hits per key in Redis, resetting window after the first hit.
type Window struct {
	client *pkgredis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewWindow(client *pkgredis.Client, prefix string, limit int, window time.Duration) *Window {
	return &Window{client: client, prefix: prefix, limit: limit, window: window}
}

func (w *Window) Allow(ctx context.Context, key string) (bool, error) {
	n, err := w.client.IncrWindow(ctx, w.prefix+key, w.window)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return n <= int64(w.limit), nil
}
