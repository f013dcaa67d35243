package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/kafka"
)

// Publisher is satisfied by *kafka.Producer and by *Aggregator, which lets
// the assistant run analytics in-process when no broker is configured.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Collector buffers query events and refresh events and publishes them in
// the background, so recording never blocks a request.
type Collector struct {
	queries   *batcher
	refreshes *batcher
}

// NewCollector flushes query events when batchSize accumulate or every
// flushInterval. Refresh events are published immediately.
func NewCollector(queries, refreshes Publisher, batchSize int, flushInterval time.Duration) *Collector {
	return &Collector{
		queries:   newBatcher("query-collector", queries, batchSize, flushInterval),
		refreshes: newBatcher("refresh-collector", refreshes, 1, flushInterval),
	}
}

// Start launches the flush loops. They stop when ctx is cancelled, after a
// final flush.
func (c *Collector) Start(ctx context.Context) {
	c.queries.start(ctx)
	c.refreshes.start(ctx)
}

// Close waits for the flush loops to exit.
func (c *Collector) Close() {
	c.queries.wait()
	c.refreshes.wait()
}

func (c *Collector) QueryAnswered(_ context.Context, e QueryEvent) {
	c.queries.track(kafka.Event{Key: e.Channel, Type: string(EventQuery), Value: e})
}

func (c *Collector) Refreshed(_ context.Context, e RefreshEvent) {
	c.refreshes.track(kafka.Event{Key: e.RunID, Type: string(EventRefreshed), Value: e})
}

// Pending returns the number of buffered, unpublished events.
func (c *Collector) Pending() int {
	return c.queries.len() + c.refreshes.len()
}

type batcher struct {
	publisher     Publisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

func newBatcher(name string, p Publisher, batchSize int, flushInterval time.Duration) *batcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &batcher{
		publisher:     p,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", name),
		done:          make(chan struct{}),
	}
}

func (b *batcher) start(ctx context.Context) {
	go func() {
		defer close(b.done)
		ticker := time.NewTicker(b.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				b.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				b.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	b.logger.Info("collector started", "batch_size", b.batchSize, "flush_interval", b.flushInterval)
}

func (b *batcher) wait() {
	<-b.done
}

func (b *batcher) track(e kafka.Event) {
	b.mu.Lock()
	b.buffer = append(b.buffer, e)
	full := len(b.buffer) >= b.batchSize
	b.mu.Unlock()

	if full {
		go b.flush(context.Background())
	}
}

func (b *batcher) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

func (b *batcher) flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.buffer
	b.buffer = make([]kafka.Event, 0, b.batchSize)
	b.mu.Unlock()

	if err := b.publisher.Publish(ctx, batch...); err != nil {
		b.logger.Error("flush failed", "events", len(batch), "error", err)
		// Requeue, keeping at most three batches.
		b.mu.Lock()
		b.buffer = append(batch, b.buffer...)
		if limit := b.batchSize * 3; len(b.buffer) > limit {
			b.logger.Warn("buffer overflow, events dropped", "dropped", len(b.buffer)-limit)
			b.buffer = b.buffer[:limit]
		}
		b.mu.Unlock()
		return
	}
	b.logger.Debug("flushed", "events", len(batch))
}
