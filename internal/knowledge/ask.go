package knowledge

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/synth"
	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/tracing"
)

type answer struct {
	synth.Result
	sources   []string
	retrieved int
	// ix is the index the answer was retrieved from.
	ix *index.Index
}

// Ask answers query from the live index. An empty query fails with
// ErrInvalidInput; an embedding failure or a dimension mismatch between the
// query and the index is returned to the caller. Every other failure is
// absorbed into the answer.
func (b *Base) Ask(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query is required")
	}

	started := time.Now()
	ctx, span := tracing.StartSpan(ctx, "ask", logger.RequestID(ctx))
	defer span.End()

	if b.cache != nil {
		if hit, ok := b.cache.Get(ctx, query); ok {
			span.SetAttr("cache", "hit")
			res := Result{Query: query, Answer: hit.Answer, Confidence: hit.Confidence, Sources: hit.Sources, Cached: true}
			b.observe(ctx, res, synth.OutcomeAnswered, len(hit.Sources), started)
			return res, nil
		}
	}

	// The shared call outlives whichever caller started it; each caller
	// still gives up when its own context ends.
	ch := b.flight.DoChan(NormalizeQuery(query), func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.AnswerTimeout)
		defer cancel()
		return b.answer(sharedCtx, query)
	})
	var r singleflight.Result
	select {
	case <-ctx.Done():
		b.metrics.ObserveAsk("error", "miss", time.Since(started), 0)
		return Result{}, ctx.Err()
	case r = <-ch:
	}
	if r.Err != nil {
		b.metrics.ObserveAsk("error", "miss", time.Since(started), 0)
		return Result{}, r.Err
	}
	a := r.Val.(answer)

	if b.cache != nil && a.Outcome == synth.OutcomeAnswered {
		b.cacheAnswer(ctx, query, a)
	}
	res := Result{Query: query, Answer: a.Answer, Confidence: a.Confidence, Sources: a.sources}
	b.observe(ctx, res, a.Outcome, a.retrieved, started)
	return res, nil
}

func (b *Base) answer(ctx context.Context, query string) (answer, error) {
	embedCtx, span := tracing.StartChildSpan(ctx, "embed")
	vec, err := b.embedder.Embed(embedCtx, query)
	span.End()
	if err != nil {
		return answer{}, fmt.Errorf("embedding query: %w", err)
	}

	ix := b.live.Load()
	_, span = tracing.StartChildSpan(ctx, "query")
	docs, err := ix.Query(vec, b.cfg.TopK)
	span.SetAttr("matches", len(docs))
	span.End()
	if err != nil {
		return answer{}, fmt.Errorf("querying index: %w", err)
	}

	res := b.synth.Synthesize(ctx, query, docs)
	return answer{Result: res, sources: sourceNames(docs), retrieved: len(docs), ix: ix}, nil
}

// cacheAnswer stores a unless a refresh swapped the index after a was
// retrieved, in which case the refresh has already invalidated the cache and
// a must not outlive it.
func (b *Base) cacheAnswer(ctx context.Context, query string, a answer) {
	b.swapMu.RLock()
	defer b.swapMu.RUnlock()
	if b.live.Load() != a.ix {
		logger.FromContext(ctx).Debug("index swapped during answer, not caching", "component", "knowledge")
		return
	}
	b.cache.Set(ctx, query, cache.Answer{Answer: a.Answer, Confidence: a.Confidence, Sources: a.sources})
}

func (b *Base) observe(ctx context.Context, res Result, outcome synth.Outcome, retrieved int, started time.Time) {
	elapsed := time.Since(started)
	cacheStatus := "miss"
	if res.Cached {
		cacheStatus = "hit"
	}
	b.metrics.ObserveAsk(string(outcome), cacheStatus, elapsed, res.Confidence)

	logger.FromContext(ctx).Info("question answered",
		"component", "knowledge",
		"outcome", outcome,
		"confidence", res.Confidence,
		"retrieved", retrieved,
		"cached", res.Cached,
		"latency_ms", elapsed.Milliseconds(),
	)

	if b.events == nil {
		return
	}
	b.events.QueryAnswered(ctx, analytics.QueryEvent{
		Type:       analytics.EventQuery,
		Query:      res.Query,
		Outcome:    string(outcome),
		Confidence: res.Confidence,
		Retrieved:  retrieved,
		Sources:    res.Sources,
		LatencyMs:  elapsed.Milliseconds(),
		CacheHit:   res.Cached,
		Channel:    analytics.ChannelFrom(ctx),
		Timestamp:  time.Now().UTC(),
		RequestID:  logger.RequestID(ctx),
	})
}

func sourceNames(docs []index.Match) []string {
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}
	return names
}
