package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/extract"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/ledger"
)

var errEmptyDocument = errors.New("document has no extractable text")

type ingested struct {
	doc       docstore.Document
	content   string
	sections  int
	embedding []float32
	err       error
}

// Refresh re-ingests every document in the configured folder into a fresh
// index, persists it and swaps it in. A failure on one document is logged
// and skipped. It returns the number of documents indexed.
//
// Listing or persistence failures abort the refresh and leave the live
// index untouched.
func (b *Base) Refresh(ctx context.Context) (int, error) {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	runID := uuid.NewString()
	started := time.Now()
	log := b.logger.With("run_id", runID)

	docs, err := b.store.List(ctx, b.cfg.FolderID)
	if err != nil {
		return 0, fmt.Errorf("listing documents: %w", err)
	}
	log.Info("refresh started", "documents", len(docs))

	results := make([]ingested, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.RefreshConcurrency)
	for i, doc := range docs {
		g.Go(func() error {
			results[i] = b.ingest(gctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	staging := index.New()
	staging.SetModel(b.cfg.EmbeddingModel)
	indexed, failed := 0, 0
	for i := range results {
		r := &results[i]
		if r.err == nil {
			r.err = staging.Upsert(r.doc.ID, r.doc.Name, r.content, r.embedding)
		}
		if r.err != nil {
			failed++
			log.Error("document skipped", "doc_id", r.doc.ID, "name", r.doc.Name, "error", r.err)
			continue
		}
		indexed++
	}

	if err := index.Save(b.cfg.IndexPath, staging); err != nil {
		return 0, fmt.Errorf("persisting index: %w", err)
	}
	b.swapMu.Lock()
	b.live.Store(staging)
	if _, err := b.InvalidateCache(ctx); err != nil {
		log.Warn("answer cache invalidation failed", "error", err)
	}
	b.swapMu.Unlock()
	finished := time.Now()
	b.lastRefreshed.Store(&finished)

	elapsed := finished.Sub(started)
	b.metrics.ObserveRefresh(indexed, failed, elapsed)
	b.metrics.SetIndexSize(staging.Len())
	log.Info("refresh completed",
		"indexed", indexed,
		"failed", failed,
		"duration_ms", elapsed.Milliseconds(),
	)

	b.recordLedger(ctx, runID, started, finished, results, indexed, failed)
	if b.events != nil {
		b.events.Refreshed(ctx, analytics.RefreshEvent{
			Type:       analytics.EventRefreshed,
			RunID:      runID,
			Indexed:    indexed,
			Failed:     failed,
			Total:      len(docs),
			DurationMs: elapsed.Milliseconds(),
			Model:      b.cfg.EmbeddingModel,
			Timestamp:  finished.UTC(),
		})
	}
	return indexed, nil
}

func (b *Base) ingest(ctx context.Context, doc docstore.Document) ingested {
	r := ingested{doc: doc}
	data, mimeType, err := b.store.Download(ctx, doc.ID)
	if err != nil {
		r.err = fmt.Errorf("downloading: %w", err)
		return r
	}
	sections, err := b.extractor.Extract(data, mimeType)
	if err != nil {
		r.err = fmt.Errorf("extracting: %w", err)
		return r
	}
	r.sections = len(sections)
	r.content = extract.Flatten(sections)
	if r.content == "" {
		r.err = errEmptyDocument
		return r
	}
	r.embedding, err = b.embedder.Embed(ctx, r.content)
	if err != nil {
		r.err = fmt.Errorf("embedding: %w", err)
	}
	return r
}

func (b *Base) recordLedger(ctx context.Context, runID string, started, finished time.Time, results []ingested, indexed, failed int) {
	if b.ledger == nil {
		return
	}
	for _, r := range results {
		d := ledger.Document{
			ID:           r.doc.ID,
			Name:         r.doc.Name,
			MimeType:     r.doc.MimeType,
			ModifiedTime: r.doc.ModifiedTime,
			Status:       ledger.StatusIndexed,
			Sections:     r.sections,
			Characters:   len(r.content),
			RunID:        runID,
		}
		if r.err != nil {
			d.Status = ledger.StatusFailed
			d.Reason = r.err.Error()
		}
		if err := b.ledger.RecordDocument(ctx, d); err != nil {
			b.logger.Error("ledger write failed", "doc_id", r.doc.ID, "error", err)
		}
	}
	run := ledger.Run{
		ID:         runID,
		StartedAt:  started,
		FinishedAt: finished,
		Total:      len(results),
		Indexed:    indexed,
		Failed:     failed,
		Model:      b.cfg.EmbeddingModel,
	}
	if err := b.ledger.RecordRun(ctx, run); err != nil {
		b.logger.Error("ledger write failed", "run_id", runID, "error", err)
	}
}
