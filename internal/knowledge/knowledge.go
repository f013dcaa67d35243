// Package knowledge is the facade over the retrieval pipeline. Refresh
// rebuilds the similarity index from the document store; Ask answers a
// question from it.
//
// The live index is swapped atomically after a refresh has been fully built
// and persisted, so concurrent Ask calls see either the previous index or the
// new one, never a partial state. Refreshes are serialized.
package knowledge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/extract"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/synth"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/llm"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/metrics"
)

// DefaultTopK is the number of documents retrieved per question.
const DefaultTopK = 3

// DefaultAnswerTimeout bounds the shared work behind concurrent identical
// questions once it no longer follows any single caller's context.
const DefaultAnswerTimeout = 2 * time.Minute

// Extractor converts downloaded bytes into sections.
type Extractor interface {
	Extract(data []byte, mimeType string) ([]extract.Section, error)
}

// Synthesizer turns retrieved documents into an answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, docs []index.Match) synth.Result
}

// AnswerCache stores answers keyed by question.
type AnswerCache interface {
	Get(ctx context.Context, query string) (cache.Answer, bool)
	Set(ctx context.Context, query string, a cache.Answer)
	Invalidate(ctx context.Context) (int64, error)
}

// Events receives analytics about questions and refreshes. Implementations
// must not block.
type Events interface {
	QueryAnswered(ctx context.Context, e analytics.QueryEvent)
	Refreshed(ctx context.Context, e analytics.RefreshEvent)
}

// Ledger records ingestion outcomes. Failures are logged by the caller and
// never fail a refresh.
type Ledger interface {
	RecordDocument(ctx context.Context, d ledger.Document) error
	RecordRun(ctx context.Context, r ledger.Run) error
}

// Config carries the facade's tunables.
type Config struct {
	FolderID           string
	IndexPath          string
	TopK               int
	RefreshConcurrency int
	EmbeddingModel     string
	AnswerTimeout      time.Duration
}

// Result is the answer to a question.
type Result struct {
	Query      string
	Answer     string
	Confidence float64
	Sources    []string
	Cached     bool
}

// Stats describes the live index.
type Stats struct {
	Documents     int        `json:"documents"`
	Dimension     int        `json:"dimension"`
	Model         string     `json:"model"`
	LastRefreshed *time.Time `json:"last_refreshed,omitempty"`
}

// Base wires the document store, extractor, embedder, index and
// synthesizer together.
type Base struct {
	store     docstore.Store
	extractor Extractor
	embedder  llm.Embedder
	synth     Synthesizer
	cfg       Config

	live          atomic.Pointer[index.Index]
	lastRefreshed atomic.Pointer[time.Time]
	refreshMu     sync.Mutex
	flight        singleflight.Group
	// swapMu orders cache writes against an index swap and the
	// invalidation that follows it.
	swapMu sync.RWMutex

	ledger  Ledger
	cache   AnswerCache
	events  Events
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures optional collaborators.
type Option func(*Base)

func WithLedger(l Ledger) Option            { return func(b *Base) { b.ledger = l } }
func WithCache(c AnswerCache) Option        { return func(b *Base) { b.cache = c } }
func WithEvents(e Events) Option            { return func(b *Base) { b.events = e } }
func WithMetrics(m *metrics.Metrics) Option { return func(b *Base) { b.metrics = m } }

// New builds a Base and loads the persisted index from cfg.IndexPath. A
// missing or unreadable index starts empty.
func New(store docstore.Store, extractor Extractor, embedder llm.Embedder, synthesizer Synthesizer, cfg Config, opts ...Option) *Base {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = 1
	}
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = DefaultAnswerTimeout
	}
	b := &Base{
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		synth:     synthesizer,
		cfg:       cfg,
		logger:    slog.Default().With("component", "knowledge"),
	}
	for _, opt := range opts {
		opt(b)
	}
	ix := index.Load(cfg.IndexPath)
	b.live.Store(ix)
	b.metrics.SetIndexSize(ix.Len())
	return b
}

// Stats reports the size and shape of the live index.
func (b *Base) Stats() Stats {
	ix := b.live.Load()
	return Stats{
		Documents:     ix.Len(),
		Dimension:     ix.Dimension(),
		Model:         ix.Model(),
		LastRefreshed: b.lastRefreshed.Load(),
	}
}

// Documents returns the indexed entries in index order.
func (b *Base) Documents() []index.Entry {
	return b.live.Load().Entries()
}

// InvalidateCache drops every cached answer.
func (b *Base) InvalidateCache(ctx context.Context) (int64, error) {
	if b.cache == nil {
		return 0, nil
	}
	return b.cache.Invalidate(ctx)
}

// NormalizeQuery trims and collapses whitespace and lowercases the query
// for use as a cache and deduplication key.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
