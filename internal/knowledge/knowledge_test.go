package knowledge

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/extract"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/index"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/knowledge/synth"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/internal/llm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
)

type storedFile struct {
	doc  docstore.Document
	data string
}

type fakeStore struct {
	mu      sync.Mutex
	files   []storedFile
	listErr error
}

func (s *fakeStore) set(files ...storedFile) {
	s.mu.Lock()
	s.files = files
	s.mu.Unlock()
}

func (s *fakeStore) List(context.Context, string) ([]docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]docstore.Document, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f.doc)
	}
	return out, nil
}

func (s *fakeStore) Download(_ context.Context, id string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.doc.ID == id {
			return []byte(f.data), f.doc.MimeType, nil
		}
	}
	return nil, "", apperrors.External("drive", errors.New("file not found"))
}

// pdfOnly treats every PDF payload as a single page of plain text.
type pdfOnly struct{}

func (pdfOnly) Extract(data []byte, mimeType string) ([]extract.Section, error) {
	if mimeType != extract.MimePDF {
		return nil, apperrors.Unsupported(mimeType)
	}
	return []extract.Section{{Content: string(data), Page: 1}}, nil
}

var vocabulary = []string{"aerodrome", "licence", "operator", "drone"}

// keywordEmbedder counts vocabulary words, giving deterministic vectors.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error

	// Texts equal to hold block until release is closed or ctx ends.
	hold    string
	held    chan struct{}
	release chan struct{}
}

// holdOn makes Embed block on text. The returned channel receives once per
// blocked call.
func (e *keywordEmbedder) holdOn(text string) (held chan struct{}, release func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hold = text
	e.held = make(chan struct{}, 4)
	e.release = make(chan struct{})
	var once sync.Once
	ch := e.release
	return e.held, func() { once.Do(func() { close(ch) }) }
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	hold, held, release := e.hold, e.held, e.release
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	text = strings.ToLower(text)
	if hold != "" && text == hold {
		select {
		case held <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	vec := make([]float32, len(vocabulary))
	for i, w := range vocabulary {
		vec[i] = float32(strings.Count(text, w))
	}
	return vec, nil
}

func (e *keywordEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeChat struct {
	mu       sync.Mutex
	answer   string
	err      error
	calls    int
	lastTurn string
}

func (c *fakeChat) Complete(_ context.Context, _ string, messages []llm.Message, _ float32, _ int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastTurn = messages[len(messages)-1].Content
	return c.answer, c.err
}

type recordingLedger struct {
	docs []ledger.Document
	runs []ledger.Run
}

func (l *recordingLedger) RecordDocument(_ context.Context, d ledger.Document) error {
	l.docs = append(l.docs, d)
	return nil
}

func (l *recordingLedger) RecordRun(_ context.Context, r ledger.Run) error {
	l.runs = append(l.runs, r)
	return nil
}

type recordingEvents struct {
	mu        sync.Mutex
	queries   []analytics.QueryEvent
	refreshes []analytics.RefreshEvent
}

func (e *recordingEvents) QueryAnswered(_ context.Context, ev analytics.QueryEvent) {
	e.mu.Lock()
	e.queries = append(e.queries, ev)
	e.mu.Unlock()
}

func (e *recordingEvents) Refreshed(_ context.Context, ev analytics.RefreshEvent) {
	e.mu.Lock()
	e.refreshes = append(e.refreshes, ev)
	e.mu.Unlock()
}

type mapCache struct {
	mu          sync.Mutex
	entries     map[string]cache.Answer
	invalidated int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string]cache.Answer{}} }

func (c *mapCache) Get(_ context.Context, q string) (cache.Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.entries[NormalizeQuery(q)]
	return a, ok
}

func (c *mapCache) Set(_ context.Context, q string, a cache.Answer) {
	c.mu.Lock()
	c.entries[NormalizeQuery(q)] = a
	c.mu.Unlock()
}

func (c *mapCache) Invalidate(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := int64(len(c.entries))
	c.entries = map[string]cache.Answer{}
	c.invalidated++
	return n, nil
}

func pdf(id, name, text string) storedFile {
	return storedFile{doc: docstore.Document{ID: id, Name: name, MimeType: extract.MimePDF}, data: text}
}

func regulations() []storedFile {
	return []storedFile{
		pdf("a", "Aerodromes.pdf", "Aerodrome certification. Every aerodrome operator shall hold a certificate."),
		pdf("b", "Licensing.pdf", "Personnel licence requirements. A licence holder shall carry the licence."),
		{doc: docstore.Document{ID: "c", Name: "Scan.png", MimeType: "image/png"}, data: "\x89PNG"},
	}
}

type harness struct {
	base     *Base
	store    *fakeStore
	embedder *keywordEmbedder
	chat     *fakeChat
	ledger   *recordingLedger
	events   *recordingEvents
	cache    *mapCache
	path     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    &fakeStore{},
		embedder: &keywordEmbedder{},
		chat:     &fakeChat{answer: "Aerodrome operators must be certified."},
		ledger:   &recordingLedger{},
		events:   &recordingEvents{},
		cache:    newMapCache(),
		path:     filepath.Join(t.TempDir(), "index.gob"),
	}
	h.store.set(regulations()...)
	h.base = h.open()
	return h
}

func (h *harness) open() *Base {
	return New(h.store, pdfOnly{}, h.embedder, synth.New(h.chat, nil, synth.Config{SystemPrompt: "sys"}),
		Config{FolderID: "folder", IndexPath: h.path, TopK: 3, RefreshConcurrency: 2, EmbeddingModel: "test-embed"},
		WithLedger(h.ledger), WithEvents(h.events), WithCache(h.cache))
}

func TestRefreshSkipsFailingDocument(t *testing.T) {
	h := newHarness(t)

	n, err := h.base.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries := h.base.Documents()
	require.Len(t, entries, 2)
	assert.Equal(t, "Aerodromes.pdf", entries[0].Name)
	assert.Equal(t, "Licensing.pdf", entries[1].Name)

	stats := h.base.Stats()
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, len(vocabulary), stats.Dimension)
	assert.Equal(t, "test-embed", stats.Model)
	assert.NotNil(t, stats.LastRefreshed)

	persisted := index.Load(h.path)
	assert.Equal(t, 2, persisted.Len())
	_, ok := persisted.Get("c")
	assert.False(t, ok)
}

func TestRefreshRecordsLedgerAndEvents(t *testing.T) {
	h := newHarness(t)
	h.cache.Set(context.Background(), "stale question", cache.Answer{Answer: "old"})

	_, err := h.base.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, h.ledger.docs, 3)
	statuses := map[string]ledger.Status{}
	for _, d := range h.ledger.docs {
		statuses[d.ID] = d.Status
	}
	assert.Equal(t, ledger.StatusIndexed, statuses["a"])
	assert.Equal(t, ledger.StatusFailed, statuses["c"])
	assert.Contains(t, h.ledger.docs[2].Reason, "unsupported document format")

	require.Len(t, h.ledger.runs, 1)
	assert.Equal(t, 2, h.ledger.runs[0].Indexed)
	assert.Equal(t, 1, h.ledger.runs[0].Failed)

	require.Len(t, h.events.refreshes, 1)
	ev := h.events.refreshes[0]
	assert.Equal(t, analytics.EventRefreshed, ev.Type)
	assert.Equal(t, 3, ev.Total)
	assert.Equal(t, h.ledger.runs[0].ID, ev.RunID)

	assert.Equal(t, 1, h.cache.invalidated)
	_, ok := h.cache.Get(context.Background(), "stale question")
	assert.False(t, ok)
}

func TestRefreshListFailureKeepsLiveIndex(t *testing.T) {
	h := newHarness(t)
	_, err := h.base.Refresh(context.Background())
	require.NoError(t, err)

	h.store.listErr = apperrors.External("drive", errors.New("503"))
	_, err = h.base.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrExternalService)

	assert.Equal(t, 2, h.base.Stats().Documents)
	assert.Len(t, h.events.refreshes, 1)
}

func TestRefreshDropsRemovedDocuments(t *testing.T) {
	h := newHarness(t)
	_, err := h.base.Refresh(context.Background())
	require.NoError(t, err)

	h.store.set(pdf("b", "Licensing.pdf", "Updated licence text."))
	n, err := h.base.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries := h.base.Documents()
	require.Len(t, entries, 1)
	assert.Equal(t, "Updated licence text.", entries[0].Content)
}

func TestNewLoadsPersistedIndex(t *testing.T) {
	h := newHarness(t)
	_, err := h.base.Refresh(context.Background())
	require.NoError(t, err)

	reopened := h.open()
	assert.Equal(t, 2, reopened.Stats().Documents)
}

func TestAskRejectsEmptyQuery(t *testing.T) {
	h := newHarness(t)

	_, err := h.base.Ask(context.Background(), "   \n\t")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 0, h.embedder.callCount())
	assert.Equal(t, 0, h.chat.calls)
}

func TestAskOnEmptyIndexHasZeroConfidence(t *testing.T) {
	h := newHarness(t)

	res, err := h.base.Ask(context.Background(), "Who certifies an aerodrome?")
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Empty(t, res.Sources)
	assert.Equal(t, 1, h.chat.calls)
}

func TestAskEmbeddingFailurePropagates(t *testing.T) {
	h := newHarness(t)
	h.embedder.err = apperrors.Embedding(errors.New("connection reset"))

	_, err := h.base.Ask(context.Background(), "Who certifies an aerodrome?")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrEmbeddingUnavailable)
	assert.Equal(t, 0, h.chat.calls)
	assert.Empty(t, h.events.queries)
}

func TestAskRanksSourcesAndCaches(t *testing.T) {
	h := newHarness(t)
	ctx := analytics.WithChannel(context.Background(), "http")
	_, err := h.base.Refresh(ctx)
	require.NoError(t, err)

	res, err := h.base.Ask(ctx, "  What does an aerodrome operator need? ")
	require.NoError(t, err)
	assert.Equal(t, "What does an aerodrome operator need?", res.Query)
	assert.Equal(t, []string{"Aerodromes.pdf", "Licensing.pdf"}, res.Sources)
	assert.Equal(t, 0.7, res.Confidence)
	assert.False(t, res.Cached)
	assert.True(t, strings.Index(h.chat.lastTurn, "Aerodromes.pdf") < strings.Index(h.chat.lastTurn, "Licensing.pdf"))

	again, err := h.base.Ask(ctx, "what does an AERODROME operator need?")
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, res.Answer, again.Answer)
	assert.Equal(t, 1, h.chat.calls)

	require.Len(t, h.events.queries, 2)
	assert.Equal(t, "http", h.events.queries[0].Channel)
	assert.Equal(t, 2, h.events.queries[0].Retrieved)
	assert.True(t, h.events.queries[1].CacheHit)
}

func TestAskDoesNotCacheApology(t *testing.T) {
	h := newHarness(t)
	_, err := h.base.Refresh(context.Background())
	require.NoError(t, err)
	h.chat.err = errors.New("upstream 500")

	res, err := h.base.Ask(context.Background(), "licence rules")
	require.NoError(t, err)
	assert.Equal(t, synth.ApologyAnswer, res.Answer)
	assert.Equal(t, 0.0, res.Confidence)

	_, ok := h.cache.Get(context.Background(), "licence rules")
	assert.False(t, ok)
}

func TestAskDuringRefreshSeesWholeIndex(t *testing.T) {
	h := newHarness(t)
	_, err := h.base.Refresh(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.base.Refresh(context.Background())
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.base.Ask(context.Background(), "aerodrome operator licence")
			if assert.NoError(t, err) {
				assert.Len(t, res.Sources, 2)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, h.base.Stats().Documents)
}

func waitHeld(t *testing.T, held <-chan struct{}) {
	t.Helper()
	select {
	case <-held:
	case <-time.After(2 * time.Second):
		t.Fatal("embedding never started")
	}
}

func TestAskSharedAnswerSurvivesFirstCallerCancel(t *testing.T) {
	h := newHarness(t)
	_, err := h.base.Refresh(context.Background())
	require.NoError(t, err)
	held, release := h.embedder.holdOn("aerodrome operator")
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.base.Ask(ctx, "aerodrome operator")
		firstErr <- err
	}()
	waitHeld(t, held)

	type outcome struct {
		res Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := h.base.Ask(context.Background(), "Aerodrome  Operator")
		second <- outcome{res, err}
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	release()
	select {
	case o := <-second:
		require.NoError(t, o.err)
		assert.Equal(t, "Aerodrome operators must be certified.", o.res.Answer)
		assert.Len(t, o.res.Sources, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
}

func TestAskAcrossRefreshDoesNotCacheStaleAnswer(t *testing.T) {
	h := newHarness(t)
	_, err := h.base.Refresh(context.Background())
	require.NoError(t, err)
	held, release := h.embedder.holdOn("drone operator rules")
	defer release()

	done := make(chan Result, 1)
	go func() {
		res, err := h.base.Ask(context.Background(), "drone operator rules")
		assert.NoError(t, err)
		done <- res
	}()
	waitHeld(t, held)

	h.store.set(pdf("d", "Drones.pdf", "Drone operations. A drone operator shall register."))
	_, err = h.base.Refresh(context.Background())
	require.NoError(t, err)
	release()

	select {
	case res := <-done:
		assert.ElementsMatch(t, []string{"Aerodromes.pdf", "Licensing.pdf"}, res.Sources)
	case <-time.After(2 * time.Second):
		t.Fatal("ask did not return")
	}
	_, ok := h.cache.Get(context.Background(), "drone operator rules")
	assert.False(t, ok, "answer from the replaced index must not be cached")

	res, err := h.base.Ask(context.Background(), "drone operator rules")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, []string{"Drones.pdf"}, res.Sources)
	_, ok = h.cache.Get(context.Background(), "drone operator rules")
	assert.True(t, ok)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "what is part 91?", NormalizeQuery("  What  is\tPart 91? "))
}
