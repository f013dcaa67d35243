// Package index holds the in-memory similarity index: a map from document id
// to its flattened text and embedding, ranked by cosine similarity.
//
// An Index is safe for concurrent use. Queries hold the read lock for their
// full duration, so a reader never observes a half-written entry. Refreshes
// build a fresh Index and swap it in at the facade level rather than
// mutating the live one.
package index

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
)

// Entry is one indexed document.
type Entry struct {
	ID        string
	Name      string
	Content   string
	Embedding []float32
}

// Match is an entry returned by Query with its similarity to the query.
type Match struct {
	ID         string
	Name       string
	Content    string
	Similarity float64
}

// Index is a flat cosine-similarity index. Entries keep the position of the
// first upsert of their id, which is the tie-break order for Query.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	dim     int
	model   string
}

// New returns an empty index.
func New() *Index {
	return &Index{entries: make(map[string]*Entry)}
}

// SetModel records the embedding model that produced the vectors.
func (ix *Index) SetModel(model string) {
	ix.mu.Lock()
	ix.model = model
	ix.mu.Unlock()
}

// Model returns the recorded embedding model, if any.
func (ix *Index) Model() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.model
}

// Upsert replaces the entry for id in full. Every embedding in an index has
// the same length: a vector of a different length is rejected with
// ErrDimensionMismatch unless it replaces the only entry.
func (ix *Index) Upsert(id, name, content string, embedding []float32) error {
	if id == "" {
		return fmt.Errorf("%w: entry id is empty", apperrors.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: entry %s has an empty embedding", apperrors.ErrInvalidInput, id)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, exists := ix.entries[id]
	if ix.dim != 0 && len(embedding) != ix.dim {
		if !(exists && len(ix.entries) == 1) {
			return fmt.Errorf("%w: entry %s has %d dimensions, index has %d",
				apperrors.ErrDimensionMismatch, id, len(embedding), ix.dim)
		}
	}
	ix.dim = len(embedding)
	if !exists {
		ix.order = append(ix.order, id)
	}
	ix.entries[id] = &Entry{
		ID:        id,
		Name:      name,
		Content:   content,
		Embedding: slices.Clone(embedding),
	}
	return nil
}

// Query returns up to k entries ranked by descending cosine similarity to
// embedding. Ties keep first-seen order. An empty index yields an empty
// result; a query vector of the wrong length yields ErrDimensionMismatch.
func (ix *Index) Query(embedding []float32, k int) ([]Match, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.order) == 0 || k <= 0 {
		return []Match{}, nil
	}
	if len(embedding) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			apperrors.ErrDimensionMismatch, len(embedding), ix.dim)
	}

	matches := make([]Match, 0, len(ix.order))
	for _, id := range ix.order {
		e := ix.entries[id]
		matches = append(matches, Match{
			ID:         e.ID,
			Name:       e.Name,
			Content:    e.Content,
			Similarity: Cosine(embedding, e.Embedding),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Get returns a copy of the entry for id.
func (ix *Index) Get(id string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[id]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// Entries returns copies of all entries in first-seen order.
func (ix *Index) Entries() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Entry, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, copyEntry(ix.entries[id]))
	}
	return out
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.order)
}

// Dimension returns the shared embedding length, or 0 for an empty index.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

func copyEntry(e *Entry) Entry {
	c := *e
	c.Embedding = slices.Clone(e.Embedding)
	return c
}
