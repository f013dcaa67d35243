package index

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
)

func TestCosineIsSymmetric(t *testing.T) {
	pairs := [][2][]float32{
		{{1, 2, 3}, {4, 5, 6}},
		{{-1, 0.5, 2}, {3, -2, 0}},
		{{0.1, 0.1, 0.1}, {0.1, 0.1, 0.1}},
	}
	for _, p := range pairs {
		assert.InDelta(t, Cosine(p[0], p[1]), Cosine(p[1], p[0]), 1e-12)
	}
}

func TestCosineZeroNorm(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float32{0, 0, 0}, []float32{1, 2, 3}))
	assert.False(t, math.IsNaN(Cosine([]float32{0, 0}, []float32{0, 0})))
}

// vectorAt returns a unit vector whose cosine with (1, 0) is sim.
func vectorAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func TestQueryRanksDescending(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Upsert("c", "C", "c", vectorAt(0.2)))
	require.NoError(t, ix.Upsert("a", "A", "a", vectorAt(0.9)))
	require.NoError(t, ix.Upsert("b", "B", "b", vectorAt(0.5)))

	got, err := ix.Query([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.InDelta(t, 0.9, got[0].Similarity, 1e-6)
}

func TestQueryTiesKeepFirstSeenOrder(t *testing.T) {
	ix := New()
	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, ix.Upsert(id, id, id, []float32{1, 1}))
	}
	// Replacing keeps the original position.
	require.NoError(t, ix.Upsert("first", "first v2", "first", []float32{1, 1}))

	got, err := ix.Query([]float32{1, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "first v2", got[0].Name)
}

func TestQueryEmptyIndex(t *testing.T) {
	got, err := New().Query([]float32{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryDimensionMismatch(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Upsert("a", "A", "a", []float32{1, 2, 3}))

	_, err := ix.Query([]float32{1, 2}, 3)
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)
}

func TestUpsertRejectsMixedDimensions(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Upsert("a", "A", "a", []float32{1, 2, 3}))
	require.NoError(t, ix.Upsert("b", "B", "b", []float32{1, 2, 4}))

	err := ix.Upsert("c", "C", "c", []float32{1, 2})
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)
	assert.Equal(t, 2, ix.Len())
}

func TestUpsertIsIdempotent(t *testing.T) {
	once, twice := New(), New()
	require.NoError(t, once.Upsert("a", "A", "content", []float32{1, 2}))
	require.NoError(t, twice.Upsert("a", "A", "content", []float32{1, 2}))
	require.NoError(t, twice.Upsert("a", "A", "content", []float32{1, 2}))

	assert.Equal(t, once.Entries(), twice.Entries())
	assert.Equal(t, once.Len(), twice.Len())
}

func TestUpsertCopiesEmbedding(t *testing.T) {
	ix := New()
	v := []float32{1, 2}
	require.NoError(t, ix.Upsert("a", "A", "a", v))
	v[0] = 99

	e, ok := ix.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, e.Embedding)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store", "index.gob")
	ix := New()
	ix.SetModel("text-embedding-3-small")
	require.NoError(t, ix.Upsert("doc-1", "Part 61.pdf", "Pilot licensing", []float32{0.1, 0.2, 0.3}))
	require.NoError(t, ix.Upsert("doc-2", "Part 91.docx", "General operating rules", []float32{-0.5, 0.25, 1e-7}))

	require.NoError(t, Save(path, ix))
	loaded := Load(path)

	assert.Equal(t, ix.Entries(), loaded.Entries())
	assert.Equal(t, "text-embedding-3-small", loaded.Model())
	assert.Equal(t, 3, loaded.Dimension())

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLoadMissingIsEmpty(t *testing.T) {
	ix := Load(filepath.Join(t.TempDir(), "absent.gob"))
	assert.Equal(t, 0, ix.Len())
}

func TestLoadCorruptIsEmpty(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.gob")
	require.NoError(t, os.WriteFile(garbage, []byte("not a gob blob"), 0o644))
	assert.Equal(t, 0, Load(garbage).Len())

	good := filepath.Join(dir, "good.gob")
	ix := New()
	require.NoError(t, ix.Upsert("a", "A", "a", []float32{1, 2}))
	require.NoError(t, Save(good, ix))
	data, err := os.ReadFile(good)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(good, data, 0o644))
	assert.Equal(t, 0, Load(good).Len())
}

func TestConcurrentQueriesDuringUpserts(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Upsert("seed", "seed", "seed", []float32{1, 0}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				got, err := ix.Query([]float32{1, 0}, 3)
				assert.NoError(t, err)
				for _, m := range got {
					assert.NotEmpty(t, m.Name)
				}
			}
		}()
	}
	for j := 0; j < 200; j++ {
		require.NoError(t, ix.Upsert("seed", "seed", "seed", []float32{float32(j), 1}))
	}
	wg.Wait()
}
