package index

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"testing"
)

const benchDim = 1536

func randomVector(r *rand.Rand) []float32 {
	v := make([]float32, benchDim)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}

func benchIndex(b *testing.B, docs int) *Index {
	b.Helper()
	r := rand.New(rand.NewPCG(1, 2))
	ix := New()
	for i := 0; i < docs; i++ {
		if err := ix.Upsert(fmt.Sprintf("doc-%d", i), fmt.Sprintf("Regulation %d.pdf", i), "section text", randomVector(r)); err != nil {
			b.Fatal(err)
		}
	}
	return ix
}

// BenchmarkUpsert measures per-document insert cost at embedding width.
func BenchmarkUpsert(b *testing.B) {
	r := rand.New(rand.NewPCG(3, 4))
	vec := randomVector(r)
	ix := New()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ix.Upsert(fmt.Sprintf("doc-%d", i%1000), "Regulation.pdf", "section text", vec)
	}
}

// BenchmarkQuery measures top-3 retrieval over corpora of realistic size.
func BenchmarkQuery(b *testing.B) {
	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("docs=%d", n), func(b *testing.B) {
			ix := benchIndex(b, n)
			q := randomVector(rand.New(rand.NewPCG(5, 6)))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := ix.Query(q, 3); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkQueryParallel measures concurrent read throughput.
func BenchmarkQueryParallel(b *testing.B) {
	ix := benchIndex(b, 1000)
	q := randomVector(rand.New(rand.NewPCG(7, 8)))
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = ix.Query(q, 3)
		}
	})
}

// BenchmarkSaveLoad measures a persist and reload round trip.
func BenchmarkSaveLoad(b *testing.B) {
	ix := benchIndex(b, 200)
	path := filepath.Join(b.TempDir(), "index.gob")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := Save(path, ix); err != nil {
			b.Fatal(err)
		}
		if Load(path).Len() != 200 {
			b.Fatal("reloaded index is incomplete")
		}
	}
}
