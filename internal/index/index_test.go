package index

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/signalsift/signalsift/internal/model"
)

func randomEntries(rng *rand.Rand, n, dim int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = float32(rng.NormFloat64())
		}
		entries[i] = Entry{
			Keyword: model.Keyword{Text: fmt.Sprintf("kw-%d", i), Position: i},
			Vector:  vec,
		}
	}
	return entries
}

// The exact and partitioned strategies must return the same keywords in
// the same order for the same threshold. This is the index's primary
// correctness property.
func TestStrategyEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		n := 10 + rng.Intn(40)
		dim := 16
		entries := randomEntries(rng, n, dim)

		exact := NewExact(entries)
		part := NewPartitioned(entries)

		query := make([]float32, dim)
		for d := range query {
			query[d] = float32(rng.NormFloat64())
		}
		threshold := 0.1 + rng.Float64()*0.6

		a := exact.Nearest(query, 10, threshold)
		b := part.Nearest(query, 10, threshold)

		if len(a) != len(b) {
			t.Fatalf("trial %d: exact returned %d neighbors, partitioned %d (threshold %.3f)",
				trial, len(a), len(b), threshold)
		}
		for i := range a {
			if a[i].Keyword.Text != b[i].Keyword.Text {
				t.Fatalf("trial %d: neighbor %d differs: %s vs %s",
					trial, i, a[i].Keyword.Text, b[i].Keyword.Text)
			}
			if math.Abs(a[i].Similarity-b[i].Similarity) > 1e-9 {
				t.Fatalf("trial %d: similarity differs at %d: %v vs %v",
					trial, i, a[i].Similarity, b[i].Similarity)
			}
		}
	}
}

func TestNearest_OrderAndThreshold(t *testing.T) {
	entries := []Entry{
		{Keyword: model.Keyword{Text: "far", Position: 0}, Vector: []float32{0, 1, 0}},
		{Keyword: model.Keyword{Text: "close", Position: 1}, Vector: []float32{0.9, 0.1, 0}},
		{Keyword: model.Keyword{Text: "closest", Position: 2}, Vector: []float32{1, 0, 0}},
	}
	idx := NewExact(entries)

	got := idx.Nearest([]float32{1, 0, 0}, 10, 0.5)
	if len(got) != 2 {
		t.Fatalf("expected 2 neighbors above 0.5, got %d", len(got))
	}
	if got[0].Keyword.Text != "closest" || got[1].Keyword.Text != "close" {
		t.Errorf("wrong order: %s, %s", got[0].Keyword.Text, got[1].Keyword.Text)
	}
	if got[0].Similarity < got[1].Similarity {
		t.Error("results not ordered by descending similarity")
	}
}

func TestNearest_TieBreakByDeclarationOrder(t *testing.T) {
	// Two identical vectors: the earlier-declared keyword must win.
	entries := []Entry{
		{Keyword: model.Keyword{Text: "second", Position: 1}, Vector: []float32{1, 0}},
		{Keyword: model.Keyword{Text: "first", Position: 0}, Vector: []float32{1, 0}},
	}
	idx := NewExact(entries)

	got := idx.Nearest([]float32{1, 0}, 10, 0.9)
	if len(got) != 2 {
		t.Fatalf("expected both, got %d", len(got))
	}
	if got[0].Keyword.Text != "first" {
		t.Errorf("tie not broken by declaration order: got %s first", got[0].Keyword.Text)
	}
}

func TestNearest_KLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	entries := randomEntries(rng, 20, 8)
	idx := NewExact(entries)

	query := entries[0].Vector
	got := idx.Nearest(query, 3, -1)
	if len(got) != 3 {
		t.Errorf("k limit ignored: got %d", len(got))
	}
}

func TestNew_SelectsStrategy(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	small := randomEntries(rng, 3, 4)
	large := randomEntries(rng, 30, 4)

	if s := New(small, true); s.Name() != "exact" {
		t.Errorf("small set should use exact, got %s", s.Name())
	}
	if s := New(large, true); s.Name() != "partitioned" {
		t.Errorf("large set with acceleration should partition, got %s", s.Name())
	}
	if s := New(large, false); s.Name() != "exact" {
		t.Errorf("acceleration off should use exact, got %s", s.Name())
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := Normalize([]float32{0, 0, 0})
	for _, x := range v {
		if x != 0 {
			t.Fatal("zero vector must normalize to itself")
		}
	}
}
