// Package index answers "which keywords lie within similarity threshold
// of this vector". Two interchangeable strategies exist: an exact
// brute-force scan and an accelerated partitioned index. Both must
// return the same neighbors for the same threshold; the accelerated
// strategy only prunes partitions that provably cannot contain a hit.
package index

import (
	"math"
	"sort"

	"github.com/signalsift/signalsift/internal/model"
)

// Entry pairs a keyword with its embedding vector.
type Entry struct {
	Keyword model.Keyword
	Vector  []float32
}

// Neighbor is one result of a nearest query.
type Neighbor struct {
	Keyword    model.Keyword
	Similarity float64
}

// Strategy is the nearest-neighbor contract. Implementations are
// read-only after construction and safe for concurrent queries.
type Strategy interface {
	// Nearest returns up to k keywords with cosine similarity >=
	// threshold, ordered by descending similarity; ties broken by
	// keyword declaration order.
	Nearest(vec []float32, k int, threshold float64) []Neighbor
	Name() string
}

// New selects a strategy. The accelerated index only pays off once the
// keyword set has enough entries to partition; below that the exact
// scan is used regardless of the flag.
func New(entries []Entry, accelerated bool) Strategy {
	if accelerated && len(entries) >= minPartitionedSize {
		return NewPartitioned(entries)
	}
	return NewExact(entries)
}

// Normalize returns a unit-length copy of v. A zero vector normalizes
// to itself.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot computes the inner product in float64. On normalized vectors this
// is the cosine similarity.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CosineSimilarity computes the cosine of the angle between a and b,
// clamped to [-1, 1].
func CosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clamp(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

// sortNeighbors orders by descending similarity, then declaration
// order, and truncates to k.
func sortNeighbors(results []Neighbor, k int) []Neighbor {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Keyword.Position < results[j].Keyword.Position
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
