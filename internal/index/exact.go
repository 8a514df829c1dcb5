package index

// Exact computes cosine similarity against every keyword vector. With
// keyword sets in the tens this O(n·d) scan is the mandatory fallback
// and the reference for the accelerated strategy.
type Exact struct {
	entries []Entry // vectors normalized at construction
}

// NewExact builds the brute-force strategy. Input vectors are copied
// and normalized; the caller's slices are not retained.
func NewExact(entries []Entry) *Exact {
	normalized := make([]Entry, len(entries))
	for i, e := range entries {
		normalized[i] = Entry{Keyword: e.Keyword, Vector: Normalize(e.Vector)}
	}
	return &Exact{entries: normalized}
}

func (e *Exact) Name() string { return "exact" }

func (e *Exact) Nearest(vec []float32, k int, threshold float64) []Neighbor {
	q := Normalize(vec)

	var results []Neighbor
	for _, entry := range e.entries {
		sim := clamp(Dot(q, entry.Vector))
		if sim >= threshold {
			results = append(results, Neighbor{Keyword: entry.Keyword, Similarity: sim})
		}
	}
	return sortNeighbors(results, k)
}
