package index

import "math"

// minPartitionedSize is the entry count below which partitioning is
// pure overhead.
const minPartitionedSize = 8

const kmeansIterations = 10

// Partitioned is the accelerated strategy: keyword vectors are grouped
// by spherical k-means and a query only scans partitions whose angular
// bound admits a similarity above the threshold. The bound uses each
// partition's radius (widest member angle from the centroid), so
// pruning never discards a qualifying keyword and results match the
// exact strategy.
type Partitioned struct {
	partitions []partition
}

type partition struct {
	centroid []float32
	radius   float64 // max angle between centroid and any member, radians
	members  []Entry
}

// NewPartitioned builds the partitioned index. Construction is fully
// deterministic: centroids seed from evenly spaced entries in
// declaration order and iterate a fixed number of rounds.
func NewPartitioned(entries []Entry) *Partitioned {
	if len(entries) == 0 {
		return &Partitioned{}
	}

	normalized := make([]Entry, len(entries))
	for i, e := range entries {
		normalized[i] = Entry{Keyword: e.Keyword, Vector: Normalize(e.Vector)}
	}

	numPartitions := int(math.Sqrt(float64(len(normalized))))
	if numPartitions < 2 {
		numPartitions = 2
	}

	centroids := make([][]float32, numPartitions)
	for i := range centroids {
		seed := normalized[i*len(normalized)/numPartitions].Vector
		centroids[i] = append([]float32(nil), seed...)
	}

	assignments := make([]int, len(normalized))
	dim := len(normalized[0].Vector)

	for iter := 0; iter < kmeansIterations; iter++ {
		for i, e := range normalized {
			assignments[i] = nearestCentroid(e.Vector, centroids)
		}

		sums := make([][]float64, numPartitions)
		counts := make([]int, numPartitions)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, e := range normalized {
			p := assignments[i]
			counts[p]++
			for d, x := range e.Vector {
				sums[p][d] += float64(x)
			}
		}
		for p := range centroids {
			if counts[p] == 0 {
				continue // empty partition keeps its old centroid
			}
			mean := make([]float32, dim)
			for d := range mean {
				mean[d] = float32(sums[p][d] / float64(counts[p]))
			}
			centroids[p] = Normalize(mean)
		}
	}

	parts := make([]partition, numPartitions)
	for p := range parts {
		parts[p].centroid = centroids[p]
	}
	for i, e := range normalized {
		p := assignments[i]
		parts[p].members = append(parts[p].members, e)
		angle := math.Acos(clamp(Dot(e.Vector, centroids[p])))
		if angle > parts[p].radius {
			parts[p].radius = angle
		}
	}

	return &Partitioned{partitions: parts}
}

func (p *Partitioned) Name() string { return "partitioned" }

func (p *Partitioned) Nearest(vec []float32, k int, threshold float64) []Neighbor {
	q := Normalize(vec)
	maxAngle := math.Acos(clamp(threshold))

	var results []Neighbor
	for _, part := range p.partitions {
		if len(part.members) == 0 {
			continue
		}
		centroidAngle := math.Acos(clamp(Dot(q, part.centroid)))
		// Closest any member can be to the query is
		// centroidAngle - radius; if even that angle exceeds the
		// threshold angle, nothing here qualifies.
		if centroidAngle-part.radius > maxAngle {
			continue
		}
		for _, entry := range part.members {
			sim := clamp(Dot(q, entry.Vector))
			if sim >= threshold {
				results = append(results, Neighbor{Keyword: entry.Keyword, Similarity: sim})
			}
		}
	}
	return sortNeighbors(results, k)
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best, bestSim := 0, math.Inf(-1)
	for i, c := range centroids {
		if sim := Dot(v, c); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return best
}
