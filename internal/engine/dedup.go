package engine

import (
	"sort"
	"time"

	"github.com/signalsift/signalsift/internal/model"
)

// SimilarityFunc compares two items' texts on a [0,1] scale. The
// engine supplies an embedding-backed function when available and
// token overlap otherwise.
type SimilarityFunc func(a, b model.Item) float64

// JaccardSimilarity is the embedding-free fallback.
func JaccardSimilarity(a, b model.Item) float64 {
	return TokenOverlap(a.Text(), b.Text())
}

// ClusterDuplicates collapses items telling the same story into
// clusters. Candidates must share near-equal normalized titles or
// exceed the similarity threshold, and lie within the time window of
// the cluster representative. The result is fully deterministic:
// identical input always yields identical clusters regardless of the
// input order.
func ClusterDuplicates(items []model.Item, window time.Duration, threshold float64, sim SimilarityFunc) []model.DuplicateCluster {
	if sim == nil {
		sim = JaccardSimilarity
	}

	// Canonical processing order removes any input-order dependence.
	sorted := make([]model.Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Published.Equal(b.Published) {
			return a.Published.Before(b.Published)
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.ExternalID < b.ExternalID
	})

	type group struct {
		members []model.Item
	}
	var groups []*group

	for _, it := range sorted {
		joined := false
		for _, g := range groups {
			if sameStory(g.members[0], it, window, threshold, sim) {
				g.members = append(g.members, it)
				joined = true
				break
			}
		}
		if !joined {
			groups = append(groups, &group{members: []model.Item{it}})
		}
	}

	clusters := make([]model.DuplicateCluster, 0, len(groups))
	for _, g := range groups {
		clusters = append(clusters, buildCluster(g.members))
	}
	return clusters
}

// sameStory decides whether candidate belongs to the cluster anchored
// at anchor. Either the normalized titles are equal, or the texts are
// similar beyond the duplication threshold; in both cases the
// timestamps must lie within the window.
func sameStory(anchor, candidate model.Item, window time.Duration, threshold float64, sim SimilarityFunc) bool {
	gap := candidate.Published.Sub(anchor.Published)
	if gap < 0 {
		gap = -gap
	}
	if gap > window {
		return false
	}
	if NormalizeTitle(anchor.Title) == NormalizeTitle(candidate.Title) {
		return true
	}
	return sim(anchor, candidate) >= threshold
}

// buildCluster picks the representative: highest engagement, then
// earliest timestamp, then lexically smallest source identifier.
func buildCluster(members []model.Item) model.DuplicateCluster {
	rep := members[0]
	for _, it := range members[1:] {
		if betterRepresentative(it, rep) {
			rep = it
		}
	}

	cluster := model.DuplicateCluster{Representative: rep}
	for _, it := range members {
		if it.Source == rep.Source && it.ExternalID == rep.ExternalID {
			continue
		}
		cluster.Members = append(cluster.Members, model.ClusterMember{
			Source:     it.Source,
			ExternalID: it.ExternalID,
			URL:        it.URL,
		})
	}
	return cluster
}

func betterRepresentative(a, b model.Item) bool {
	ea, eb := a.Score+a.Comments, b.Score+b.Comments
	if ea != eb {
		return ea > eb
	}
	if !a.Published.Equal(b.Published) {
		return a.Published.Before(b.Published)
	}
	return a.Source < b.Source
}
