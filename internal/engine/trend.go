package engine

import (
	"github.com/signalsift/signalsift/internal/model"
)

// TrendConfig holds the classification tunables. Share is the weight
// of the mean-score delta against the count delta; a spike of
// low-relevance items should register weaker than a spike of
// high-relevance ones.
type TrendConfig struct {
	RisingDelta  float64
	FallingDelta float64
	Share        float64
}

// DetectTrends compares each keyword's scored items in the current
// window against the baseline window. Pure function of its inputs:
// recomputing on the same data yields identical records. Keywords with
// zero items in both windows are omitted — absence is not a trend.
func DetectTrends(keywords []model.Keyword, current, baseline []model.ScoredItem, cfg TrendConfig) []model.TrendRecord {
	curCount, curMean := aggregate(current)
	baseCount, baseMean := aggregate(baseline)

	var records []model.TrendRecord
	for _, kw := range keywords {
		cc, cm := curCount[kw.Text], curMean[kw.Text]
		bc, bm := baseCount[kw.Text], baseMean[kw.Text]
		if cc == 0 && bc == 0 {
			continue
		}

		delta := combinedDelta(cc, bc, cm, bm, cfg.Share)
		records = append(records, model.TrendRecord{
			Keyword:       kw.Text,
			CurrentCount:  cc,
			BaselineCount: bc,
			CurrentMean:   cm,
			BaselineMean:  bm,
			Delta:         delta,
			Direction:     classify(delta, cfg),
		})
	}
	return records
}

func aggregate(items []model.ScoredItem) (counts map[string]int, means map[string]float64) {
	counts = make(map[string]int)
	sums := make(map[string]float64)
	for _, si := range items {
		counts[si.Best.Keyword]++
		sums[si.Best.Keyword] += si.Composite
	}
	means = make(map[string]float64, len(counts))
	for kw, n := range counts {
		means[kw] = sums[kw] / float64(n)
	}
	return counts, means
}

// combinedDelta blends the relative count change with the relative
// mean-score change. Denominators are floored so a keyword appearing
// from nothing yields a finite, large positive delta.
func combinedDelta(curCount, baseCount int, curMean, baseMean, share float64) float64 {
	countDelta := (float64(curCount) - float64(baseCount)) / max(float64(baseCount), 1)

	const minMean = 0.05
	scoreDelta := (curMean - baseMean) / max(baseMean, minMean)

	return (1-share)*countDelta + share*scoreDelta
}

func classify(delta float64, cfg TrendConfig) model.TrendDirection {
	switch {
	case delta >= cfg.RisingDelta:
		return model.TrendRising
	case delta <= cfg.FallingDelta:
		return model.TrendFalling
	default:
		return model.TrendStable
	}
}
