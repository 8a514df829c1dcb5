package engine

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/signalsift/signalsift/internal/config"
	"github.com/signalsift/signalsift/internal/embed"
	"github.com/signalsift/signalsift/internal/index"
	"github.com/signalsift/signalsift/internal/logger"
	"github.com/signalsift/signalsift/internal/model"
)

// commentWeight makes a comment count double relative to a raw score
// point: discussion is a stronger traction signal than passive votes.
const commentWeight = 2.0

// engagementScale is the engagement value that maps to 1.0 after log
// normalization. Anything beyond it is clipped.
const engagementScale = 10000.0

// Scorer turns items into scored items against an immutable keyword
// set. The index and embedder may be nil, in which case scoring runs
// lexical-only and marks its output degraded. Safe for concurrent use:
// the degraded flag is atomic because scoring goroutines may flip it
// when the embedder drops mid-run.
type Scorer struct {
	cfg      *config.Config
	keywords []model.Keyword
	idx      index.Strategy
	embedder embed.Embedder
	degraded atomic.Bool
}

func NewScorer(cfg *config.Config, keywords []model.Keyword, idx index.Strategy, embedder embed.Embedder) *Scorer {
	s := &Scorer{
		cfg:      cfg,
		keywords: keywords,
		idx:      idx,
		embedder: embedder,
	}
	s.degraded.Store(idx == nil || embedder == nil)
	return s
}

// Degraded reports whether scoring runs without semantic matching.
func (s *Scorer) Degraded() bool { return s.degraded.Load() }

// Score computes the best match and composite score of one item.
// The second return is false when the item fails the relevance gate
// (no match, or best composite below the minimum score).
func (s *Scorer) Score(ctx context.Context, runID string, item model.Item, now time.Time) (model.ScoredItem, bool) {
	if len(s.keywords) == 0 {
		return model.ScoredItem{}, false
	}

	matches := LexicalMatches(item.Text(), s.keywords)
	matches = append(matches, s.semanticMatches(ctx, item, matches)...)
	if len(matches) == 0 {
		return model.ScoredItem{}, false
	}

	eng := normalizeEngagement(item.Score, item.Comments, now.Sub(item.Published))
	rec := s.decay(now.Sub(item.Published))

	best := matches[0]
	bestScore := s.composite(best, eng, rec)
	for _, m := range matches[1:] {
		score := s.composite(m, eng, rec)
		if score > bestScore || (score == bestScore && betterMatch(m, best)) {
			best, bestScore = m, score
		}
	}

	if bestScore < s.cfg.MinScore {
		return model.ScoredItem{}, false
	}

	return model.ScoredItem{
		RunID:      runID,
		Item:       item,
		Best:       best,
		Composite:  bestScore,
		Annotation: Annotate(item.Text()),
		Degraded:   s.degraded.Load(),
		ScoredAt:   now,
	}, true
}

// semanticMatches queries the index for keywords near the item text,
// skipping keywords the lexical pass already found. An unavailable
// embedder flips the scorer into degraded mode instead of failing.
func (s *Scorer) semanticMatches(ctx context.Context, item model.Item, lexical []model.Match) []model.Match {
	if s.degraded.Load() {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, item.Text())
	if err != nil {
		if errors.Is(err, embed.ErrUnavailable) {
			logger.Warn("embedding unavailable, scoring lexical-only", "error", err)
			s.degraded.Store(true)
			return nil
		}
		logger.Warn("embedding failed for item", "item", item.ExternalID, "error", err)
		return nil
	}

	seen := make(map[string]bool, len(lexical))
	for _, m := range lexical {
		seen[m.Keyword] = true
	}

	neighbors := s.idx.Nearest(vec, len(s.keywords), s.cfg.SimilarityThreshold)
	var out []model.Match
	for _, n := range neighbors {
		if seen[n.Keyword.Text] {
			continue
		}
		out = append(out, model.Match{
			Keyword:    n.Keyword.Text,
			Kind:       model.MatchSemantic,
			Similarity: n.Similarity,
			Span:       spanAround(item.Text(), 0, 0),
		})
	}
	return out
}

// composite combines similarity, engagement and recency with the
// configured weights, then applies the keyword weight multiplier.
func (s *Scorer) composite(m model.Match, engagement, recency float64) float64 {
	w := s.cfg.ScoreWeights
	score := w.Semantic*m.Similarity + w.Engagement*engagement + w.Recency*recency
	return score * s.keywordWeight(m.Keyword)
}

func (s *Scorer) keywordWeight(text string) float64 {
	for _, kw := range s.keywords {
		if kw.Text == text {
			if kw.Weight > 0 {
				return kw.Weight
			}
			return 1.0
		}
	}
	return 1.0
}

// betterMatch breaks composite-score ties: lexical beats semantic,
// then higher similarity, then keyword declaration order via the
// keywords slice being position-sorted.
func betterMatch(a, b model.Match) bool {
	if a.Kind != b.Kind {
		return a.Kind == model.MatchLexical
	}
	return a.Similarity > b.Similarity
}

// normalizeEngagement maps raw engagement onto [0,1]. Comments weigh
// double, and engagement velocity (per hour since publication) is
// folded in so fresh traction counts more than slow accumulation.
// Log-scaled, so it is monotone in both metrics and clipped at 1.
func normalizeEngagement(score, comments float64, age time.Duration) float64 {
	if score < 0 {
		score = 0
	}
	if comments < 0 {
		comments = 0
	}
	total := score + commentWeight*comments

	ageHours := age.Hours()
	if ageHours < 1 {
		ageHours = 1
	}
	velocity := total / ageHours

	normalized := math.Log1p(total+velocity) / math.Log1p(engagementScale)
	if normalized > 1 {
		return 1
	}
	return normalized
}

// decay is the recency factor: exponential half-life decay toward a
// floor, never zero, so an influential old item is dampened but not
// erased.
func (s *Scorer) decay(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	halfLife := s.cfg.RecencyHalfLife()
	if halfLife <= 0 {
		return 1
	}
	floor := s.cfg.RecencyFloor
	raw := math.Pow(0.5, age.Hours()/halfLife.Hours())
	return floor + (1-floor)*raw
}
