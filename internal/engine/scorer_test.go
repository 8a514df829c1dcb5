package engine

import (
	"context"
	"testing"
	"time"

	"github.com/signalsift/signalsift/internal/config"
	"github.com/signalsift/signalsift/internal/model"
)

func testItem(text string, engagement float64, age time.Duration, now time.Time) model.Item {
	return model.Item{
		Source:     "hackernews:test",
		ExternalID: "hn_1",
		Title:      text,
		Published:  now.Add(-age),
		Score:      engagement,
	}
}

func lexicalScorer(t *testing.T, keywords ...string) (*Scorer, *config.Config) {
	t.Helper()
	cfg := config.Default()
	kws := make([]model.Keyword, len(keywords))
	for i, k := range keywords {
		kws[i] = kw(k, i)
	}
	return NewScorer(cfg, kws, nil, nil), cfg
}

func TestScore_RelevanceGate(t *testing.T) {
	now := time.Now()
	s, _ := lexicalScorer(t, "machine learning")

	a := testItem("New developments in machine learning models", 50, 24*time.Hour, now)
	b := testItem("Bootstrapped side project launch", 10, 24*time.Hour, now)

	if _, ok := s.Score(context.Background(), "run", a, now); !ok {
		t.Error("item mentioning the keyword should pass the gate")
	}
	if _, ok := s.Score(context.Background(), "run", b, now); ok {
		t.Error("item without any match must be discarded")
	}
}

func TestScore_AnnotatesSnapshot(t *testing.T) {
	now := time.Now()
	s, _ := lexicalScorer(t, "machine learning")

	it := testItem("Frustrated, machine learning pipeline is broken, need help", 50, time.Hour, now)
	si, ok := s.Score(context.Background(), "run", it, now)
	if !ok {
		t.Fatal("item should pass the gate")
	}
	if si.Annotation.Category != "pain_point" {
		t.Errorf("category = %q", si.Annotation.Category)
	}
	if si.Annotation.Urgency != UrgencyHigh {
		t.Errorf("urgency = %q", si.Annotation.Urgency)
	}
	if si.Annotation.Polarity >= 0 {
		t.Errorf("polarity = %v", si.Annotation.Polarity)
	}
}

func TestScore_EmptyKeywordSet(t *testing.T) {
	now := time.Now()
	s, _ := lexicalScorer(t)

	it := testItem("anything at all", 100, time.Hour, now)
	if _, ok := s.Score(context.Background(), "run", it, now); ok {
		t.Error("empty keyword set can never match")
	}
}

// Holding all else equal, more engagement never lowers the score and
// more age never raises it.
func TestScore_Monotonicity(t *testing.T) {
	now := time.Now()
	s, _ := lexicalScorer(t, "machine learning")
	ctx := context.Background()

	prev := -1.0
	for _, engagement := range []float64{0, 1, 10, 100, 1000, 100000} {
		it := testItem("machine learning update", engagement, 24*time.Hour, now)
		si, ok := s.Score(ctx, "run", it, now)
		if !ok {
			t.Fatalf("engagement %v failed the gate", engagement)
		}
		if si.Composite < prev {
			t.Errorf("engagement %v decreased score: %v < %v", engagement, si.Composite, prev)
		}
		prev = si.Composite
	}

	prev = 2.0
	for _, age := range []time.Duration{time.Hour, 24 * time.Hour, 7 * 24 * time.Hour, 60 * 24 * time.Hour} {
		it := testItem("machine learning update", 50, age, now)
		si, ok := s.Score(ctx, "run", it, now)
		if !ok {
			t.Fatalf("age %v failed the gate", age)
		}
		if si.Composite > prev {
			t.Errorf("age %v increased score: %v > %v", age, si.Composite, prev)
		}
		prev = si.Composite
	}
}

func TestScore_MissingEngagementIsZeroNotError(t *testing.T) {
	now := time.Now()
	s, _ := lexicalScorer(t, "machine learning")

	it := testItem("machine learning update", 0, time.Hour, now)
	it.Score = 0
	it.Comments = 0
	if _, ok := s.Score(context.Background(), "run", it, now); !ok {
		t.Error("zero engagement must not fail a fresh matching item")
	}
}

func TestScore_KeywordWeightMultiplier(t *testing.T) {
	now := time.Now()
	cfg := config.Default()
	light := []model.Keyword{{Text: "machine learning", Weight: 1.0, Position: 0}}
	heavy := []model.Keyword{{Text: "machine learning", Weight: 1.5, Position: 0}}

	it := testItem("machine learning update", 50, time.Hour, now)
	ctx := context.Background()

	a, _ := NewScorer(cfg, light, nil, nil).Score(ctx, "run", it, now)
	b, _ := NewScorer(cfg, heavy, nil, nil).Score(ctx, "run", it, now)
	if b.Composite <= a.Composite {
		t.Errorf("weight 1.5 should outscore weight 1.0: %v vs %v", b.Composite, a.Composite)
	}
}

func TestScore_DegradedFlagRecorded(t *testing.T) {
	now := time.Now()
	s, _ := lexicalScorer(t, "machine learning")

	if !s.Degraded() {
		t.Fatal("scorer without embedder must report degraded mode")
	}
	si, ok := s.Score(context.Background(), "run", testItem("machine learning", 10, time.Hour, now), now)
	if !ok {
		t.Fatal("gate")
	}
	if !si.Degraded {
		t.Error("scored item must record the degraded mode")
	}
}

func TestDecay_FloorAndMonotonicity(t *testing.T) {
	cfg := config.Default()
	s := NewScorer(cfg, nil, nil, nil)

	fresh := s.decay(0)
	if fresh <= 0.99 || fresh > 1.0 {
		t.Errorf("fresh item decay = %v, want ~1", fresh)
	}

	ancient := s.decay(365 * 24 * time.Hour)
	if ancient < cfg.RecencyFloor {
		t.Errorf("decay fell below the floor: %v < %v", ancient, cfg.RecencyFloor)
	}
	if ancient > cfg.RecencyFloor+0.01 {
		t.Errorf("year-old item should sit at the floor, got %v", ancient)
	}

	half := s.decay(cfg.RecencyHalfLife())
	expected := cfg.RecencyFloor + (1-cfg.RecencyFloor)*0.5
	if diff := half - expected; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("half-life decay = %v, want %v", half, expected)
	}
}

func TestNormalizeEngagement_Bounds(t *testing.T) {
	for _, e := range []float64{0, 1, 100, 1e6, 1e9} {
		got := normalizeEngagement(e, e, time.Hour)
		if got < 0 || got > 1 {
			t.Errorf("normalizeEngagement(%v) = %v, out of [0,1]", e, got)
		}
	}
	if got := normalizeEngagement(-5, -3, time.Hour); got != 0 {
		t.Errorf("negative metrics should clamp to zero engagement, got %v", got)
	}
}
