package report

import (
	"strings"
	"testing"
	"time"

	"github.com/signalsift/signalsift/internal/model"
)

func sampleScored(keyword, title, source, id string, composite float64, degraded bool) model.ScoredItem {
	return model.ScoredItem{
		RunID: "run-1",
		Item: model.Item{
			Source:     source,
			ExternalID: id,
			Title:      title,
			URL:        "https://example.com/" + id,
			Published:  time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		},
		Best: model.Match{
			Keyword:    keyword,
			Kind:       model.MatchLexical,
			Similarity: 1.0,
		},
		Composite: composite,
		Degraded:  degraded,
	}
}

func TestRender_GroupsByKeywordHighestFirst(t *testing.T) {
	d := Data{
		GeneratedAt: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		Scored: []model.ScoredItem{
			sampleScored("seo", "Low scorer", "a", "1", 0.3, false),
			sampleScored("seo", "High scorer", "a", "2", 0.9, false),
			sampleScored("python", "Python item", "b", "3", 0.5, false),
		},
	}

	out := Render(d)
	if !strings.Contains(out, "## seo (2)") || !strings.Contains(out, "## python (1)") {
		t.Fatalf("missing keyword sections:\n%s", out)
	}
	if strings.Index(out, "High scorer") > strings.Index(out, "Low scorer") {
		t.Error("items not ordered by descending score")
	}
}

func TestRender_AnnotationTags(t *testing.T) {
	tagged := sampleScored("seo", "Broken plugin rant", "a", "1", 0.6, false)
	tagged.Annotation = model.Annotation{Category: "pain_point", Polarity: -0.8, Urgency: "high"}
	plain := sampleScored("seo", "Quiet item", "a", "2", 0.4, false)
	plain.Annotation = model.Annotation{Category: "general", Urgency: "low"}

	out := Render(Data{
		GeneratedAt: time.Now(),
		Scored:      []model.ScoredItem{tagged, plain},
	})
	if !strings.Contains(out, "[pain point, urgency: high]") {
		t.Errorf("annotation tag missing:\n%s", out)
	}
	if strings.Contains(out, "[general") || strings.Contains(out, "urgency: low") {
		t.Error("general low-urgency items must not be tagged")
	}
}

func TestRender_DisclosesDegradedMode(t *testing.T) {
	d := Data{
		GeneratedAt: time.Now(),
		Scored:      []model.ScoredItem{sampleScored("seo", "t", "a", "1", 0.5, true)},
	}
	if !strings.Contains(Render(d), "lexical keyword matching only") {
		t.Error("degraded mode not disclosed")
	}

	d.Scored[0].Degraded = false
	if strings.Contains(Render(d), "lexical keyword matching only") {
		t.Error("disclosure shown for a non-degraded run")
	}
}

func TestRender_PartialFailureAndProvenance(t *testing.T) {
	d := Data{
		GeneratedAt:   time.Now(),
		Scored:        []model.ScoredItem{sampleScored("seo", "t", "a", "1", 0.5, false)},
		FailedSources: []string{"reddit:r/seo"},
		Members: map[string][]model.ClusterMember{
			"a/1": {{Source: "b", ExternalID: "9", URL: "https://example.com/9"}},
		},
	}

	out := Render(d)
	if !strings.Contains(out, "no results from reddit:r/seo") {
		t.Error("failed source not reported")
	}
	if !strings.Contains(out, "also seen on b") {
		t.Error("merged member provenance missing")
	}
}

func TestRender_TrendsAndDigest(t *testing.T) {
	d := Data{
		GeneratedAt: time.Now(),
		Digest:      "Quiet week overall.",
		Trends: []model.TrendRecord{
			{Keyword: "seo", Direction: model.TrendRising, CurrentCount: 10, BaselineCount: 2, Delta: 2.4},
		},
	}

	out := Render(d)
	if !strings.Contains(out, "Quiet week overall.") {
		t.Error("digest missing")
	}
	if !strings.Contains(out, "rising") || !strings.Contains(out, "↑") {
		t.Error("trend row missing")
	}
	if !strings.Contains(out, "No relevant items found.") {
		t.Error("empty item list should say so")
	}
}
