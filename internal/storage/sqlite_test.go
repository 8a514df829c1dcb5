package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/signalsift/signalsift/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func storedItem(source, id string, published time.Time) model.Item {
	return model.Item{
		Source:     source,
		ExternalID: id,
		Title:      "title " + id,
		Body:       "body",
		Author:     "author",
		URL:        "https://example.com/" + id,
		Published:  published,
		Score:      10,
		Comments:   3,
	}
}

func TestKeywords_DeclarationOrderAndSync(t *testing.T) {
	db := openTestDB(t)

	if err := db.SyncKeywords([]string{"seo", "machine learning", "python tips"}); err != nil {
		t.Fatal(err)
	}
	// Re-sync must not duplicate or reorder.
	if err := db.SyncKeywords([]string{"seo", "machine learning"}); err != nil {
		t.Fatal(err)
	}

	keywords, err := db.Keywords()
	if err != nil {
		t.Fatal(err)
	}
	if len(keywords) != 3 {
		t.Fatalf("got %d keywords", len(keywords))
	}
	for i, want := range []string{"seo", "machine learning", "python tips"} {
		if keywords[i].Text != want || keywords[i].Position != i {
			t.Errorf("keyword %d = %q pos %d, want %q pos %d",
				i, keywords[i].Text, keywords[i].Position, want, i)
		}
	}
}

func TestAddRemoveKeyword(t *testing.T) {
	db := openTestDB(t)

	if err := db.AddKeyword("golang", 1.5); err != nil {
		t.Fatal(err)
	}
	if err := db.AddKeyword("golang", 1.0); err == nil {
		t.Error("re-declaring a keyword must fail")
	}

	keywords, _ := db.Keywords()
	if len(keywords) != 1 || keywords[0].Weight != 1.5 {
		t.Fatalf("unexpected keywords: %+v", keywords)
	}

	if err := db.RemoveKeyword("golang"); err != nil {
		t.Fatal(err)
	}
	if err := db.RemoveKeyword("golang"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestKeywordsAsOf(t *testing.T) {
	db := openTestDB(t)
	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	for _, row := range []struct {
		text      string
		createdAt time.Time
	}{
		{"seo", day1},
		{"machine learning", day3},
	} {
		_, err := db.conn.Exec(
			`INSERT INTO keywords (text, weight, created_at) VALUES (?, 1.0, ?)`,
			row.text, row.createdAt)
		if err != nil {
			t.Fatal(err)
		}
	}

	// A window ending on day 2 must not see the later addition.
	got, err := db.KeywordsAsOf(day1.Add(24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "seo" {
		t.Fatalf("as-of day 2 = %+v, want only seo", got)
	}

	got, err = db.KeywordsAsOf(day3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Text != "machine learning" || got[1].Position != 1 {
		t.Fatalf("as-of day 3 = %+v", got)
	}
}

func TestUpsertItem_Idempotent(t *testing.T) {
	db := openTestDB(t)
	published := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	it := storedItem("hackernews:x", "hn_1", published)
	inserted, err := db.UpsertItem(it)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("first upsert should insert")
	}

	// Same identity, fresher engagement.
	it.Score = 99
	inserted, err = db.UpsertItem(it)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("second upsert must not insert a duplicate")
	}

	items, _, err := db.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if items != 1 {
		t.Fatalf("expected 1 stored item, got %d", items)
	}
}

func TestScoredRoundTrip(t *testing.T) {
	db := openTestDB(t)
	published := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	scoredAt := time.Date(2026, 8, 21, 8, 0, 0, 0, time.UTC)

	it := storedItem("reddit:r/seo", "abc", published)
	if _, err := db.UpsertItem(it); err != nil {
		t.Fatal(err)
	}

	si := model.ScoredItem{
		RunID: "run-1",
		Item:  it,
		Best: model.Match{
			Keyword:    "seo",
			Kind:       model.MatchLexical,
			Similarity: 1.0,
			Span:       "title abc",
		},
		Composite: 0.71,
		Annotation: model.Annotation{
			Category: "pain_point",
			Polarity: -0.5,
			Urgency:  "high",
		},
		Degraded: true,
		ScoredAt: scoredAt,
	}
	if err := db.SaveScored([]model.ScoredItem{si}); err != nil {
		t.Fatal(err)
	}

	got, err := db.ScoredForRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d snapshots", len(got))
	}
	g := got[0]
	if g.Best.Keyword != "seo" || g.Best.Kind != model.MatchLexical || g.Composite != 0.71 {
		t.Errorf("snapshot mismatch: %+v", g)
	}
	if !g.Degraded {
		t.Error("degraded flag lost")
	}
	if g.Annotation != si.Annotation {
		t.Errorf("annotation = %+v, want %+v", g.Annotation, si.Annotation)
	}
	if g.Item.Title != it.Title || g.Item.URL != it.URL {
		t.Errorf("item fields not joined back: %+v", g.Item)
	}
	if !g.Item.Published.Equal(published) {
		t.Errorf("published = %v, want %v", g.Item.Published, published)
	}
}

func TestScoredInRange_WindowBoundaries(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	it := storedItem("s", "1", base)
	if _, err := db.UpsertItem(it); err != nil {
		t.Fatal(err)
	}

	for i, at := range []time.Time{base, base.Add(24 * time.Hour), base.Add(7 * 24 * time.Hour)} {
		si := model.ScoredItem{
			RunID:     "run",
			Item:      it,
			Best:      model.Match{Keyword: "k", Kind: model.MatchLexical, Similarity: 1},
			Composite: float64(i),
			ScoredAt:  at,
		}
		if err := db.SaveScored([]model.ScoredItem{si}); err != nil {
			t.Fatal(err)
		}
	}

	// [base, base+7d) excludes the snapshot exactly at base+7d.
	got, err := db.ScoredInRange(base, base.Add(7*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 snapshots in window, got %d", len(got))
	}
}

func TestSourceResultsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	results := []model.SourceResult{
		{Source: "hackernews:go", Items: 12, Attempts: 1},
		{Source: "reddit:r/seo", Items: 0, Attempts: 3, Err: errors.New("429 too many requests")},
	}
	if err := db.SaveSourceResults("run-1", results); err != nil {
		t.Fatal(err)
	}

	failed, err := db.FailedSourcesForRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0] != "reddit:r/seo" {
		t.Errorf("failed sources = %v, want only the erroring one", failed)
	}

	// A run with no recorded outcomes reports nothing, not an error.
	failed, err = db.FailedSourcesForRun("unknown-run")
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 0 {
		t.Errorf("unknown run returned %v", failed)
	}
}

func TestClustersRoundTrip(t *testing.T) {
	db := openTestDB(t)

	clusters := []model.DuplicateCluster{
		{
			Representative: storedItem("a", "1", time.Now()),
			Members: []model.ClusterMember{
				{Source: "b", ExternalID: "2", URL: "https://example.com/2"},
			},
		},
		{Representative: storedItem("c", "3", time.Now())},
	}
	if err := db.SaveClusters("run-1", clusters); err != nil {
		t.Fatal(err)
	}

	got, err := db.ClustersForRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("only clusters with members produce rows, got %d", len(got))
	}
	members := got["a/1"]
	if len(members) != 1 || members[0].Source != "b" {
		t.Errorf("members = %+v", members)
	}
}

func TestLatestRunID(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.LatestRunID(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store should return ErrNotFound, got %v", err)
	}

	it := storedItem("s", "1", time.Now())
	if _, err := db.UpsertItem(it); err != nil {
		t.Fatal(err)
	}
	for _, run := range []string{"run-1", "run-2"} {
		si := model.ScoredItem{
			RunID: run, Item: it,
			Best:     model.Match{Keyword: "k", Kind: model.MatchLexical, Similarity: 1},
			ScoredAt: time.Now(),
		}
		if err := db.SaveScored([]model.ScoredItem{si}); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := db.LatestRunID()
	if err != nil {
		t.Fatal(err)
	}
	if latest != "run-2" {
		t.Errorf("latest = %q", latest)
	}
}

func TestRecordTrendPeriod_Idempotent(t *testing.T) {
	db := openTestDB(t)
	start := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)

	records := []model.TrendRecord{
		{Keyword: "seo", CurrentCount: 10, BaselineCount: 2, Delta: 2.4, Direction: model.TrendRising},
	}
	if err := db.RecordTrendPeriod(records, start, end); err != nil {
		t.Fatal(err)
	}
	// Recomputation overwrites instead of duplicating.
	records[0].Delta = 2.5
	if err := db.RecordTrendPeriod(records, start, end); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM trend_periods`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("trend period duplicated: %d rows", n)
	}
}
