// Package model holds the shared data contracts between sources, the
// relevance engine, storage and reporting.
package model

import "time"

// Item is the source-agnostic content unit every adapter must produce.
// (Source, ExternalID) is the identity key: re-ingesting the same pair
// must never create a second stored item.
type Item struct {
	Source     string // adapter identifier, e.g. "hackernews", "reddit:r/seo"
	ExternalID string // stable id inside the source
	Title      string
	Body       string
	Author     string
	URL        string
	Published  time.Time

	// Engagement metrics on a common non-negative scale. Semantics vary
	// per source (HN points, reddit upvotes, YouTube views).
	Score    float64
	Comments float64
}

// Text returns the matchable text of an item.
func (it Item) Text() string {
	if it.Body == "" {
		return it.Title
	}
	return it.Title + " " + it.Body
}

// Valid reports whether the adapter produced the required fields.
// Items failing this check are skipped and counted, never fatal.
func (it Item) Valid() bool {
	return it.Source != "" && it.ExternalID != "" && it.Title != "" && !it.Published.IsZero()
}

// Keyword is a user-declared phrase of interest. Position records
// declaration order and is the reproducible tie-break for equal
// similarities.
type Keyword struct {
	Text      string
	Weight    float64 // multiplier, 1.0 when unset
	Position  int
	CreatedAt time.Time
}

// MatchKind distinguishes how a keyword was associated with an item.
type MatchKind string

const (
	MatchLexical  MatchKind = "lexical"
	MatchSemantic MatchKind = "semantic"
)

// Match relates one item to one keyword.
type Match struct {
	Keyword    string
	Kind       MatchKind
	Similarity float64 // [0,1]; 1.0 for exact lexical hits
	Span       string  // contributing text fragment, for display
}

// Annotation classifies a scored item's content for report
// organization: a coarse category plus sentiment polarity and urgency.
type Annotation struct {
	Category string  // pain_point, success_story, tool_comparison, ...
	Polarity float64 // [-1, 1]
	Urgency  string  // low | medium | high | critical
}

// ScoredItem is an item snapshot plus its best match and composite score.
// Snapshots are append-only: later runs write new ones instead of
// mutating old ones, because trend detection reads history.
type ScoredItem struct {
	RunID      string
	Item       Item
	Best       Match
	Composite  float64
	Annotation Annotation
	// Lexical-only scoring mode, recorded so reports can disclose
	// degraded matching.
	Degraded bool
	ScoredAt time.Time
}

// ClusterMember keeps the provenance of a merged duplicate.
type ClusterMember struct {
	Source     string
	ExternalID string
	URL        string
}

// DuplicateCluster is a set of items judged to be the same story.
// Representative carries the one item that gets scored.
type DuplicateCluster struct {
	Representative Item
	Members        []ClusterMember // merged duplicates, representative excluded
}

// TrendDirection classifies a keyword's movement between windows.
type TrendDirection string

const (
	TrendRising  TrendDirection = "rising"
	TrendFalling TrendDirection = "falling"
	TrendStable  TrendDirection = "stable"
)

// TrendRecord is the per-keyword comparison of two non-overlapping
// windows. It is a report artifact, recomputable from scored history.
type TrendRecord struct {
	Keyword       string
	CurrentCount  int
	BaselineCount int
	CurrentMean   float64 // mean composite score in the current window
	BaselineMean  float64
	Delta         float64 // combined count-and-score delta
	Direction     TrendDirection
}

// SourceResult is the per-source outcome of one ingestion pass.
type SourceResult struct {
	Source   string
	Items    int
	Attempts int
	Err      error
}

// RunSummary aggregates what a run collected and what it skipped.
// A run always completes with whatever was obtainable; the summary is
// how partial failure is surfaced.
type RunSummary struct {
	RunID          string
	StartedAt      time.Time
	Sources        []SourceResult
	ItemsCollected int
	Malformed      int
	Duplicates     int
	Scored         int
	Discarded      int // below the relevance gate
	Degraded       bool
}

// FailedSources lists the sources that exhausted their retries.
func (rs RunSummary) FailedSources() []string {
	var failed []string
	for _, sr := range rs.Sources {
		if sr.Err != nil {
			failed = append(failed, sr.Source)
		}
	}
	return failed
}
