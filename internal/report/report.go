// Package report renders scan results as markdown.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/signalsift/signalsift/internal/model"
)

// Data is everything one report needs, assembled by the caller from
// the store and the engine summary.
type Data struct {
	GeneratedAt time.Time
	RunID       string
	Scored      []model.ScoredItem
	// Members maps "source/external_id" of a representative to the
	// duplicates merged into it.
	Members map[string][]model.ClusterMember
	Trends  []model.TrendRecord
	Digest  string
	// FailedSources lists sources that produced nothing this run.
	FailedSources []string
}

// Render produces the full markdown report. Degraded runs and partial
// source failures are disclosed up front, never hidden.
func Render(d Data) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# SignalSift Report — %s\n\n", d.GeneratedAt.Format("2006-01-02 15:04 MST"))

	if degraded(d.Scored) {
		b.WriteString("> **Note:** semantic matching was unavailable for this run; " +
			"results are from lexical keyword matching only.\n\n")
	}
	if len(d.FailedSources) > 0 {
		fmt.Fprintf(&b, "> **Partial data:** no results from %s after retries.\n\n",
			strings.Join(d.FailedSources, ", "))
	}

	if d.Digest != "" {
		b.WriteString("## Digest\n\n")
		b.WriteString(d.Digest)
		b.WriteString("\n\n")
	}

	renderTrends(&b, d.Trends)
	renderItems(&b, d.Scored, d.Members)

	return b.String()
}

func degraded(scored []model.ScoredItem) bool {
	for _, si := range scored {
		if si.Degraded {
			return true
		}
	}
	return false
}

func renderTrends(b *strings.Builder, trends []model.TrendRecord) {
	if len(trends) == 0 {
		return
	}
	b.WriteString("## Trends\n\n")
	b.WriteString("| Keyword | Direction | Items (prev) | Mean score (prev) | Delta |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, tr := range trends {
		fmt.Fprintf(b, "| %s | %s %s | %d (%d) | %.2f (%.2f) | %+.2f |\n",
			tr.Keyword, directionMarker(tr.Direction), tr.Direction,
			tr.CurrentCount, tr.BaselineCount,
			tr.CurrentMean, tr.BaselineMean, tr.Delta)
	}
	b.WriteString("\n")
}

func directionMarker(d model.TrendDirection) string {
	switch d {
	case model.TrendRising:
		return "↑"
	case model.TrendFalling:
		return "↓"
	default:
		return "→"
	}
}

func renderItems(b *strings.Builder, scored []model.ScoredItem, members map[string][]model.ClusterMember) {
	if len(scored) == 0 {
		b.WriteString("No relevant items found.\n")
		return
	}

	byKeyword := make(map[string][]model.ScoredItem)
	var order []string
	for _, si := range scored {
		if _, seen := byKeyword[si.Best.Keyword]; !seen {
			order = append(order, si.Best.Keyword)
		}
		byKeyword[si.Best.Keyword] = append(byKeyword[si.Best.Keyword], si)
	}
	sort.Strings(order)

	for _, keyword := range order {
		items := byKeyword[keyword]
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Composite > items[j].Composite
		})

		fmt.Fprintf(b, "## %s (%d)\n\n", keyword, len(items))
		for _, si := range items {
			fmt.Fprintf(b, "- **[%s](%s)** — score %.2f, %s match (%.2f), %s, %s%s\n",
				si.Item.Title, si.Item.URL, si.Composite,
				si.Best.Kind, si.Best.Similarity,
				si.Item.Source, si.Item.Published.Format("Jan 2"),
				annotationTag(si.Annotation))

			key := si.Item.Source + "/" + si.Item.ExternalID
			for _, m := range members[key] {
				fmt.Fprintf(b, "  - also seen on %s: %s\n", m.Source, m.URL)
			}
		}
		b.WriteString("\n")
	}
}

// annotationTag renders the classification suffix of an item line.
// General low-urgency items get no tag, the common case.
func annotationTag(a model.Annotation) string {
	var parts []string
	if a.Category != "" && a.Category != "general" {
		parts = append(parts, strings.ReplaceAll(a.Category, "_", " "))
	}
	if a.Urgency == "high" || a.Urgency == "critical" {
		parts = append(parts, "urgency: "+a.Urgency)
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, ", ") + "]"
}
