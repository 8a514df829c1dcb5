// Package source contains the content source adapters. Every adapter
// normalizes its upstream format into model.Item so the rest of the
// pipeline never sees source-specific shapes.
package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/signalsift/signalsift/internal/config"
	"github.com/signalsift/signalsift/internal/model"
)

const userAgent = "signalsift/1.0 (content monitor)"

// Source is the capability every adapter exposes to the engine.
// Fetch returns normalized items published after since; transient
// upstream failures surface as errors so the caller can retry.
type Source interface {
	Fetch(ctx context.Context, since time.Time) ([]model.Item, error)
	Name() string
	Kind() string
}

// FromConfig builds adapters for every enabled source declaration.
// Unknown kinds are an error: a typo in config should not silently
// drop a source from monitoring.
func FromConfig(sources []config.SourceConfig, timeout time.Duration, maxItems int) ([]Source, error) {
	var out []Source
	for _, sc := range sources {
		if !sc.IsEnabled() {
			continue
		}
		switch sc.Kind {
		case "hackernews":
			out = append(out, NewHackerNews(sc.Query, timeout, maxItems))
		case "reddit":
			out = append(out, NewRedditFeed(sc.Name, sc.Feed, timeout, maxItems))
		case "youtube":
			out = append(out, NewYouTubeFeed(sc.Name, sc.Feed, timeout, maxItems))
		default:
			return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
		}
	}
	return out, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// StripHTML reduces feed HTML to plain text. Reddit and YouTube feeds
// ship entry bodies as rendered HTML fragments.
func StripHTML(raw string) string {
	if raw == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		// Fall back to the raw string rather than losing the item.
		return NormalizeWhitespace(raw)
	}
	return NormalizeWhitespace(doc.Text())
}

// NormalizeWhitespace collapses runs of whitespace to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
