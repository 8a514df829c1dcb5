package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/signalsift/signalsift/internal/logger"
	"github.com/signalsift/signalsift/internal/model"
)

// RedditFeed reads a subreddit's public Atom feed. No API key needed.
type RedditFeed struct {
	name     string
	feedURL  string
	maxItems int
	parser   *gofeed.Parser
}

func NewRedditFeed(name, feedURL string, timeout time.Duration, maxItems int) *RedditFeed {
	p := gofeed.NewParser()
	p.Client = newHTTPClient(timeout)
	p.UserAgent = userAgent
	return &RedditFeed{name: name, feedURL: feedURL, maxItems: maxItems, parser: p}
}

func (r *RedditFeed) Name() string { return "reddit:" + r.name }
func (r *RedditFeed) Kind() string { return "reddit" }

func (r *RedditFeed) Fetch(ctx context.Context, since time.Time) ([]model.Item, error) {
	feed, err := r.parser.ParseURLWithContext(r.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("reddit feed %s: %w", r.name, err)
	}

	items := make([]model.Item, 0, len(feed.Items))
	skipped := 0
	for _, entry := range feed.Items {
		if r.maxItems > 0 && len(items) >= r.maxItems {
			break
		}
		it := r.entryToItem(entry)
		if !it.Valid() {
			skipped++
			continue
		}
		if it.Published.Before(since) {
			continue
		}
		items = append(items, it)
	}
	if skipped > 0 {
		logger.Debug("skipped malformed entries", "source", r.Name(), "count", skipped)
	}
	return items, nil
}

func (r *RedditFeed) entryToItem(entry *gofeed.Item) model.Item {
	body := StripHTML(entry.Content)
	if body == "" {
		body = StripHTML(entry.Description)
	}
	// Deleted posts keep their feed entry with a tombstone body.
	if body == "[removed]" || body == "[deleted]" {
		body = ""
	}

	author := ""
	if entry.Author != nil {
		author = strings.TrimPrefix(entry.Author.Name, "/u/")
	}

	var published time.Time
	if entry.PublishedParsed != nil {
		published = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		published = entry.UpdatedParsed.UTC()
	}

	return model.Item{
		Source:     r.Name(),
		ExternalID: redditPostID(entry),
		Title:      entry.Title,
		Body:       body,
		Author:     author,
		URL:        entry.Link,
		Published:  published,
	}
}

// redditPostID pulls the base36 post id out of the permalink, e.g.
// https://www.reddit.com/r/seo/comments/1abc2d/some_title/ -> 1abc2d.
func redditPostID(entry *gofeed.Item) string {
	link := entry.Link
	_, after, found := strings.Cut(link, "/comments/")
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(after, "/")
	return id
}
