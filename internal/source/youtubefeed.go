package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/signalsift/signalsift/internal/logger"
	"github.com/signalsift/signalsift/internal/model"
)

// YouTubeFeed reads a channel's public Atom feed
// (https://www.youtube.com/feeds/videos.xml?channel_id=...).
// View counts come from the media:community extension the feed carries.
type YouTubeFeed struct {
	name     string
	feedURL  string
	maxItems int
	parser   *gofeed.Parser
}

func NewYouTubeFeed(name, feedURL string, timeout time.Duration, maxItems int) *YouTubeFeed {
	p := gofeed.NewParser()
	p.Client = newHTTPClient(timeout)
	p.UserAgent = userAgent
	return &YouTubeFeed{name: name, feedURL: feedURL, maxItems: maxItems, parser: p}
}

func (y *YouTubeFeed) Name() string { return "youtube:" + y.name }
func (y *YouTubeFeed) Kind() string { return "youtube" }

func (y *YouTubeFeed) Fetch(ctx context.Context, since time.Time) ([]model.Item, error) {
	feed, err := y.parser.ParseURLWithContext(y.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube feed %s: %w", y.name, err)
	}

	items := make([]model.Item, 0, len(feed.Items))
	skipped := 0
	for _, entry := range feed.Items {
		if y.maxItems > 0 && len(items) >= y.maxItems {
			break
		}
		it := y.entryToItem(entry)
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
		logger.Debug("skipped malformed entries", "source", y.Name(), "count", skipped)
	}
	return items, nil
}

func (y *YouTubeFeed) entryToItem(entry *gofeed.Item) model.Item {
	author := ""
	if entry.Author != nil {
		author = entry.Author.Name
	}

	var published time.Time
	if entry.PublishedParsed != nil {
		published = entry.PublishedParsed.UTC()
	}

	return model.Item{
		Source:     y.Name(),
		ExternalID: videoID(entry),
		Title:      entry.Title,
		Body:       mediaDescription(entry),
		Author:     author,
		URL:        entry.Link,
		Published:  published,
		Score:      mediaViews(entry),
	}
}

// videoID prefers the yt:videoId extension and falls back to the
// "yt:video:ID" GUID format.
func videoID(entry *gofeed.Item) string {
	if exts, ok := entry.Extensions["yt"]["videoId"]; ok && len(exts) > 0 {
		return exts[0].Value
	}
	if id, found := strings.CutPrefix(entry.GUID, "yt:video:"); found {
		return id
	}
	return ""
}

// mediaDescription digs the video description out of media:group.
func mediaDescription(entry *gofeed.Item) string {
	for _, group := range entry.Extensions["media"]["group"] {
		for _, desc := range group.Children["description"] {
			return NormalizeWhitespace(desc.Value)
		}
	}
	return StripHTML(entry.Description)
}

// mediaViews reads media:group > media:community > media:statistics.
func mediaViews(entry *gofeed.Item) float64 {
	for _, group := range entry.Extensions["media"]["group"] {
		for _, community := range group.Children["community"] {
			for _, stats := range community.Children["statistics"] {
				return parseViews(stats)
			}
		}
	}
	return 0
}

func parseViews(stats ext.Extension) float64 {
	raw, ok := stats.Attrs["views"]
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
