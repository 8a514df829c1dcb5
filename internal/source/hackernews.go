package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/signalsift/signalsift/internal/logger"
	"github.com/signalsift/signalsift/internal/model"
)

const hnSearchByDateURL = "https://hn.algolia.com/api/v1/search_by_date"

// HackerNews searches stories through the Algolia API. One adapter
// instance covers one search query.
type HackerNews struct {
	query    string
	maxItems int
	baseURL  string
	client   *http.Client
}

func NewHackerNews(query string, timeout time.Duration, maxItems int) *HackerNews {
	return &HackerNews{
		query:    query,
		maxItems: maxItems,
		baseURL:  hnSearchByDateURL,
		client:   newHTTPClient(timeout),
	}
}

func (h *HackerNews) Name() string { return "hackernews:" + h.query }
func (h *HackerNews) Kind() string { return "hackernews" }

type hnHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Author      string `json:"author"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	StoryText   string `json:"story_text"`
	CreatedAtI  int64  `json:"created_at_i"`
}

type hnResponse struct {
	Hits []hnHit `json:"hits"`
}

// Fetch returns stories matching the query published after since.
// Hits missing an id or title are skipped, not fatal.
func (h *HackerNews) Fetch(ctx context.Context, since time.Time) ([]model.Item, error) {
	perPage := h.maxItems
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}
	params := url.Values{
		"query":          {h.query},
		"tags":           {"story"},
		"numericFilters": {fmt.Sprintf("created_at_i>%d", since.Unix())},
		"hitsPerPage":    {strconv.Itoa(perPage)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hackernews search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hackernews search: HTTP %d", resp.StatusCode)
	}

	var body hnResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("hackernews decode: %w", err)
	}

	items := make([]model.Item, 0, len(body.Hits))
	skipped := 0
	for _, hit := range body.Hits {
		it := hitToItem(h.Name(), hit)
		if !it.Valid() {
			skipped++
			continue
		}
		items = append(items, it)
	}
	if skipped > 0 {
		logger.Debug("skipped malformed hits", "source", h.Name(), "count", skipped)
	}
	return items, nil
}

func hitToItem(sourceName string, hit hnHit) model.Item {
	// Discussion page, not the submitted link: that is where the
	// engagement happens.
	hnURL := "https://news.ycombinator.com/item?id=" + hit.ObjectID
	id := ""
	if hit.ObjectID != "" {
		id = "hn_" + hit.ObjectID
	}
	return model.Item{
		Source:     sourceName,
		ExternalID: id,
		Title:      hit.Title,
		Body:       StripHTML(hit.StoryText),
		Author:     hit.Author,
		URL:        hnURL,
		Published:  time.Unix(hit.CreatedAtI, 0).UTC(),
		Score:      float64(hit.Points),
		Comments:   float64(hit.NumComments),
	}
}
