// Package gemini produces the optional natural-language digest that
// tops the markdown report.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/signalsift/signalsift/internal/model"
)

const (
	modelName      = "gemini-1.5-flash"
	maxPromptChars = 6000
	digestItems    = 10
)

// Client wraps the Gemini API with a per-process request cap so a
// scheduled scan cannot burn through the free-tier quota.
type Client struct {
	client *genai.Client

	mu          sync.Mutex
	requests    int
	maxRequests int
}

func NewClient(ctx context.Context, apiKey string, maxRequests int) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, maxRequests: maxRequests}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func (c *Client) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxRequests > 0 && c.requests >= c.maxRequests {
		return false
	}
	c.requests++
	return true
}

// Digest summarizes the top scored items into a few sentences. Returns
// an empty string without error when the request cap is exhausted; the
// report then simply has no digest section.
func (c *Client) Digest(ctx context.Context, items []model.ScoredItem) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	if !c.allow() {
		return "", nil
	}

	if len(items) > digestItems {
		items = items[:digestItems]
	}

	var b strings.Builder
	for i, si := range items {
		fmt.Fprintf(&b, "%d. [%s] %s (score %.2f, source %s)\n",
			i+1, si.Best.Keyword, si.Item.Title, si.Composite, si.Item.Source)
	}

	prompt := fmt.Sprintf(`These are today's most relevant items from monitored content sources, each tagged with the topic keyword it matched:

%s
Write a 3-5 sentence digest of what is happening across these topics. Plain prose, no bullet points, no preamble.`, truncate(b.String(), maxPromptChars))

	gm := c.client.GenerativeModel(modelName)
	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini digest: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini digest: empty response")
	}
	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars])
}
