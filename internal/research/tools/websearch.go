package tools

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	readability "github.com/go-shiori/go-readability"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/core"
)

// SearchTool queries a Brave-compatible web search API. When fetch_content
// is enabled the top result pages are pulled and reduced to readable text,
// so downstream ranking sees article bodies instead of snippets.
type SearchTool struct {
	cfg    config.SearchToolConfig
	http   *core.HTTPClient
	logger *log.Logger
}

func NewSearchTool(cfg config.SearchToolConfig, httpc *core.HTTPClient) *SearchTool {
	return &SearchTool{
		cfg:    cfg,
		http:   httpc,
		logger: log.New(log.Writer(), "[WEBSEARCH] ", log.LstdFlags),
	}
}

func (t *SearchTool) Name() string { return "web_search" }

func (t *SearchTool) Call(ctx context.Context, query string, options map[string]interface{}) (core.ToolResult, error) {
	if maxLen := t.cfg.MaxQueryLen; maxLen > 0 && len(query) > maxLen {
		query = truncateAtWord(query, maxLen)
	}

	count := t.cfg.MaxResults
	if mr, ok := options["max_results"].(int); ok && mr > 0 {
		count = mr
	}
	if count <= 0 {
		count = 10
	}

	endpoint := t.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.search.brave.com/res/v1/web/search"
	}
	reqURL := fmt.Sprintf("%s?q=%s&count=%d", endpoint, url.QueryEscape(query), count)
	if t.cfg.Freshness != "" {
		reqURL += "&freshness=" + url.QueryEscape(t.cfg.Freshness)
	}

	var resp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
				Age         string `json:"age"`
			} `json:"results"`
		} `json:"web"`
	}
	headers := map[string]string{"X-Subscription-Token": t.cfg.APIKey}
	if err := t.http.DoJSON(ctx, "GET", reqURL, headers, nil, &resp); err != nil {
		return core.ToolResult{}, fmt.Errorf("search: %w", err)
	}

	docs := make([]core.Document, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		docs = append(docs, core.Document{
			ID:      uuid.NewString(),
			Title:   r.Title,
			Content: r.Description,
			Source:  r.URL,
			Type:    "web",
			Metadata: map[string]interface{}{
				"age": r.Age,
			},
		})
	}

	if t.cfg.FetchContent {
		t.fetchReadableContent(ctx, docs)
	}

	t.logger.Printf("query=%q results=%d", query, len(docs))
	return core.ToolResult{
		Documents: docs,
		Metadata:  map[string]interface{}{"endpoint": endpoint},
	}, nil
}

// fetchReadableContent replaces snippets with extracted article text for
// the top results. Extraction failures keep the snippet.
func (t *SearchTool) fetchReadableContent(ctx context.Context, docs []core.Document) {
	const maxFetches = 3
	for i := range docs {
		if i >= maxFetches {
			return
		}
		if ctx.Err() != nil {
			return
		}
		article, err := readability.FromURL(docs[i].Source, 10*time.Second)
		if err != nil {
			t.logger.Printf("readability failed for %s: %v", docs[i].Source, err)
			continue
		}
		text := strings.TrimSpace(article.TextContent)
		if text == "" {
			continue
		}
		if len(text) > 8000 {
			text = text[:8000]
		}
		docs[i].Content = text
		if article.Title != "" && docs[i].Title == "" {
			docs[i].Title = article.Title
		}
		docs[i].Metadata["full_content"] = true
	}
}

// Health runs a one-result probe search.
func (t *SearchTool) Health(ctx context.Context) error {
	endpoint := t.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.search.brave.com/res/v1/web/search"
	}
	var resp struct{}
	headers := map[string]string{"X-Subscription-Token": t.cfg.APIKey}
	return t.http.DoJSON(ctx, "GET", endpoint+"?q=tax&count=1", headers, nil, &resp)
}

// truncateAtWord cuts a string to at most max bytes, at a word boundary
// when one is near the cut.
func truncateAtWord(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > max/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
