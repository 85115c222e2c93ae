package tools

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/core"
)

// AuthorityTool fetches official data (rates, deadlines, forms and
// publications) from a government data gateway. One request per requested
// data type; a failing type is skipped, not fatal.
type AuthorityTool struct {
	cfg    config.AuthorityToolConfig
	http   *core.HTTPClient
	logger *log.Logger
}

func NewAuthorityTool(cfg config.AuthorityToolConfig, httpc *core.HTTPClient) *AuthorityTool {
	return &AuthorityTool{
		cfg:    cfg,
		http:   httpc,
		logger: log.New(log.Writer(), "[AUTHORITY] ", log.LstdFlags),
	}
}

func (t *AuthorityTool) Name() string { return "authority" }

// docTypeFor maps gateway data types to our document taxonomy.
var docTypeFor = map[string]string{
	"rates":        "authority_ruling",
	"deadlines":    "authority_ruling",
	"forms":        "authority_ruling",
	"publications": "revenue_ruling",
}

func (t *AuthorityTool) Call(ctx context.Context, query string, options map[string]interface{}) (core.ToolResult, error) {
	dataTypes := []string{"publications"}
	if dts, ok := options["data_types"].([]string); ok && len(dts) > 0 {
		dataTypes = dts
	}
	maxResults := 10
	if mr, ok := options["max_results"].(int); ok && mr > 0 {
		maxResults = mr
	}

	headers := map[string]string{}
	if t.cfg.APIKey != "" {
		headers["X-Api-Key"] = t.cfg.APIKey
	}

	var docs []core.Document
	fetched := 0
	for _, dt := range dataTypes {
		reqURL := fmt.Sprintf("%s/%s?q=%s&limit=%d",
			strings.TrimRight(t.cfg.BaseURL, "/"), url.PathEscape(dt), url.QueryEscape(query), maxResults)

		var resp struct {
			Items []struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				Content     string  `json:"content"`
				URL         string  `json:"url"`
				Relevance   float64 `json:"relevance"`
				EffectiveAt string  `json:"effective_at"`
			} `json:"items"`
		}
		if err := t.http.DoJSON(ctx, "GET", reqURL, headers, nil, &resp); err != nil {
			t.logger.Printf("fetch %s failed: %v", dt, err)
			continue
		}
		fetched++

		for _, item := range resp.Items {
			id := item.ID
			if id == "" {
				id = uuid.NewString()
			}
			relevance := item.Relevance
			if relevance == 0 {
				relevance = 0.8
			}
			doc := core.Document{
				ID:             id,
				Title:          item.Title,
				Content:        item.Content,
				Source:         item.URL,
				Type:           docTypeFor[dt],
				RelevanceScore: relevance,
				Metadata:       map[string]interface{}{"data_type": dt},
			}
			if ts, err := time.Parse(time.RFC3339, item.EffectiveAt); err == nil {
				doc.PublishedAt = ts
			}
			docs = append(docs, doc)
		}
	}

	if fetched == 0 {
		return core.ToolResult{}, fmt.Errorf("all data type fetches failed")
	}

	t.logger.Printf("query=%q types=%v docs=%d", query, dataTypes, len(docs))
	return core.ToolResult{
		Documents: docs,
		Metadata:  map[string]interface{}{"data_types": dataTypes},
	}, nil
}

// Health pings the gateway's health endpoint.
func (t *AuthorityTool) Health(ctx context.Context) error {
	var resp struct{}
	return t.http.DoJSON(ctx, "GET", strings.TrimRight(t.cfg.BaseURL, "/")+"/health", nil, nil, &resp)
}
