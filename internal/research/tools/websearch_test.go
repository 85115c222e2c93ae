package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/core"
)

const braveResponse = `{
	"web": {
		"results": [
			{"title": "IRS Newsroom", "url": "https://www.irs.gov/newsroom", "description": "Latest IRS releases", "age": "2 days"},
			{"title": "Commentary", "url": "https://example.com/post", "description": "Opinion piece", "age": "1 week"}
		]
	}
}`

func newSearchServer(t *testing.T, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(braveResponse))
	}))
}

func TestSearchToolCall(t *testing.T) {
	var gotToken, gotQuery, gotCount string
	srv := newSearchServer(t, func(r *http.Request) {
		gotToken = r.Header.Get("X-Subscription-Token")
		gotQuery = r.URL.Query().Get("q")
		gotCount = r.URL.Query().Get("count")
	})
	defer srv.Close()

	tool := NewSearchTool(config.SearchToolConfig{
		APIKey:   "token",
		Endpoint: srv.URL,
	}, core.NewHTTPClient(time.Second, 0, time.Millisecond))

	res, err := tool.Call(context.Background(), "section 382 guidance", map[string]interface{}{"max_results": 5})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if gotToken != "token" {
		t.Fatalf("subscription token not sent, got %q", gotToken)
	}
	if gotQuery != "section 382 guidance" {
		t.Fatalf("query not forwarded, got %q", gotQuery)
	}
	if gotCount != "5" {
		t.Fatalf("max_results option ignored, got count %q", gotCount)
	}

	if len(res.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(res.Documents))
	}
	doc := res.Documents[0]
	if doc.ID == "" {
		t.Fatalf("documents need generated ids")
	}
	if doc.Title != "IRS Newsroom" || doc.Source != "https://www.irs.gov/newsroom" || doc.Type != "web" {
		t.Fatalf("mapping wrong: %+v", doc)
	}
	if doc.Content != "Latest IRS releases" {
		t.Fatalf("description should become content, got %q", doc.Content)
	}
	if doc.Metadata["age"] != "2 days" {
		t.Fatalf("age metadata missing: %v", doc.Metadata)
	}
}

func TestSearchToolTruncatesLongQueries(t *testing.T) {
	var gotQuery string
	srv := newSearchServer(t, func(r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
	})
	defer srv.Close()

	tool := NewSearchTool(config.SearchToolConfig{
		APIKey:      "token",
		Endpoint:    srv.URL,
		MaxQueryLen: 20,
	}, core.NewHTTPClient(time.Second, 0, time.Millisecond))

	if _, err := tool.Call(context.Background(), "alpha beta gamma delta epsilon zeta", nil); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if len(gotQuery) > 20 {
		t.Fatalf("query not truncated: %q", gotQuery)
	}
	if gotQuery != "alpha beta gamma" {
		t.Fatalf("truncation should land on a word boundary, got %q", gotQuery)
	}
}

func TestSearchToolFreshnessParam(t *testing.T) {
	var gotFreshness string
	srv := newSearchServer(t, func(r *http.Request) {
		gotFreshness = r.URL.Query().Get("freshness")
	})
	defer srv.Close()

	tool := NewSearchTool(config.SearchToolConfig{
		APIKey:    "token",
		Endpoint:  srv.URL,
		Freshness: "pm",
	}, core.NewHTTPClient(time.Second, 0, time.Millisecond))

	if _, err := tool.Call(context.Background(), "rates", nil); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if gotFreshness != "pm" {
		t.Fatalf("freshness not forwarded, got %q", gotFreshness)
	}
}

func TestSearchToolServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	tool := NewSearchTool(config.SearchToolConfig{
		APIKey:   "token",
		Endpoint: srv.URL,
	}, core.NewHTTPClient(time.Second, 0, time.Millisecond))

	if _, err := tool.Call(context.Background(), "rates", nil); err == nil {
		t.Fatalf("server error should surface")
	}
}

func TestTruncateAtWord(t *testing.T) {
	if got := truncateAtWord("hello world again", 11); got != "hello world" {
		t.Fatalf("got %q", got)
	}
	// no space past the midpoint keeps the hard cut
	if got := truncateAtWord("abcdefghijklmnop", 8); got != "abcdefgh" {
		t.Fatalf("got %q", got)
	}
	if got := truncateAtWord("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
}
