package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/core"
)

func TestAuthorityToolCall(t *testing.T) {
	var paths []string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items": [
			{"id": "rp-2024-1", "title": "Rev Proc 2024-1", "content": "rates table", "url": "https://www.irs.gov/rp", "relevance": 0.9, "effective_at": "2024-01-01T00:00:00Z"},
			{"title": "Unnamed Item", "content": "body"}
		]}`))
	}))
	defer srv.Close()

	tool := NewAuthorityTool(config.AuthorityToolConfig{
		BaseURL: srv.URL,
		APIKey:  "secret",
	}, core.NewHTTPClient(time.Second, 0, time.Millisecond))

	res, err := tool.Call(context.Background(), "withholding rates", map[string]interface{}{
		"data_types":  []string{"rates", "deadlines"},
		"max_results": 5,
	})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if gotKey != "secret" {
		t.Fatalf("api key not sent, got %q", gotKey)
	}
	if len(paths) != 2 || paths[0] != "/rates" || paths[1] != "/deadlines" {
		t.Fatalf("one request per data type expected, got %v", paths)
	}
	if len(res.Documents) != 4 {
		t.Fatalf("expected 4 documents, got %d", len(res.Documents))
	}

	doc := res.Documents[0]
	if doc.ID != "rp-2024-1" || doc.Type != "authority_ruling" || doc.RelevanceScore != 0.9 {
		t.Fatalf("item mapping wrong: %+v", doc)
	}
	if doc.PublishedAt.IsZero() {
		t.Fatalf("effective_at should parse into PublishedAt")
	}
	// missing id and relevance fall back to generated/default values
	if res.Documents[1].ID == "" || res.Documents[1].RelevanceScore != 0.8 {
		t.Fatalf("defaults not applied: %+v", res.Documents[1])
	}
}

func TestAuthorityToolSkipsFailingTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/rates") {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"items": [{"id": "p1", "title": "Pub 15", "content": "withholding"}]}`))
	}))
	defer srv.Close()

	tool := NewAuthorityTool(config.AuthorityToolConfig{BaseURL: srv.URL},
		core.NewHTTPClient(time.Second, 0, time.Millisecond))

	res, err := tool.Call(context.Background(), "withholding", map[string]interface{}{
		"data_types": []string{"rates", "publications"},
	})
	if err != nil {
		t.Fatalf("one surviving type should succeed: %v", err)
	}
	if len(res.Documents) != 1 || res.Documents[0].Type != "revenue_ruling" {
		t.Fatalf("publications documents expected: %+v", res.Documents)
	}
}

func TestAuthorityToolAllTypesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tool := NewAuthorityTool(config.AuthorityToolConfig{BaseURL: srv.URL},
		core.NewHTTPClient(time.Second, 0, time.Millisecond))

	if _, err := tool.Call(context.Background(), "anything", nil); err == nil {
		t.Fatalf("all types failing should be an error")
	}
}

func TestAuthorityToolDefaultDataType(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{"items": []}`))
	}))
	defer srv.Close()

	tool := NewAuthorityTool(config.AuthorityToolConfig{BaseURL: srv.URL},
		core.NewHTTPClient(time.Second, 0, time.Millisecond))

	if _, err := tool.Call(context.Background(), "anything", nil); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != "/publications" {
		t.Fatalf("default data type should be publications, got %v", paths)
	}
}
