package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lexum-research/lexum/config"
)

func testProviderConfig(baseURL string) config.LLMProvider {
	return config.LLMProvider{
		Type:       "openai",
		APIKey:     "test-key",
		BaseURL:    baseURL,
		MaxRetries: 2,
		Timeout:    5 * time.Second,
		Models: map[string]config.LLMModel{
			"fast": {Name: "test-model", MaxTokens: 256},
		},
	}
}

func TestGenerateWithTokensRetriesTransientFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if req.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		if req.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token: %q", req.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"answer text"}}],"usage":{"prompt_tokens":12,"completion_tokens":7}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(testProviderConfig(srv.URL))
	content, in, out, err := p.GenerateWithTokens(context.Background(), "what is GILTI", "fast", nil)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if content != "answer text" {
		t.Fatalf("unexpected content %q", content)
	}
	if in != 12 || out != 7 {
		t.Fatalf("token usage %d/%d, want 12/7", in, out)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Fatalf("expected a retry after the transient failure, got %d attempts", n)
	}
}

func TestGenerateWithTokensUnknownModel(t *testing.T) {
	p := NewOpenAIProvider(testProviderConfig("http://unused.local"))
	if _, _, _, err := p.GenerateWithTokens(context.Background(), "q", "missing", nil); err == nil {
		t.Fatalf("unknown model key should fail")
	}
}
