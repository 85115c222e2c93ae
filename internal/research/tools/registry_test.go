package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/core"
)

type stubLLM struct{}

func (stubLLM) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	return `{"scores":[{"index":0,"quality":0.9,"coherence":0.8}]}`, nil
}

func (stubLLM) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	return "", 0, 0, nil
}

func (stubLLM) GetAvailableModels() []string { return nil }

func (stubLLM) CalculateCost(inputTokens, outputTokens int64, model string) float64 { return 0 }

func testRouter() *core.ModelRouter {
	return core.NewModelRouter(config.LLMRoutingConfig{Fallback: "test-model"})
}

func TestRegistryCredentialGating(t *testing.T) {
	r := NewRegistry(config.ToolsConfig{}, nil, testRouter())
	r.Initialize()
	defer r.Cleanup()

	if len(r.ToolsFor(core.AgentWebSearch)) != 0 {
		t.Fatalf("web search should be absent without an API key")
	}
	if len(r.ToolsFor(core.AgentAuthority)) != 0 {
		t.Fatalf("authority should be absent without a base URL")
	}
	if r.Enhancer() != nil {
		t.Fatalf("enhancer should be absent when disabled")
	}
}

func TestRegistryCreatesConfiguredTools(t *testing.T) {
	cfg := config.ToolsConfig{
		Search:    config.SearchToolConfig{APIKey: "key"},
		Authority: config.AuthorityToolConfig{BaseURL: "http://gateway.local"},
		Enhancer:  config.EnhancerToolConfig{Enabled: true},
	}
	r := NewRegistry(cfg, stubLLM{}, testRouter())
	r.Initialize()
	defer r.Cleanup()

	webTools := r.ToolsFor(core.AgentWebSearch)
	if len(webTools) != 1 || webTools[0].Name() != "web_search" {
		t.Fatalf("web search tool missing: %v", webTools)
	}
	authTools := r.ToolsFor(core.AgentAuthority)
	if len(authTools) != 1 || authTools[0].Name() != "authority" {
		t.Fatalf("authority tool missing: %v", authTools)
	}
	if r.Enhancer() == nil {
		t.Fatalf("enhancer should be created when enabled and an LLM is present")
	}

	health := r.HealthCheck()
	if !health["web_search"] || !health["authority"] || !health["enhancer"] {
		t.Fatalf("tools should start healthy: %v", health)
	}
}

func TestRegistryEnhancerNeedsLLM(t *testing.T) {
	cfg := config.ToolsConfig{Enhancer: config.EnhancerToolConfig{Enabled: true}}
	r := NewRegistry(cfg, nil, testRouter())
	r.Initialize()
	defer r.Cleanup()

	if r.Enhancer() != nil {
		t.Fatalf("enhancer requires an LLM provider")
	}
}

func TestRegistryInitializeIdempotent(t *testing.T) {
	cfg := config.ToolsConfig{Search: config.SearchToolConfig{APIKey: "key"}}
	r := NewRegistry(cfg, nil, testRouter())
	r.Initialize()
	r.Initialize()
	defer r.Cleanup()

	if len(r.ToolsFor(core.AgentWebSearch)) != 1 {
		t.Fatalf("double initialization should not duplicate tools")
	}
}

func TestRegistryCleanupIdempotent(t *testing.T) {
	cfg := config.ToolsConfig{
		Search:              config.SearchToolConfig{APIKey: "key"},
		HealthCheckSchedule: "0 * * * *",
	}
	r := NewRegistry(cfg, nil, testRouter())
	r.Initialize()
	r.Cleanup()
	r.Cleanup()
}

func TestRegistryInternalAgentsShareSearchTool(t *testing.T) {
	cfg := config.ToolsConfig{Search: config.SearchToolConfig{APIKey: "key"}}
	r := NewRegistry(cfg, nil, testRouter())
	r.Initialize()
	defer r.Cleanup()

	for _, id := range []core.AgentID{core.AgentRegulation, core.AgentCaseLaw, core.AgentPrecedent, core.AgentExpert} {
		tools := r.ToolsFor(id)
		if len(tools) != 1 || tools[0].Name() != "web_search" {
			t.Fatalf("agent %s should advertise the search tool for escalation, got %v", id, tools)
		}
	}
	if tools := r.ToolsFor(core.AgentID("unknown")); len(tools) != 0 {
		t.Fatalf("unmapped agents have no tools, got %v", tools)
	}
}

func TestRegistryCleanupStopsHealthSweep(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := config.ToolsConfig{
		Search:              config.SearchToolConfig{APIKey: "key", Endpoint: srv.URL},
		HealthCheckSchedule: "*/1 * * * * *",
	}
	r := NewRegistry(cfg, nil, testRouter())
	r.Initialize()
	r.Cleanup()

	time.Sleep(1500 * time.Millisecond)
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("health sweep ran %d times after cleanup", n)
	}
}
