package tools

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/core"
)

// agentToolTable statically maps agents to the tool names they may use.
// Internal agents advertise the search tool for escalation when their own
// stores come up short. Dispatch is a table lookup; adding a tool means
// adding a row here.
var agentToolTable = map[core.AgentID][]string{
	core.AgentRegulation: {"web_search"},
	core.AgentCaseLaw:    {"web_search"},
	core.AgentPrecedent:  {"web_search"},
	core.AgentExpert:     {"web_search"},
	core.AgentWebSearch:  {"web_search"},
	core.AgentAuthority:  {"authority"},
}

// healthChecker is implemented by tools that can verify their backend.
type healthChecker interface {
	Health(ctx context.Context) error
}

// Registry owns the external tool instances. Tools are created only when
// their credentials are configured; a missing credential means the tool is
// absent, not broken. Initialize and Cleanup are idempotent.
type Registry struct {
	cfg    config.ToolsConfig
	llm    core.LLMProvider
	router *core.ModelRouter
	logger *log.Logger

	mu          sync.Mutex
	initialized bool
	tools       map[string]core.Tool
	health      map[string]bool
	stop        chan struct{}
}

func NewRegistry(cfg config.ToolsConfig, llm core.LLMProvider, router *core.ModelRouter) *Registry {
	return &Registry{
		cfg:    cfg,
		llm:    llm,
		router: router,
		logger: log.New(log.Writer(), "[TOOLS] ", log.LstdFlags),
		tools:  make(map[string]core.Tool),
		health: make(map[string]bool),
	}
}

// Initialize creates every tool whose credentials are present and starts
// the scheduled health sweep when one is configured.
func (r *Registry) Initialize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return
	}
	r.initialized = true

	httpc := core.NewHTTPClient(r.cfg.Search.Timeout, r.cfg.Search.MaxRetries, 300*time.Millisecond)

	if r.cfg.Search.APIKey != "" {
		r.tools["web_search"] = NewSearchTool(r.cfg.Search, httpc)
		r.health["web_search"] = true
	} else {
		r.logger.Printf("web_search disabled: no API key")
	}

	if r.cfg.Authority.BaseURL != "" {
		authHTTP := core.NewHTTPClient(r.cfg.Authority.Timeout, r.cfg.Authority.MaxRetries, 300*time.Millisecond)
		r.tools["authority"] = NewAuthorityTool(r.cfg.Authority, authHTTP)
		r.health["authority"] = true
	} else {
		r.logger.Printf("authority disabled: no base URL")
	}

	if r.cfg.Enhancer.Enabled && r.llm != nil {
		r.tools["enhancer"] = NewEnhancerTool(r.llm, r.router, r.cfg.Enhancer.MaxRetries)
		r.health["enhancer"] = true
	}

	if r.cfg.HealthCheckSchedule != "" && len(r.tools) > 0 {
		expr, err := cronexpr.Parse(r.cfg.HealthCheckSchedule)
		if err != nil {
			r.logger.Printf("invalid health check schedule %q: %v", r.cfg.HealthCheckSchedule, err)
		} else {
			r.stop = make(chan struct{})
			go r.healthSweepLoop(expr, r.stop)
		}
	}

	r.logger.Printf("initialized %d tools", len(r.tools))
}

// Cleanup stops background work. Safe to call more than once.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	r.initialized = false
}

// ToolsFor returns the tools registered for an agent, in table order.
func (r *Registry) ToolsFor(agent core.AgentID) []core.Tool {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.Tool
	for _, name := range agentToolTable[agent] {
		if tool, ok := r.tools[name]; ok {
			out = append(out, tool)
		}
	}
	return out
}

// Enhancer returns the re-scoring tool, or nil when disabled.
func (r *Registry) Enhancer() core.Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tools["enhancer"]
}

// HealthCheck reports the last known health of every registered tool.
func (r *Registry) HealthCheck() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]bool, len(r.health))
	for name, ok := range r.health {
		out[name] = ok
	}
	return out
}

// healthSweepLoop wakes up per the cron schedule and pings every tool that
// knows how to answer. The stop channel is passed in rather than read from
// the struct so Cleanup clearing the field cannot race with the loop.
func (r *Registry) healthSweepLoop(expr *cronexpr.Expression, stop <-chan struct{}) {
	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			return
		}
		select {
		case <-stop:
			return
		case <-time.After(time.Until(next)):
			r.runHealthSweep()
		}
	}
}

func (r *Registry) runHealthSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r.mu.Lock()
	checkable := make(map[string]healthChecker)
	for name, tool := range r.tools {
		if hc, ok := tool.(healthChecker); ok {
			checkable[name] = hc
		}
	}
	r.mu.Unlock()

	for name, hc := range checkable {
		err := hc.Health(ctx)

		r.mu.Lock()
		r.health[name] = err == nil
		r.mu.Unlock()

		if err != nil {
			r.logger.Printf("health check failed for %s: %v", name, err)
		}
	}
}
