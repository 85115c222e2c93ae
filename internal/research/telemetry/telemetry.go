package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lexum-research/lexum/config"
)

// Telemetry records pipeline, agent and tool events. Counters and histograms
// are exported through Prometheus; cost accounting is kept in-process so the
// API can return a summary without a metrics scrape.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	costTracker *costTracker

	queriesTotal    *prometheus.CounterVec
	queryDuration   prometheus.Histogram
	phaseDuration   *prometheus.HistogramVec
	agentDuration   *prometheus.HistogramVec
	agentConfidence *prometheus.HistogramVec
	documentsTotal  *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
	llmTokens       *prometheus.CounterVec
	llmCost         prometheus.Counter
}

type costTracker struct {
	mu          sync.RWMutex
	modelCosts  map[string]float64
	totalCost   float64
	totalTokens int64
}

// ResearchEvent captures one full pipeline run.
type ResearchEvent struct {
	ID             string
	Query          string
	Status         string
	ProcessingTime time.Duration
	Success        bool
	Error          string
	Cost           float64
	TokensUsed     int64
	AgentsUsed     []string
	Documents      int
}

// AgentEvent captures a single retrieval agent execution.
type AgentEvent struct {
	Agent      string
	Duration   time.Duration
	Success    bool
	Error      string
	Documents  int
	Confidence float64
}

// ToolEvent captures one external tool call.
type ToolEvent struct {
	Tool     string
	Duration time.Duration
	Success  bool
	Results  int
}

// LLMEvent captures one language-model call.
type LLMEvent struct {
	Model        string
	Operation    string
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// New creates a telemetry instance and registers its collectors with the
// default Prometheus registry.
func New(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		costTracker: &costTracker{
			modelCosts: make(map[string]float64),
		},
		queriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lexum_queries_total",
			Help: "Research queries processed, by final status.",
		}, []string{"status"}),
		queryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lexum_query_duration_seconds",
			Help:    "End to end research pipeline duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		phaseDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexum_phase_duration_seconds",
			Help:    "Duration of each pipeline phase.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"phase"}),
		agentDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexum_agent_duration_seconds",
			Help:    "Retrieval agent execution duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"agent"}),
		agentConfidence: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexum_agent_confidence",
			Help:    "Per-agent confidence scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"agent"}),
		documentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lexum_documents_retrieved_total",
			Help: "Documents retrieved, by agent.",
		}, []string{"agent"}),
		toolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lexum_tool_calls_total",
			Help: "External tool calls, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		llmTokens: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lexum_llm_tokens_total",
			Help: "LLM tokens consumed, by model and direction.",
		}, []string{"model", "direction"}),
		llmCost: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lexum_llm_cost_dollars_total",
			Help: "Estimated LLM spend in dollars.",
		}),
	}
}

// RecordResearchEvent records a complete pipeline run.
func (t *Telemetry) RecordResearchEvent(ctx context.Context, event ResearchEvent) {
	if !t.config.Enabled {
		return
	}

	t.queriesTotal.WithLabelValues(event.Status).Inc()
	t.queryDuration.Observe(event.ProcessingTime.Seconds())

	t.costTracker.mu.Lock()
	t.costTracker.totalCost += event.Cost
	t.costTracker.totalTokens += event.TokensUsed
	t.costTracker.mu.Unlock()

	t.logger.Printf("Research Event: ID=%s, Status=%s, Duration=%v, Docs=%d, Cost=$%.4f",
		event.ID, event.Status, event.ProcessingTime, event.Documents, event.Cost)
}

// RecordPhase records the duration of one pipeline phase.
func (t *Telemetry) RecordPhase(phase string, d time.Duration) {
	if !t.config.Enabled {
		return
	}
	t.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordAgentEvent records a retrieval agent execution.
func (t *Telemetry) RecordAgentEvent(ctx context.Context, event AgentEvent) {
	if !t.config.Enabled {
		return
	}

	t.agentDuration.WithLabelValues(event.Agent).Observe(event.Duration.Seconds())
	t.agentConfidence.WithLabelValues(event.Agent).Observe(event.Confidence)
	t.documentsTotal.WithLabelValues(event.Agent).Add(float64(event.Documents))

	t.logger.Printf("Agent Event: Agent=%s, Success=%t, Duration=%v, Docs=%d, Confidence=%.2f",
		event.Agent, event.Success, event.Duration, event.Documents, event.Confidence)
}

// RecordToolEvent records an external tool call.
func (t *Telemetry) RecordToolEvent(ctx context.Context, event ToolEvent) {
	if !t.config.Enabled {
		return
	}

	outcome := "success"
	if !event.Success {
		outcome = "error"
	}
	t.toolCalls.WithLabelValues(event.Tool, outcome).Inc()

	t.logger.Printf("Tool Event: Tool=%s, Success=%t, Duration=%v, Results=%d",
		event.Tool, event.Success, event.Duration, event.Results)
}

// RecordLLMEvent records token usage and spend for one model call.
func (t *Telemetry) RecordLLMEvent(ctx context.Context, event LLMEvent) {
	if !t.config.Enabled {
		return
	}

	t.llmTokens.WithLabelValues(event.Model, "input").Add(float64(event.InputTokens))
	t.llmTokens.WithLabelValues(event.Model, "output").Add(float64(event.OutputTokens))

	if t.config.CostTracking {
		t.llmCost.Add(event.Cost)
		t.costTracker.mu.Lock()
		t.costTracker.modelCosts[event.Model] += event.Cost
		t.costTracker.mu.Unlock()
	}
}

// CostSummary is a snapshot of accumulated LLM spend.
type CostSummary struct {
	TotalCost   float64            `json:"total_cost"`
	TotalTokens int64              `json:"total_tokens"`
	ModelCosts  map[string]float64 `json:"model_costs"`
}

// GetCostSummary returns the current cost summary.
func (t *Telemetry) GetCostSummary() CostSummary {
	t.costTracker.mu.RLock()
	defer t.costTracker.mu.RUnlock()

	summary := CostSummary{
		TotalCost:   t.costTracker.totalCost,
		TotalTokens: t.costTracker.totalTokens,
		ModelCosts:  make(map[string]float64, len(t.costTracker.modelCosts)),
	}
	for k, v := range t.costTracker.modelCosts {
		summary.ModelCosts[k] = v
	}
	return summary
}

// Shutdown logs a final cost report.
func (t *Telemetry) Shutdown() {
	costs := t.GetCostSummary()
	t.logger.Printf("Final Report: TotalCost=$%.4f, TotalTokens=%d", costs.TotalCost, costs.TotalTokens)
	for model, cost := range costs.ModelCosts {
		t.logger.Printf("  Model %s: $%.4f", model, cost)
	}
}
