package core

import (
	"context"
	"time"
)

// Query represents a raw research request. It is created at request entry
// and never mutated afterwards.
type Query struct {
	ID        string                 `json:"id"`
	Text      string                 `json:"text"`
	Context   map[string]interface{} `json:"context,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// QueryComplexity classifies how much work a query deserves. It drives
// agent selection, result caps and synthesis depth.
type QueryComplexity int

const (
	ComplexitySimple QueryComplexity = iota
	ComplexityModerate
	ComplexityComplex
	ComplexityExpert
)

func (c QueryComplexity) String() string {
	switch c {
	case ComplexitySimple:
		return "simple"
	case ComplexityModerate:
		return "moderate"
	case ComplexityComplex:
		return "complex"
	case ComplexityExpert:
		return "expert"
	default:
		return "unknown"
	}
}

// IntentType is the coarse category of what the user is after.
type IntentType string

const (
	IntentResearch         IntentType = "research"
	IntentRegulationLookup IntentType = "regulation_lookup"
	IntentCaseLaw          IntentType = "case_law"
	IntentPrecedentSearch  IntentType = "precedent_search"
)

// QuestionType describes the shape of the question itself.
type QuestionType string

const (
	QuestionFactual      QuestionType = "factual"
	QuestionProcedural   QuestionType = "procedural"
	QuestionAnalytical   QuestionType = "analytical"
	QuestionHypothetical QuestionType = "hypothetical"
)

// Intent is the analyzer's read-only interpretation of a query.
type Intent struct {
	Type         IntentType   `json:"type"`
	QuestionType QuestionType `json:"question_type"`
	Entities     []string     `json:"entities"`
	Keywords     []string     `json:"keywords"`
}

// AgentID identifies a retrieval agent role. The set is closed; dispatch
// tables are keyed on these constants rather than reflection.
type AgentID string

const (
	AgentRegulation AgentID = "regulation"
	AgentCaseLaw    AgentID = "case_law"
	AgentPrecedent  AgentID = "precedent"
	AgentExpert     AgentID = "expert"
	AgentWebSearch  AgentID = "web_search"
	AgentAuthority  AgentID = "authority"
)

// InternalAgents lists the agents backed by our own stores, in default
// priority order.
var InternalAgents = []AgentID{AgentRegulation, AgentCaseLaw, AgentPrecedent, AgentExpert}

// ExternalAgents lists the agents backed by external services.
var ExternalAgents = []AgentID{AgentWebSearch, AgentAuthority}

// IsExternal reports whether the agent reaches outside our own stores.
func (a AgentID) IsExternal() bool {
	return a == AgentWebSearch || a == AgentAuthority
}

// Strategy is the analyzer's retrieval plan: which agents to run and the
// refined query each should use. Built once per request; immutable.
type Strategy struct {
	Agents         []AgentID           `json:"agents"`
	RefinedQueries map[AgentID]string  `json:"refined_queries"`
	External       []AgentID           `json:"external,omitempty"`
	Fallback       bool                `json:"fallback,omitempty"` // analyzer failed, defaults used
}

// Document is one retrieved piece of evidence. Identity is ID when present,
// otherwise a fingerprint of the content prefix (see aggregator).
type Document struct {
	ID             string                 `json:"id"`
	Title          string                 `json:"title"`
	Content        string                 `json:"content"`
	Source         string                 `json:"source"` // store/tool that produced it
	Type           string                 `json:"type"`   // regulation, case, ruling, web, etc.
	RelevanceScore float64                `json:"relevance_score"`
	PublishedAt    time.Time              `json:"published_at,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// RetrievalResult is one agent's output: its documents plus its own
// self-assessed confidence, not yet blended with other agents.
type RetrievalResult struct {
	AgentID     AgentID                `json:"agent_id"`
	Documents   []Document             `json:"documents"`
	Confidence  float64                `json:"confidence"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ElapsedTime time.Duration          `json:"elapsed_time"`
}

// AgentView is the isolated slice of pipeline state handed to one agent:
// its own refined query plus read-only analysis context. Agents never see
// (or write) shared structures.
type AgentView struct {
	Query        string                 // refined query for this agent
	RawQuery     string                 // original query text
	Intent       Intent
	Complexity   QueryComplexity
	MaxResults   int
	SearchDepth  string // shallow or deep
	Context      map[string]interface{}
}

// PipelineState is the accumulator threaded through the phases. The
// orchestrator is its only writer; agents receive AgentViews and return
// results that are merged at each phase's join point.
type PipelineState struct {
	Query      Query
	Intent     Intent
	Complexity QueryComplexity
	Strategy   Strategy

	Documents        []Document
	AgentOutputs     map[AgentID]RetrievalResult
	ConfidenceScores map[AgentID]float64
	Errors           []string
	QualityCheck     QualityCheck
	PhaseTimings     map[string]time.Duration
	StartTime        time.Time
}

// NewPipelineState initialises the accumulator for one request.
func NewPipelineState(q Query) *PipelineState {
	return &PipelineState{
		Query:            q,
		AgentOutputs:     make(map[AgentID]RetrievalResult),
		ConfidenceScores: make(map[AgentID]float64),
		PhaseTimings:     make(map[string]time.Duration),
		StartTime:        time.Now(),
	}
}

// QualityCheck captures the gate decision after internal retrieval.
type QualityCheck struct {
	DocumentCount       int     `json:"document_count"`
	AverageConfidence   float64 `json:"average_confidence"`
	SufficientDocuments bool    `json:"sufficient_documents"`
	HighConfidence      bool    `json:"high_confidence"`
	NeedsEnrichment     bool    `json:"needs_enrichment"`
}

// Citation points at a document referenced by the synthesized answer.
type Citation struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

// SynthesisResult is the structured answer produced by the dispatcher.
type SynthesisResult struct {
	Answer          string                 `json:"answer"`
	Confidence      float64                `json:"confidence"`
	Strategy        string                 `json:"strategy"` // simple, moderate, complex, expert
	KeyFindings     []string               `json:"key_findings,omitempty"`
	Recommendations []string               `json:"recommendations,omitempty"`
	Citations       []Citation             `json:"citations,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// ResearchMetadata is the envelope returned alongside every answer so the
// API layer can report how the answer was assembled.
type ResearchMetadata struct {
	ProcessingTime     time.Duration            `json:"processing_time"`
	Complexity         string                   `json:"complexity"`
	AgentsUsed         []AgentID                `json:"agents_used"`
	InternalAgents     []AgentID                `json:"internal_agents"`
	ExternalAgents     []AgentID                `json:"external_agents"`
	DocumentsRetrieved int                      `json:"documents_retrieved"`
	ConfidenceScores   map[AgentID]float64      `json:"confidence_scores"`
	QualityCheck       QualityCheck             `json:"quality_check"`
	LLMConfidence      float64                  `json:"llm_confidence"`
	PhaseTimings       map[string]time.Duration `json:"phase_timings"`
	Errors             []string                 `json:"errors,omitempty"`
}

// ResearchResult is the caller-facing output: one synthesized answer per
// query, plus the metadata envelope. Status is "success", "partial" when
// non-fatal errors occurred, or "no_results".
type ResearchResult struct {
	ID        string           `json:"id"`
	Query     string           `json:"query"`
	Status    string           `json:"status"`
	Synthesis SynthesisResult  `json:"synthesis"`
	Documents []Document       `json:"documents"`
	Metadata  ResearchMetadata `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
}

const (
	StatusSuccess   = "success"
	StatusPartial   = "partial"
	StatusNoResults = "no_results"
)

// RetrievalAgent is the uniform contract every retrieval source implements.
// Implementations catch their own internal failures and return degraded
// results; a non-nil error is converted to a zero-confidence empty result
// at the orchestrator boundary, never propagated to the caller.
type RetrievalAgent interface {
	ID() AgentID
	Process(ctx context.Context, view AgentView) (RetrievalResult, error)
}

// VectorStore is the semantic-search collaborator. Returning fewer than
// topK results is normal; errors mean genuine connectivity failure.
type VectorStore interface {
	Search(ctx context.Context, query string, topK int, filter map[string]string) ([]Document, error)
}

// GraphRecord is one row returned from the graph store.
type GraphRecord map[string]interface{}

// GraphStore is the relationship-query collaborator used by the precedent
// agent. Query specs are opaque to the orchestrator.
type GraphStore interface {
	ExecuteQuery(ctx context.Context, spec string, params map[string]interface{}) ([]GraphRecord, error)
}

// LLMProvider is the language-model collaborator used for enhancement and
// synthesis calls.
type LLMProvider interface {
	// Generate generates text using the routed model.
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns input/output token usage.
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GetAvailableModels returns the configured model keys.
	GetAvailableModels() []string

	// CalculateCost calculates the cost for a given number of tokens.
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// Tool is one registered external integration callable by agents. Calls
// retry transient failures internally and degrade to empty results rather
// than failing the agent.
type Tool interface {
	Name() string
	Call(ctx context.Context, query string, options map[string]interface{}) (ToolResult, error)
}

// ToolResult is the structured output of a tool call.
type ToolResult struct {
	Documents []Document             `json:"documents"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ToolSource hands agents their registered tools. Absence of a tool
// reduces agent capability, it never breaks the pipeline.
type ToolSource interface {
	ToolsFor(agent AgentID) []Tool
}

// AnswerCache optionally short-circuits repeated queries. Implementations
// must be safe to call with a nil receiver semantics handled by the
// orchestrator (a nil cache disables caching).
type AnswerCache interface {
	Get(ctx context.Context, query string) (ResearchResult, bool)
	Set(ctx context.Context, query string, result ResearchResult)
}
