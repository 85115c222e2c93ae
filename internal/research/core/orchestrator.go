package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/telemetry"
)

var researchTracer trace.Tracer = otel.Tracer("lexum/internal/research/orchestrator")

// Orchestrator drives a query through the retrieval pipeline: plan,
// coordinate, retrieve, quality gate, optional external enrichment, rank,
// synthesize. It is the only writer of pipeline state; agents receive
// isolated views and report back through private result slots.
type Orchestrator struct {
	cfg         config.RetrievalConfig
	analyzer    *Analyzer
	agents      map[AgentID]RetrievalAgent
	agg         *Aggregator
	synthesizer *SynthesisDispatcher
	cache       AnswerCache
	telemetry   *telemetry.Telemetry
	logger      *log.Logger

	semaphore chan struct{}
	enhancer  Tool

	activeMu sync.RWMutex
	active   map[string]*activeRequest
}

type activeRequest struct {
	Query     string
	Phase     string
	StartTime time.Time
	cancel    context.CancelFunc
}

// RequestStatus is the externally visible state of an in-flight request.
type RequestStatus struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Phase     string    `json:"phase"`
	StartTime time.Time `json:"start_time"`
	Elapsed   string    `json:"elapsed"`
}

// NewOrchestrator wires the pipeline together. cache and tel may be nil;
// both simply disable their feature.
func NewOrchestrator(cfg config.RetrievalConfig, analyzer *Analyzer, agents map[AgentID]RetrievalAgent, synthesizer *SynthesisDispatcher, cache AnswerCache, tel *telemetry.Telemetry) *Orchestrator {
	parallel := cfg.MaxParallelAgents
	if parallel <= 0 {
		parallel = 5
	}
	return &Orchestrator{
		cfg:         cfg,
		analyzer:    analyzer,
		agents:      agents,
		agg:         NewAggregator(),
		synthesizer: synthesizer,
		cache:       cache,
		telemetry:   tel,
		logger:      log.New(log.Writer(), "[ORCHESTRATOR] ", log.LstdFlags),
		semaphore:   make(chan struct{}, parallel),
		active:      make(map[string]*activeRequest),
	}
}

// Process runs the full pipeline for one query. It always returns a usable
// result: agent failures degrade into the error list and the partial
// status, they never surface as a returned error. The returned error is
// reserved for context cancellation before any work happened.
func (o *Orchestrator) Process(ctx context.Context, query Query) (ResearchResult, error) {
	if query.ID == "" {
		query.ID = uuid.New().String()
	}
	if query.CreatedAt.IsZero() {
		query.CreatedAt = time.Now()
	}

	ctx, span := researchTracer.Start(ctx, "research.process", trace.WithAttributes(
		attribute.String("query.id", query.ID),
		attribute.Int("query.length", len(query.Text)),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "context done before start")
		return ResearchResult{}, err
	}

	if o.cache != nil {
		if cached, ok := o.cache.Get(ctx, query.Text); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			o.logger.Printf("[%s] cache hit", query.ID)
			return cached, nil
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.trackRequest(query, cancel)
	defer o.untrackRequest(query.ID)

	state := NewPipelineState(query)

	o.runPhase(ctx, state, "plan", o.phasePlan)
	o.runPhase(ctx, state, "coordinate", o.phaseCoordinate)
	o.runPhase(ctx, state, "retrieve", o.phaseRetrieve)
	o.runPhase(ctx, state, "quality_gate", o.phaseQualityGate)
	if state.QualityCheck.NeedsEnrichment {
		o.runPhase(ctx, state, "enrich", o.phaseEnrich)
	}
	o.runPhase(ctx, state, "rank", o.phaseRank)

	synthesis := o.phaseSynthesize(ctx, state)

	result := o.buildResult(state, synthesis)

	span.SetAttributes(
		attribute.String("result.status", result.Status),
		attribute.Int("result.documents", len(result.Documents)),
		attribute.Float64("result.confidence", synthesis.Confidence),
	)
	span.SetStatus(codes.Ok, "")

	if o.cache != nil && result.Status == StatusSuccess {
		o.cache.Set(ctx, query.Text, result)
	}
	if o.telemetry != nil {
		o.telemetry.RecordResearchEvent(ctx, telemetry.ResearchEvent{
			ID:             result.ID,
			Query:          query.Text,
			Status:         result.Status,
			ProcessingTime: result.Metadata.ProcessingTime,
			Success:        result.Status != StatusNoResults,
			AgentsUsed:     agentNames(result.Metadata.AgentsUsed),
			Documents:      len(result.Documents),
		})
	}

	o.logger.Printf("[%s] done: status=%s docs=%d confidence=%.2f elapsed=%v",
		query.ID, result.Status, len(result.Documents), synthesis.Confidence, result.Metadata.ProcessingTime)
	return result, nil
}

// runPhase times one phase and wraps it in a span. PhaseTimeout, when set,
// caps each phase; a phase hitting the cap sees its context cancelled and
// degrades like any other failure.
func (o *Orchestrator) runPhase(ctx context.Context, state *PipelineState, name string, fn func(context.Context, *PipelineState) error) {
	phaseCtx := ctx
	if o.cfg.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		phaseCtx, cancel = context.WithTimeout(ctx, o.cfg.PhaseTimeout)
		defer cancel()
	}

	phaseCtx, span := researchTracer.Start(phaseCtx, "research."+name)
	defer span.End()

	o.setPhase(state.Query.ID, name)
	start := time.Now()
	err := fn(phaseCtx, state)
	elapsed := time.Since(start)
	state.PhaseTimings[name] = elapsed

	if o.telemetry != nil {
		o.telemetry.RecordPhase(name, elapsed)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		state.Errors = append(state.Errors, fmt.Sprintf("%s: %v", name, err))
		o.logger.Printf("[%s] phase %s degraded: %v", state.Query.ID, name, err)
		return
	}
	span.SetStatus(codes.Ok, "")
}

// phasePlan runs query analysis. A panicking or failing analyzer falls
// back to the default single-agent strategy rather than aborting.
func (o *Orchestrator) phasePlan(ctx context.Context, state *PipelineState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			state.Strategy = DefaultStrategy(state.Query.Text)
			state.Complexity = ComplexitySimple
			err = fmt.Errorf("analyzer panic: %v", r)
		}
	}()

	intent, complexity, strategy := o.analyzer.Analyze(state.Query.Text)
	state.Intent = intent
	state.Complexity = complexity
	state.Strategy = strategy

	o.logger.Printf("[%s] plan: complexity=%s intent=%s agents=%v",
		state.Query.ID, complexity, intent.Type, strategy.Agents)
	return nil
}

// phaseCoordinate prunes the strategy down to agents that actually exist.
// An empty selection falls back to the regulation agent so retrieval always
// has at least one runner.
func (o *Orchestrator) phaseCoordinate(ctx context.Context, state *PipelineState) error {
	var selected []AgentID
	for _, id := range state.Strategy.Agents {
		if _, ok := o.agents[id]; ok {
			selected = append(selected, id)
		}
	}
	if len(selected) == 0 {
		if _, ok := o.agents[AgentRegulation]; ok {
			selected = []AgentID{AgentRegulation}
		} else {
			return fmt.Errorf("no retrieval agents available")
		}
	}
	state.Strategy.Agents = selected
	return nil
}

// phaseRetrieve fans out the internal agents and merges their results.
func (o *Orchestrator) phaseRetrieve(ctx context.Context, state *PipelineState) error {
	o.executeAgents(ctx, state, state.Strategy.Agents)
	return nil
}

// phaseQualityGate evaluates whether the internal results are enough.
func (o *Orchestrator) phaseQualityGate(ctx context.Context, state *PipelineState) error {
	state.QualityCheck = EvaluateQualityGate(GateInput{
		DocumentCount:     len(state.Documents),
		AverageConfidence: averageConfidence(state.ConfidenceScores),
		Complexity:        state.Complexity,
		WantsCurrentData:  QueryWantsCurrentData(state.Query.Text),
		MinDocuments:      o.cfg.MinDocuments,
		Threshold:         o.cfg.ConfidenceThreshold,
	})
	o.logger.Printf("[%s] quality gate: docs=%d avg=%.2f enrich=%t",
		state.Query.ID, state.QualityCheck.DocumentCount,
		state.QualityCheck.AverageConfidence, state.QualityCheck.NeedsEnrichment)
	return nil
}

// phaseEnrich fans out the selected external agents. An empty selection is
// a quiet skip, not a failure.
func (o *Orchestrator) phaseEnrich(ctx context.Context, state *PipelineState) error {
	selected := SelectExternalAgents(state.Query.Text, state.Complexity, state.QualityCheck)
	var available []AgentID
	for _, id := range selected {
		if _, ok := o.agents[id]; ok {
			available = append(available, id)
		}
	}
	if len(available) == 0 {
		o.logger.Printf("[%s] no external agents selected", state.Query.ID)
		return nil
	}
	state.Strategy.External = available
	o.executeAgents(ctx, state, available)
	return nil
}

// SetEnhancer installs the optional re-scoring tool run before ranking.
func (o *Orchestrator) SetEnhancer(t Tool) { o.enhancer = t }

// phaseRank orders the merged set and applies the complexity cap. When an
// enhancer tool is installed it annotates quality and coherence scores
// first; an enhancer failure leaves the neutral defaults in place.
func (o *Orchestrator) phaseRank(ctx context.Context, state *PipelineState) error {
	if o.enhancer != nil && len(state.Documents) > 0 {
		res, err := o.enhancer.Call(ctx, state.Query.Text, map[string]interface{}{
			"documents": state.Documents,
		})
		if err != nil {
			o.logger.Printf("[%s] enhancer skipped: %v", state.Query.ID, err)
		} else if len(res.Documents) == len(state.Documents) {
			state.Documents = res.Documents
		}
	}
	state.Documents = o.agg.RankAndLimit(state.Documents, state.Complexity)
	return nil
}

// phaseSynthesize produces the final answer. Timed like the other phases
// but returns the synthesis instead of mutating state.
func (o *Orchestrator) phaseSynthesize(ctx context.Context, state *PipelineState) SynthesisResult {
	ctx, span := researchTracer.Start(ctx, "research.synthesize")
	defer span.End()

	o.setPhase(state.Query.ID, "synthesize")
	start := time.Now()
	synthesis := o.synthesizer.Synthesize(ctx, state)
	state.PhaseTimings["synthesize"] = time.Since(start)

	if o.telemetry != nil {
		o.telemetry.RecordPhase("synthesize", state.PhaseTimings["synthesize"])
	}
	span.SetAttributes(attribute.String("synthesis.strategy", synthesis.Strategy))
	span.SetStatus(codes.Ok, "")
	return synthesis
}

// executeAgents runs the given agents concurrently. Each agent gets an
// isolated view, a private result slot and its own timeout; the shared
// state is only touched after the join. An agent that ignores its context
// still yields a timeout result on schedule.
func (o *Orchestrator) executeAgents(ctx context.Context, state *PipelineState, ids []AgentID) {
	results := make([]RetrievalResult, len(ids))
	var wg sync.WaitGroup

	for i, id := range ids {
		agent, ok := o.agents[id]
		if !ok {
			results[i] = degradedResult(id, "agent not registered")
			continue
		}

		wg.Add(1)
		go func(slot int, id AgentID, agent RetrievalAgent) {
			defer wg.Done()

			select {
			case o.semaphore <- struct{}{}:
				defer func() { <-o.semaphore }()
			case <-ctx.Done():
				results[slot] = timeoutResult(id, 0)
				return
			}

			timeout := o.cfg.AgentTimeout
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			agentCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			view := o.buildView(state, id)
			start := time.Now()

			type outcome struct {
				res RetrievalResult
				err error
			}
			done := make(chan outcome, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- outcome{err: fmt.Errorf("panic: %v", r)}
					}
				}()
				res, err := agent.Process(agentCtx, view)
				done <- outcome{res: res, err: err}
			}()

			select {
			case out := <-done:
				if out.err != nil {
					results[slot] = degradedResult(id, out.err.Error())
				} else {
					results[slot] = out.res
				}
				results[slot].ElapsedTime = time.Since(start)
			case <-agentCtx.Done():
				results[slot] = timeoutResult(id, time.Since(start))
			}
		}(i, id, agent)
	}
	wg.Wait()

	// Join point: single-threaded merge into shared state.
	for i, id := range ids {
		res := results[i]
		res.AgentID = id
		state.AgentOutputs[id] = res
		state.ConfidenceScores[id] = res.Confidence

		if reason, ok := res.Metadata["error"].(string); ok {
			state.Errors = append(state.Errors, fmt.Sprintf("agent %s: %s", id, reason))
		}
		state.Documents = o.agg.Merge(state.Documents, res.Documents)

		if o.telemetry != nil {
			o.telemetry.RecordAgentEvent(context.Background(), telemetry.AgentEvent{
				Agent:      string(id),
				Duration:   res.ElapsedTime,
				Success:    res.Confidence > 0,
				Documents:  len(res.Documents),
				Confidence: res.Confidence,
			})
		}
	}
}

// buildView assembles the isolated per-agent slice of state.
func (o *Orchestrator) buildView(state *PipelineState, id AgentID) AgentView {
	refined := state.Strategy.RefinedQueries[id]
	if refined == "" {
		refined = state.Query.Text
	}
	return AgentView{
		Query:       refined,
		RawQuery:    state.Query.Text,
		Intent:      state.Intent,
		Complexity:  state.Complexity,
		MaxResults:  MaxResultsFor(state.Complexity, id.IsExternal()),
		SearchDepth: SearchDepthFor(state.Complexity),
		Context:     state.Query.Context,
	}
}

func timeoutResult(id AgentID, elapsed time.Duration) RetrievalResult {
	return RetrievalResult{
		AgentID:     id,
		Documents:   []Document{},
		Confidence:  0,
		Metadata:    map[string]interface{}{"error": "timeout"},
		ElapsedTime: elapsed,
	}
}

// buildResult assembles the caller-facing envelope.
func (o *Orchestrator) buildResult(state *PipelineState, synthesis SynthesisResult) ResearchResult {
	status := StatusSuccess
	if len(state.Errors) > 0 {
		status = StatusPartial
	}
	if len(state.Documents) == 0 {
		status = StatusNoResults
	}

	var internal, external []AgentID
	for _, id := range state.Strategy.Agents {
		internal = append(internal, id)
	}
	external = append(external, state.Strategy.External...)

	return ResearchResult{
		ID:        state.Query.ID,
		Query:     state.Query.Text,
		Status:    status,
		Synthesis: synthesis,
		Documents: state.Documents,
		Metadata: ResearchMetadata{
			ProcessingTime:     time.Since(state.StartTime),
			Complexity:         state.Complexity.String(),
			AgentsUsed:         append(append([]AgentID{}, internal...), external...),
			InternalAgents:     internal,
			ExternalAgents:     external,
			DocumentsRetrieved: len(state.Documents),
			ConfidenceScores:   state.ConfidenceScores,
			QualityCheck:       state.QualityCheck,
			LLMConfidence:      llmConfidenceFrom(synthesis),
			PhaseTimings:       state.PhaseTimings,
			Errors:             state.Errors,
		},
		CreatedAt: state.Query.CreatedAt,
	}
}

func llmConfidenceFrom(synthesis SynthesisResult) float64 {
	if synthesis.Metadata != nil {
		if v, ok := synthesis.Metadata["llm_confidence"].(float64); ok {
			return v
		}
	}
	return 0
}

func agentNames(ids []AgentID) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, string(id))
	}
	return names
}

// trackRequest registers an in-flight request for status and cancellation.
func (o *Orchestrator) trackRequest(query Query, cancel context.CancelFunc) {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	o.active[query.ID] = &activeRequest{
		Query:     query.Text,
		Phase:     "plan",
		StartTime: time.Now(),
		cancel:    cancel,
	}
}

func (o *Orchestrator) untrackRequest(id string) {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	delete(o.active, id)
}

func (o *Orchestrator) setPhase(id, phase string) {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	if req, ok := o.active[id]; ok {
		req.Phase = phase
	}
}

// GetStatus reports an in-flight request, if any.
func (o *Orchestrator) GetStatus(id string) (RequestStatus, bool) {
	o.activeMu.RLock()
	defer o.activeMu.RUnlock()
	req, ok := o.active[id]
	if !ok {
		return RequestStatus{}, false
	}
	return RequestStatus{
		ID:        id,
		Query:     req.Query,
		Phase:     req.Phase,
		StartTime: req.StartTime,
		Elapsed:   time.Since(req.StartTime).String(),
	}, true
}

// CancelProcessing cancels an in-flight request.
func (o *Orchestrator) CancelProcessing(id string) bool {
	o.activeMu.RLock()
	req, ok := o.active[id]
	o.activeMu.RUnlock()
	if !ok {
		return false
	}
	req.cancel()
	return true
}
