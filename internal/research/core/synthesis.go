package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/telemetry"
)

// SynthesisDispatcher turns the merged document set into a structured
// answer. The synthesis strategy is a pure function of complexity; the LLM
// is only involved in producing prose, never in choosing the strategy.
type SynthesisDispatcher struct {
	cfg       config.SynthesisConfig
	llm       LLMProvider
	router    *ModelRouter
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewSynthesisDispatcher(cfg config.SynthesisConfig, llm LLMProvider, router *ModelRouter, tel *telemetry.Telemetry) *SynthesisDispatcher {
	return &SynthesisDispatcher{
		cfg:       cfg,
		llm:       llm,
		router:    router,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[SYNTHESIS] ", log.LstdFlags),
	}
}

// StrategyFor maps complexity to a synthesis strategy name.
func StrategyFor(c QueryComplexity) string {
	switch c {
	case ComplexitySimple:
		return "simple"
	case ComplexityModerate:
		return "moderate"
	case ComplexityComplex:
		return "complex"
	default:
		return "expert"
	}
}

// synthesisPayload is the strict JSON shape we ask the model for.
type synthesisPayload struct {
	Answer          string   `json:"answer"`
	Confidence      float64  `json:"confidence"`
	KeyFindings     []string `json:"key_findings"`
	Recommendations []string `json:"recommendations"`
}

// Synthesize produces the final answer from the pipeline state. LLM
// failures fall back to a rule-based answer built from the best document;
// synthesis never fails the pipeline.
func (d *SynthesisDispatcher) Synthesize(ctx context.Context, state *PipelineState) SynthesisResult {
	strategy := StrategyFor(state.Complexity)

	if len(state.Documents) == 0 {
		return d.noResults(state, strategy)
	}

	var payload synthesisPayload
	var err error
	switch strategy {
	case "simple":
		payload, err = d.synthesizeSimple(ctx, state)
	case "moderate":
		payload, err = d.synthesizeGrouped(ctx, state, false)
	default:
		payload, err = d.synthesizeGrouped(ctx, state, true)
	}
	if err != nil {
		d.logger.Printf("synthesis failed, using fallback: %v", err)
		return d.fallback(state, strategy, err)
	}

	agentConsensus := averageConfidence(state.ConfidenceScores)
	blended := FinalConfidence(agentConsensus, payload.Confidence, d.cfg.AgentWeight)

	return SynthesisResult{
		Answer:          payload.Answer,
		Confidence:      blended,
		Strategy:        strategy,
		KeyFindings:     payload.KeyFindings,
		Recommendations: payload.Recommendations,
		Citations:       citationsFor(state.Documents, 5),
		Metadata: map[string]interface{}{
			"llm_confidence":  payload.Confidence,
			"agent_consensus": agentConsensus,
		},
	}
}

// synthesizeSimple answers from the top documents in one call.
func (d *SynthesisDispatcher) synthesizeSimple(ctx context.Context, state *PipelineState) (synthesisPayload, error) {
	docs := state.Documents
	if len(docs) > 5 {
		docs = docs[:5]
	}
	prompt := d.buildPrompt(state.Query.Text, map[string][]Document{"sources": docs},
		"Answer the question directly and concisely from the sources.")
	return d.generate(ctx, prompt)
}

// synthesizeGrouped groups documents by source category. For complex and
// expert queries each group gets its own extraction call and a final call
// combines the per-group findings.
func (d *SynthesisDispatcher) synthesizeGrouped(ctx context.Context, state *PipelineState, specialized bool) (synthesisPayload, error) {
	docs := state.Documents
	if max := d.cfg.MaxContextDocs; max > 0 && len(docs) > max {
		docs = docs[:max]
	}
	groups := groupByCategory(docs)

	if !specialized {
		prompt := d.buildPrompt(state.Query.Text, groups,
			"Write an executive summary answering the question, weighing primary sources over commentary.")
		return d.generate(ctx, prompt)
	}

	// One extraction call per source category, then a combining call. A
	// failed group is skipped; the combiner works with what survived.
	findings := make(map[string]string, len(groups))
	for category, groupDocs := range groups {
		prompt := d.buildPrompt(state.Query.Text, map[string][]Document{category: groupDocs},
			fmt.Sprintf("Extract the findings from the %s sources that bear on the question.", category))
		p, err := d.generate(ctx, prompt)
		if err != nil {
			d.logger.Printf("group %s extraction failed: %v", category, err)
			continue
		}
		findings[category] = p.Answer
	}
	if len(findings) == 0 {
		return synthesisPayload{}, fmt.Errorf("all group extractions failed")
	}

	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(state.Query.Text)
	sb.WriteString("\n\nFindings by source category:\n")
	for category, text := range findings {
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", category, text)
	}
	sb.WriteString("\nCombine the findings into a thorough answer. Note where sources disagree.")
	sb.WriteString(jsonInstruction)
	return d.generate(ctx, sb.String())
}

const jsonInstruction = `

Respond with only a JSON object:
{"answer": "...", "confidence": 0.0, "key_findings": ["..."], "recommendations": ["..."]}
confidence is your own estimate in [0,1] of how well the sources support the answer.`

// buildPrompt renders the question plus grouped source excerpts.
func (d *SynthesisDispatcher) buildPrompt(question string, groups map[string][]Document, instruction string) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n")
	for category, docs := range groups {
		fmt.Fprintf(&sb, "\nSources (%s):\n", category)
		for i, doc := range docs {
			excerpt := doc.Content
			if len(excerpt) > 1200 {
				excerpt = excerpt[:1200]
			}
			fmt.Fprintf(&sb, "%d. %s [%s]\n%s\n", i+1, doc.Title, doc.Type, excerpt)
		}
	}
	sb.WriteString("\n")
	sb.WriteString(instruction)
	sb.WriteString(jsonInstruction)
	return sb.String()
}

// generate runs one model call and parses the strict-JSON response.
func (d *SynthesisDispatcher) generate(ctx context.Context, prompt string) (synthesisPayload, error) {
	model := d.router.Synthesis()
	raw, inTokens, outTokens, err := d.llm.GenerateWithTokens(ctx, prompt, model, nil)
	if err != nil {
		return synthesisPayload{}, fmt.Errorf("generate: %w", err)
	}

	if d.telemetry != nil {
		d.telemetry.RecordLLMEvent(ctx, telemetry.LLMEvent{
			Model:        model,
			Operation:    "synthesis",
			InputTokens:  inTokens,
			OutputTokens: outTokens,
			Cost:         d.llm.CalculateCost(inTokens, outTokens, model),
		})
	}

	var payload synthesisPayload
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &payload); err != nil {
		return synthesisPayload{}, fmt.Errorf("parse response: %w", err)
	}
	if payload.Answer == "" {
		return synthesisPayload{}, fmt.Errorf("empty answer")
	}
	if payload.Confidence < 0 {
		payload.Confidence = 0
	}
	if payload.Confidence > 1 {
		payload.Confidence = 1
	}
	return payload, nil
}

// fallback builds a rule-based answer from the highest-relevance document.
func (d *SynthesisDispatcher) fallback(state *PipelineState, strategy string, cause error) SynthesisResult {
	best := state.Documents[0]
	for _, doc := range state.Documents[1:] {
		if doc.RelevanceScore > best.RelevanceScore {
			best = doc
		}
	}
	excerpt := best.Content
	if len(excerpt) > 600 {
		excerpt = strings.TrimSpace(excerpt[:600]) + "..."
	}

	return SynthesisResult{
		Answer: fmt.Sprintf("Based on the most relevant source (%s):\n\n%s", best.Title, excerpt),
		Confidence: FinalConfidence(averageConfidence(state.ConfidenceScores),
			d.cfg.FallbackConfidence, d.cfg.AgentWeight),
		Strategy:  strategy,
		Citations: citationsFor(state.Documents, 3),
		Metadata: map[string]interface{}{
			"fallback": true,
			"cause":    cause.Error(),
		},
	}
}

// noResults is the answer shape when retrieval produced nothing usable.
func (d *SynthesisDispatcher) noResults(state *PipelineState, strategy string) SynthesisResult {
	return SynthesisResult{
		Answer:     "No relevant sources were found for this query.",
		Confidence: 0,
		Strategy:   strategy,
		Recommendations: []string{
			"Rephrase the query with specific section numbers or terms",
			"Broaden the question if it targets a very narrow provision",
		},
		Metadata: map[string]interface{}{"no_results": true},
	}
}

// groupByCategory buckets documents into primary, case, commentary and web
// groups for the grouped strategies.
func groupByCategory(docs []Document) map[string][]Document {
	groups := make(map[string][]Document)
	for _, doc := range docs {
		var category string
		switch strings.ToLower(doc.Type) {
		case "regulation", "federal_register", "revenue_ruling", "authority_ruling", "private_letter_ruling":
			category = "primary"
		case "case_law", "case", "precedent":
			category = "cases"
		case "expert_analysis", "knowledge_base":
			category = "commentary"
		default:
			category = "web"
		}
		groups[category] = append(groups[category], doc)
	}
	return groups
}

// citationsFor points at the top documents backing the answer.
func citationsFor(docs []Document, max int) []Citation {
	if len(docs) > max {
		docs = docs[:max]
	}
	citations := make([]Citation, 0, len(docs))
	for _, doc := range docs {
		citations = append(citations, Citation{ID: doc.ID, Title: doc.Title, Source: doc.Source})
	}
	return citations
}

// averageConfidence is the agent consensus: the mean of per-agent scores.
func averageConfidence(scores map[AgentID]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
