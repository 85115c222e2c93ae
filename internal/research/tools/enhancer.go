package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/lexum-research/lexum/internal/research/core"
)

// EnhancerTool re-scores a batch of documents with one LLM call, writing
// quality and coherence signals into their metadata for the ranking pass.
// It never removes or reorders documents itself.
type EnhancerTool struct {
	llm        core.LLMProvider
	router     *core.ModelRouter
	maxRetries int
	logger     *log.Logger
}

func NewEnhancerTool(llm core.LLMProvider, router *core.ModelRouter, maxRetries int) *EnhancerTool {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &EnhancerTool{
		llm:        llm,
		router:     router,
		maxRetries: maxRetries,
		logger:     log.New(log.Writer(), "[ENHANCER] ", log.LstdFlags),
	}
}

func (t *EnhancerTool) Name() string { return "enhancer" }

type docScore struct {
	Index     int     `json:"index"`
	Quality   float64 `json:"quality"`
	Coherence float64 `json:"coherence"`
}

func (t *EnhancerTool) Call(ctx context.Context, query string, options map[string]interface{}) (core.ToolResult, error) {
	docs, _ := options["documents"].([]core.Document)
	if len(docs) == 0 {
		return core.ToolResult{Documents: docs}, nil
	}

	// Score at most 20 per call to keep the prompt bounded.
	batch := docs
	if len(batch) > 20 {
		batch = batch[:20]
	}

	prompt := t.buildPrompt(query, batch)
	model := t.router.Retrieval()

	var scores []docScore
	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		raw, err := t.llm.Generate(ctx, prompt, model, map[string]interface{}{"temperature": 0.0})
		if err != nil {
			lastErr = err
			continue
		}
		scores, lastErr = parseScores(raw, len(batch))
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return core.ToolResult{}, fmt.Errorf("enhance: %w", lastErr)
	}

	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(batch) {
			continue
		}
		doc := &docs[s.Index]
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{})
		}
		doc.Metadata["quality_score"] = clamp01(s.Quality)
		doc.Metadata["coherence_score"] = clamp01(s.Coherence)
	}

	t.logger.Printf("scored %d of %d documents", len(scores), len(docs))
	return core.ToolResult{
		Documents: docs,
		Metadata:  map[string]interface{}{"scored": len(scores)},
	}, nil
}

func (t *EnhancerTool) buildPrompt(query string, docs []core.Document) string {
	var sb strings.Builder
	sb.WriteString("Score each document's quality (source reliability, specificity) and coherence (relevance to the question) in [0,1].\n")
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nDocuments:\n")
	for i, doc := range docs {
		excerpt := doc.Content
		if len(excerpt) > 400 {
			excerpt = excerpt[:400]
		}
		fmt.Fprintf(&sb, "%d. %s [%s]\n%s\n", i, doc.Title, doc.Type, excerpt)
	}
	sb.WriteString("\nRespond with only a JSON object: {\"scores\": [{\"index\": 0, \"quality\": 0.0, \"coherence\": 0.0}, ...]}")
	return sb.String()
}

func parseScores(raw string, n int) ([]docScore, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON in response")
	}
	var payload struct {
		Scores []docScore `json:"scores"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("parse scores: %w", err)
	}
	if len(payload.Scores) == 0 {
		return nil, fmt.Errorf("empty scores")
	}
	if len(payload.Scores) > n {
		payload.Scores = payload.Scores[:n]
	}
	return payload.Scores, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
