package core

import (
	"context"
	"fmt"
	"log"
	"time"
)

// caseLawRelevanceFloor drops weak matches before they dilute confidence.
const caseLawRelevanceFloor = 0.3

// CaseLawAgent searches decided cases. Results below the relevance floor
// are discarded rather than ranked down: a marginal case citation is worse
// than no citation.
type CaseLawAgent struct {
	store  VectorStore
	tools  ToolSource
	logger *log.Logger
}

func NewCaseLawAgent(store VectorStore, tools ToolSource) *CaseLawAgent {
	return &CaseLawAgent{
		store:  store,
		tools:  tools,
		logger: log.New(log.Writer(), "[CASELAW-AGENT] ", log.LstdFlags),
	}
}

func (a *CaseLawAgent) ID() AgentID { return AgentCaseLaw }

func (a *CaseLawAgent) Process(ctx context.Context, view AgentView) (RetrievalResult, error) {
	start := time.Now()
	if a.store == nil {
		return degradedResult(AgentCaseLaw, "vector store unavailable"), nil
	}

	filter := map[string]string{"document_type": "case_law", "depth": view.SearchDepth}
	docs, err := a.store.Search(ctx, view.Query, view.MaxResults, filter)
	if err != nil {
		a.logger.Printf("search failed: %v", err)
		return degradedResult(AgentCaseLaw, fmt.Sprintf("search: %v", err)), nil
	}

	filtered := docs[:0]
	for _, d := range docs {
		if d.RelevanceScore >= caseLawRelevanceFloor {
			filtered = append(filtered, d)
		}
	}
	docs = filtered

	docs, toolsUsed := escalateWithTools(ctx, a.logger, a.tools, AgentCaseLaw, view, docs)

	for i := range docs {
		if isDirectMatch(docs[i], view.Intent.Entities) {
			if docs[i].Metadata == nil {
				docs[i].Metadata = make(map[string]interface{})
			}
			docs[i].Metadata["direct_match"] = true
		}
	}

	sortByRelevance(docs)
	docs = capDocuments(docs, view.MaxResults)

	confidence := confidenceFor(docs, view.Intent.Entities, false)
	a.logger.Printf("query=%q docs=%d confidence=%.2f", truncateForLog(view.Query), len(docs), confidence)

	return RetrievalResult{
		AgentID:    AgentCaseLaw,
		Documents:  docs,
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"search_depth":    view.SearchDepth,
			"relevance_floor": caseLawRelevanceFloor,
			"tools_used":      toolsUsed,
		},
		ElapsedTime: time.Since(start),
	}, nil
}
