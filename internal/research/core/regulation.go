package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// RegulationAgent searches the regulation corpus. Beyond the refined query
// it runs focused sub-searches for extracted entities, so a query naming
// §199A finds the regulation itself even when the prose match is weak.
type RegulationAgent struct {
	store  VectorStore
	tools  ToolSource
	agg    *Aggregator
	logger *log.Logger
}

func NewRegulationAgent(store VectorStore, tools ToolSource) *RegulationAgent {
	return &RegulationAgent{
		store:  store,
		tools:  tools,
		agg:    NewAggregator(),
		logger: log.New(log.Writer(), "[REGULATION-AGENT] ", log.LstdFlags),
	}
}

func (a *RegulationAgent) ID() AgentID { return AgentRegulation }

func (a *RegulationAgent) Process(ctx context.Context, view AgentView) (RetrievalResult, error) {
	start := time.Now()
	if a.store == nil {
		return degradedResult(AgentRegulation, "vector store unavailable"), nil
	}

	filter := map[string]string{"document_type": "regulation", "depth": view.SearchDepth}

	docs, err := a.store.Search(ctx, view.Query, view.MaxResults, filter)
	if err != nil {
		a.logger.Printf("primary search failed: %v", err)
		return degradedResult(AgentRegulation, fmt.Sprintf("search: %v", err)), nil
	}

	// Focused sub-searches for the strongest entities. Failures here only
	// reduce recall.
	for i, entity := range view.Intent.Entities {
		if i >= 3 {
			break
		}
		sub, err := a.store.Search(ctx, entity, view.MaxResults/2, filter)
		if err != nil {
			a.logger.Printf("entity search %q failed: %v", entity, err)
			continue
		}
		docs = a.agg.Merge(docs, sub)
	}

	docs, toolsUsed := escalateWithTools(ctx, a.logger, a.tools, AgentRegulation, view, docs)

	hasCrossRefs := false
	for i := range docs {
		refs := extractCrossReferences(docs[i].Content)
		if len(refs) == 0 {
			continue
		}
		hasCrossRefs = true
		if docs[i].Metadata == nil {
			docs[i].Metadata = make(map[string]interface{})
		}
		docs[i].Metadata["cross_references"] = refs
	}

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

	confidence := confidenceFor(docs, view.Intent.Entities, hasCrossRefs)
	a.logger.Printf("query=%q docs=%d confidence=%.2f", truncateForLog(view.Query), len(docs), confidence)

	return RetrievalResult{
		AgentID:    AgentRegulation,
		Documents:  docs,
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"search_depth":     view.SearchDepth,
			"entity_searches":  min(len(view.Intent.Entities), 3),
			"cross_references": hasCrossRefs,
			"tools_used":       toolsUsed,
		},
		ElapsedTime: time.Since(start),
	}, nil
}

func truncateForLog(s string) string {
	if len(s) <= 80 {
		return s
	}
	return strings.TrimSpace(s[:80]) + "..."
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
