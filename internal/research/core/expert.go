package core

import (
	"context"
	"fmt"
	"log"
	"time"
)

// ExpertAgent searches commentary and analysis. Unlike primary sources,
// expert material carries its own authority score built from the author's
// credibility and the depth of the piece.
type ExpertAgent struct {
	store  VectorStore
	tools  ToolSource
	logger *log.Logger
}

func NewExpertAgent(store VectorStore, tools ToolSource) *ExpertAgent {
	return &ExpertAgent{
		store:  store,
		tools:  tools,
		logger: log.New(log.Writer(), "[EXPERT-AGENT] ", log.LstdFlags),
	}
}

func (a *ExpertAgent) ID() AgentID { return AgentExpert }

func (a *ExpertAgent) Process(ctx context.Context, view AgentView) (RetrievalResult, error) {
	start := time.Now()
	if a.store == nil {
		return degradedResult(AgentExpert, "vector store unavailable"), nil
	}

	filter := map[string]string{"document_type": "expert_analysis", "depth": view.SearchDepth}
	docs, err := a.store.Search(ctx, view.Query, view.MaxResults, filter)
	if err != nil {
		a.logger.Printf("search failed: %v", err)
		return degradedResult(AgentExpert, fmt.Sprintf("search: %v", err)), nil
	}

	docs, toolsUsed := escalateWithTools(ctx, a.logger, a.tools, AgentExpert, view, docs)

	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = make(map[string]interface{})
		}
		docs[i].Metadata["authority_score"] = expertAuthority(docs[i])
	}

	sortByRelevance(docs)
	docs = capDocuments(docs, view.MaxResults)

	confidence := confidenceFor(docs, view.Intent.Entities, false)
	a.logger.Printf("query=%q docs=%d confidence=%.2f", truncateForLog(view.Query), len(docs), confidence)

	return RetrievalResult{
		AgentID:     AgentExpert,
		Documents:   docs,
		Confidence:  confidence,
		Metadata:    map[string]interface{}{"search_depth": view.SearchDepth, "tools_used": toolsUsed},
		ElapsedTime: time.Since(start),
	}, nil
}

// expertAuthority scores an analysis piece from its annotated signals:
// author credibility, subject expertise, depth and applicability. Missing
// signals default to neutral.
func expertAuthority(doc Document) float64 {
	signal := func(key string) float64 {
		if doc.Metadata != nil {
			if v, ok := doc.Metadata[key].(float64); ok {
				return v
			}
		}
		return 0.5
	}
	return 0.3*signal("credibility") +
		0.25*signal("expertise") +
		0.25*signal("depth") +
		0.2*signal("applicability")
}
