package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// PrecedentAgent queries the relationship graph for rulings and precedents
// connected to the query's entities. Graph hits start from the store's own
// relevance and are boosted for entity, keyword and recency signals.
type PrecedentAgent struct {
	graph  GraphStore
	tools  ToolSource
	logger *log.Logger
}

func NewPrecedentAgent(graph GraphStore, tools ToolSource) *PrecedentAgent {
	return &PrecedentAgent{
		graph:  graph,
		tools:  tools,
		logger: log.New(log.Writer(), "[PRECEDENT-AGENT] ", log.LstdFlags),
	}
}

func (a *PrecedentAgent) ID() AgentID { return AgentPrecedent }

func (a *PrecedentAgent) Process(ctx context.Context, view AgentView) (RetrievalResult, error) {
	start := time.Now()
	if a.graph == nil {
		return degradedResult(AgentPrecedent, "graph store unavailable"), nil
	}

	params := map[string]interface{}{
		"entities": view.Intent.Entities,
		"keywords": view.Intent.Keywords,
		"query":    view.Query,
		"limit":    view.MaxResults,
	}
	records, err := a.graph.ExecuteQuery(ctx, "precedents_for_entities", params)
	if err != nil {
		a.logger.Printf("graph query failed: %v", err)
		return degradedResult(AgentPrecedent, fmt.Sprintf("graph: %v", err)), nil
	}

	docs := make([]Document, 0, len(records))
	for _, rec := range records {
		doc := documentFromRecord(rec)
		doc.RelevanceScore = boostPrecedentRelevance(doc, view.Intent)
		docs = append(docs, doc)
	}

	docs, toolsUsed := escalateWithTools(ctx, a.logger, a.tools, AgentPrecedent, view, docs)

	sortByRelevance(docs)
	docs = capDocuments(docs, view.MaxResults)

	confidence := confidenceFor(docs, view.Intent.Entities, false)
	a.logger.Printf("query=%q records=%d docs=%d confidence=%.2f",
		truncateForLog(view.Query), len(records), len(docs), confidence)

	return RetrievalResult{
		AgentID:     AgentPrecedent,
		Documents:   docs,
		Confidence:  confidence,
		Metadata:    map[string]interface{}{"graph_records": len(records), "tools_used": toolsUsed},
		ElapsedTime: time.Since(start),
	}, nil
}

// documentFromRecord maps one graph row to a document. Missing fields get
// neutral defaults so malformed rows still flow through ranking.
func documentFromRecord(rec GraphRecord) Document {
	doc := Document{
		Source: "graph",
		Type:   "precedent",
	}
	if v, ok := rec["id"].(string); ok {
		doc.ID = v
	}
	if v, ok := rec["title"].(string); ok {
		doc.Title = v
	}
	if v, ok := rec["content"].(string); ok {
		doc.Content = v
	}
	if v, ok := rec["type"].(string); ok && v != "" {
		doc.Type = v
	}
	if v, ok := rec["relevance"].(float64); ok {
		doc.RelevanceScore = v
	} else {
		doc.RelevanceScore = 0.5
	}
	if v, ok := rec["published_at"].(time.Time); ok {
		doc.PublishedAt = v
	}
	return doc
}

// boostPrecedentRelevance layers graph-specific signals on the base score:
// entity match in the title, keyword hits in the content and recency.
func boostPrecedentRelevance(doc Document, intent Intent) float64 {
	score := doc.RelevanceScore

	title := strings.ToLower(doc.Title)
	for _, e := range intent.Entities {
		if e != "" && strings.Contains(title, strings.ToLower(e)) {
			score += 0.1
			break
		}
	}

	content := strings.ToLower(doc.Content)
	hits := 0
	for _, k := range intent.Keywords {
		if k != "" && strings.Contains(content, strings.ToLower(k)) {
			hits++
		}
	}
	if hits > 3 {
		hits = 3
	}
	score += float64(hits) * 0.05

	if !doc.PublishedAt.IsZero() && time.Since(doc.PublishedAt) < 2*365*24*time.Hour {
		score += 0.05
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
