package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lexum-research/lexum/internal/research/core"
)

// MemoryGraph is an in-memory relationship graph backing the precedent
// agent. Nodes are precedent documents; edges are the terms (sections,
// entities, keywords) that connect them. The query surface is the named
// specs of core.GraphStore, not raw traversal.
type MemoryGraph struct {
	mu    sync.RWMutex
	nodes map[string]core.Document
	terms map[string][]string // lowercased term -> node IDs
}

func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		nodes: make(map[string]core.Document),
		terms: make(map[string][]string),
	}
}

// AddPrecedent registers a precedent node reachable through the given
// terms. Re-adding a node replaces it and extends its term edges.
func (g *MemoryGraph) AddPrecedent(doc core.Document, terms []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes[doc.ID] = doc
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if containsID(g.terms[t], doc.ID) {
			continue
		}
		g.terms[t] = append(g.terms[t], doc.ID)
	}
}

// ExecuteQuery implements core.GraphStore. The only spec today is
// precedents_for_entities: nodes reachable from the query's entities and
// keywords, scored by how many terms hit them.
func (g *MemoryGraph) ExecuteQuery(ctx context.Context, spec string, params map[string]interface{}) ([]core.GraphRecord, error) {
	if spec != "precedents_for_entities" {
		return nil, fmt.Errorf("unknown graph query: %s", spec)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var searchTerms []string
	if entities, ok := params["entities"].([]string); ok {
		searchTerms = append(searchTerms, entities...)
	}
	if keywords, ok := params["keywords"].([]string); ok {
		searchTerms = append(searchTerms, keywords...)
	}
	limit := 10
	if l, ok := params["limit"].(int); ok && l > 0 {
		limit = l
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	hits := make(map[string]int)
	for _, term := range searchTerms {
		t := strings.ToLower(strings.TrimSpace(term))
		for _, id := range g.terms[t] {
			hits[id]++
		}
	}

	records := make([]core.GraphRecord, 0, len(hits))
	for id, count := range hits {
		node, ok := g.nodes[id]
		if !ok {
			continue
		}
		relevance := 0.5 + 0.1*float64(min(count, 5))
		if relevance > 1.0 {
			relevance = 1.0
		}
		rec := core.GraphRecord{
			"id":        node.ID,
			"title":     node.Title,
			"content":   node.Content,
			"type":      node.Type,
			"relevance": relevance,
		}
		if !node.PublishedAt.IsZero() {
			rec["published_at"] = node.PublishedAt
		}
		records = append(records, rec)
	}

	sortRecordsByRelevance(records)
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Size returns the number of nodes in the graph.
func (g *MemoryGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func sortRecordsByRelevance(records []core.GraphRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, _ := records[i]["relevance"].(float64)
		b, _ := records[j]["relevance"].(float64)
		return a > b
	})
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
