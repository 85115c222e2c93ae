package core

import (
	"context"
	"log"
	"regexp"
	"sort"
	"strings"
)

// NewAgents builds the full retrieval agent set. Internal agents are backed
// by the vector and graph stores and share the tool source for escalation
// when internal retrieval comes up short; external agents pull their tools
// from the registry. A nil graph store leaves the precedent agent degraded
// but registered, so strategy planning never has to special-case it.
func NewAgents(vectors VectorStore, graph GraphStore, tools ToolSource) map[AgentID]RetrievalAgent {
	agents := map[AgentID]RetrievalAgent{
		AgentRegulation: NewRegulationAgent(vectors, tools),
		AgentCaseLaw:    NewCaseLawAgent(vectors, tools),
		AgentPrecedent:  NewPrecedentAgent(graph, tools),
		AgentExpert:     NewExpertAgent(vectors, tools),
	}
	if tools != nil {
		agents[AgentWebSearch] = NewWebSearchAgent(tools)
		agents[AgentAuthority] = NewAuthorityAgent(tools)
	}
	return agents
}

// MaxResultsFor returns the per-agent result budget. External services get a
// larger base because their results are filtered harder afterwards.
func MaxResultsFor(c QueryComplexity, external bool) int {
	base := 10
	if external {
		base = 15
	}
	switch c {
	case ComplexitySimple:
		return base / 2
	case ComplexityExpert:
		return base * 2
	default:
		return base
	}
}

// SearchDepthFor maps complexity to the depth hint passed to stores and
// tools.
func SearchDepthFor(c QueryComplexity) string {
	if c <= ComplexityModerate {
		return "shallow"
	}
	return "deep"
}

var crossRefPattern = regexp.MustCompile(`(?i)(?:see also|see|cf\.|pursuant to|under)\s+(?:§|section|sec\.?)\s*(\d+[\w.\-()]*)`)

// extractCrossReferences pulls section references that follow citation cue
// words. Duplicates are collapsed, order of first appearance kept.
func extractCrossReferences(content string) []string {
	matches := crossRefPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var refs []string
	for _, m := range matches {
		ref := strings.TrimRight(m[1], ".,;")
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}

// isDirectMatch reports whether any extracted entity appears in the
// document's title or leading content.
func isDirectMatch(doc Document, entities []string) bool {
	title := strings.ToLower(doc.Title)
	head := strings.ToLower(doc.Content)
	if len(head) > 500 {
		head = head[:500]
	}
	for _, e := range entities {
		le := strings.ToLower(e)
		if le == "" {
			continue
		}
		if strings.Contains(title, le) || strings.Contains(head, le) {
			return true
		}
	}
	return false
}

// distinctSources counts unique document sources.
func distinctSources(docs []Document) int {
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		seen[d.Source] = true
	}
	return len(seen)
}

// confidenceFor builds the confidence feature vector from a result set and
// scores it.
func confidenceFor(docs []Document, entities []string, hasCrossRefs bool) float64 {
	f := ConfidenceFeatures{
		RelevanceScores: make([]float64, 0, len(docs)),
		DistinctSources: distinctSources(docs),
		HasCrossRefs:    hasCrossRefs,
	}
	for _, d := range docs {
		f.RelevanceScores = append(f.RelevanceScores, d.RelevanceScore)
		if isDirectMatch(d, entities) {
			f.DirectMatches++
		}
	}
	return AgentConfidence(f)
}

// escalationFeatures summarizes a result set for the tool-escalation policy.
func escalationFeatures(rawQuery string, docs []Document) EscalationFeatures {
	f := EscalationFeatures{
		DocumentCount:    len(docs),
		WantsCurrentData: QueryWantsCurrentData(rawQuery),
	}
	if len(docs) > 0 {
		var sum float64
		for _, d := range docs {
			sum += d.RelevanceScore
		}
		f.AverageRelevance = sum / float64(len(docs))
	}
	return f
}

// escalateWithTools supplements a poor internal result set with the agent's
// registered tools. A failing tool only logs; the internal set survives as
// is. The bool reports whether any tool answered.
func escalateWithTools(ctx context.Context, logger *log.Logger, tools ToolSource, id AgentID, view AgentView, docs []Document) ([]Document, bool) {
	if tools == nil {
		return docs, false
	}
	if !ShouldEscalateToTools(escalationFeatures(view.RawQuery, docs)) {
		return docs, false
	}
	registered := tools.ToolsFor(id)
	if len(registered) == 0 {
		return docs, false
	}

	options := map[string]interface{}{
		"max_results": view.MaxResults,
		"depth":       view.SearchDepth,
	}
	agg := NewAggregator()
	used := false
	for _, tool := range registered {
		res, err := tool.Call(ctx, view.Query, options)
		if err != nil {
			logger.Printf("tool %s failed: %v", tool.Name(), err)
			continue
		}
		used = true
		docs = agg.Merge(docs, res.Documents)
	}
	return docs, used
}

// degradedResult is what an agent returns when its backend is unavailable
// or a call failed. Zero confidence, no documents, reason recorded.
func degradedResult(agent AgentID, reason string) RetrievalResult {
	return RetrievalResult{
		AgentID:    agent,
		Documents:  []Document{},
		Confidence: 0,
		Metadata:   map[string]interface{}{"error": reason},
	}
}

// capDocuments trims a result set to the agent's budget after sorting by
// relevance.
func capDocuments(docs []Document, max int) []Document {
	if max <= 0 || len(docs) <= max {
		return docs
	}
	return docs[:max]
}

// sortByRelevance orders documents by relevance, best first. Stable so that
// equal scores keep retrieval order.
func sortByRelevance(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].RelevanceScore > docs[j].RelevanceScore
	})
}
