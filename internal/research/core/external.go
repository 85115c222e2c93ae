package core

import (
	"context"
	"log"
	"strings"
	"time"
)

// authoritativeDomains weights web results by the trustworthiness of their
// origin. Unlisted domains score 0.4.
var authoritativeDomains = map[string]float64{
	"irs.gov":           1.0,
	"treasury.gov":      0.95,
	"congress.gov":      0.9,
	"gao.gov":           0.85,
	"uscourts.gov":      0.85,
	"taxfoundation.org": 0.7,
	"law.cornell.edu":   0.7,
}

// domainAuthority resolves the weight for a result URL or source label.
func domainAuthority(source string) float64 {
	s := strings.ToLower(source)
	for domain, w := range authoritativeDomains {
		if strings.Contains(s, domain) {
			return w
		}
	}
	return 0.4
}

// WebSearchAgent queries the web through the registered search tools. Its
// confidence derives from domain authority rather than embedding relevance:
// web results are only trusted as far as their origin.
type WebSearchAgent struct {
	tools  ToolSource
	logger *log.Logger
}

func NewWebSearchAgent(tools ToolSource) *WebSearchAgent {
	return &WebSearchAgent{
		tools:  tools,
		logger: log.New(log.Writer(), "[WEBSEARCH-AGENT] ", log.LstdFlags),
	}
}

func (a *WebSearchAgent) ID() AgentID { return AgentWebSearch }

func (a *WebSearchAgent) Process(ctx context.Context, view AgentView) (RetrievalResult, error) {
	start := time.Now()

	registered := a.tools.ToolsFor(AgentWebSearch)
	if len(registered) == 0 {
		return degradedResult(AgentWebSearch, "no search tools registered"), nil
	}

	options := map[string]interface{}{
		"max_results": view.MaxResults,
		"depth":       view.SearchDepth,
	}

	var docs []Document
	toolErrs := 0
	for _, tool := range registered {
		res, err := tool.Call(ctx, view.Query, options)
		if err != nil {
			a.logger.Printf("tool %s failed: %v", tool.Name(), err)
			toolErrs++
			continue
		}
		docs = append(docs, res.Documents...)
	}
	if len(docs) == 0 && toolErrs == len(registered) {
		return degradedResult(AgentWebSearch, "all search tools failed"), nil
	}

	for i := range docs {
		authority := domainAuthority(docs[i].Source)
		if docs[i].Metadata == nil {
			docs[i].Metadata = make(map[string]interface{})
		}
		docs[i].Metadata["authority_score"] = authority
		if docs[i].RelevanceScore == 0 {
			docs[i].RelevanceScore = authority
		}
	}

	sortByRelevance(docs)
	docs = capDocuments(docs, view.MaxResults)

	confidence := webConfidence(docs)
	a.logger.Printf("query=%q docs=%d confidence=%.2f", truncateForLog(view.Query), len(docs), confidence)

	return RetrievalResult{
		AgentID:     AgentWebSearch,
		Documents:   docs,
		Confidence:  confidence,
		Metadata:    map[string]interface{}{"tool_errors": toolErrs},
		ElapsedTime: time.Since(start),
	}, nil
}

// webConfidence averages domain authority, dampened until at least five
// results back it up.
func webConfidence(docs []Document) float64 {
	if len(docs) == 0 {
		return 0
	}
	var sum float64
	for _, d := range docs {
		sum += domainAuthority(d.Source)
	}
	avg := sum / float64(len(docs))

	factor := float64(len(docs)) / 5.0
	if factor > 1.0 {
		factor = 1.0
	}
	return avg * factor
}

// authorityDataNeeds maps lexical cues in the raw query to the data types
// the authority tool should fetch.
var authorityDataNeeds = []struct {
	cues     []string
	dataType string
}{
	{[]string{"rate", "rates", "percentage", "bracket"}, "rates"},
	{[]string{"deadline", "due date", "filing", "extension"}, "deadlines"},
	{[]string{"form", "forms", "schedule "}, "forms"},
	{[]string{"publication", "pub ", "guidance", "ruling"}, "publications"},
}

// DetectAuthorityDataNeeds returns which official data types a query is
// asking for, in a fixed order.
func DetectAuthorityDataNeeds(rawQuery string) []string {
	q := strings.ToLower(rawQuery)
	var needs []string
	for _, entry := range authorityDataNeeds {
		for _, cue := range entry.cues {
			if strings.Contains(q, cue) {
				needs = append(needs, entry.dataType)
				break
			}
		}
	}
	return needs
}

// AuthorityAgent fetches official data (rates, deadlines, forms,
// publications) through the registered authority tools.
type AuthorityAgent struct {
	tools  ToolSource
	logger *log.Logger
}

func NewAuthorityAgent(tools ToolSource) *AuthorityAgent {
	return &AuthorityAgent{
		tools:  tools,
		logger: log.New(log.Writer(), "[AUTHORITY-AGENT] ", log.LstdFlags),
	}
}

func (a *AuthorityAgent) ID() AgentID { return AgentAuthority }

func (a *AuthorityAgent) Process(ctx context.Context, view AgentView) (RetrievalResult, error) {
	start := time.Now()

	registered := a.tools.ToolsFor(AgentAuthority)
	if len(registered) == 0 {
		return degradedResult(AgentAuthority, "no authority tools registered"), nil
	}

	needs := DetectAuthorityDataNeeds(view.RawQuery)
	if len(needs) == 0 {
		needs = []string{"publications"}
	}
	options := map[string]interface{}{
		"max_results": view.MaxResults,
		"data_types":  needs,
	}

	var docs []Document
	toolErrs := 0
	for _, tool := range registered {
		res, err := tool.Call(ctx, view.Query, options)
		if err != nil {
			a.logger.Printf("tool %s failed: %v", tool.Name(), err)
			toolErrs++
			continue
		}
		docs = append(docs, res.Documents...)
	}
	if len(docs) == 0 && toolErrs == len(registered) {
		return degradedResult(AgentAuthority, "all authority tools failed"), nil
	}

	sortByRelevance(docs)
	docs = capDocuments(docs, view.MaxResults)

	confidence := confidenceFor(docs, view.Intent.Entities, false)
	a.logger.Printf("query=%q needs=%v docs=%d confidence=%.2f",
		truncateForLog(view.Query), needs, len(docs), confidence)

	return RetrievalResult{
		AgentID:    AgentAuthority,
		Documents:  docs,
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"data_types":  needs,
			"tool_errors": toolErrs,
		},
		ElapsedTime: time.Since(start),
	}, nil
}
