package core

import (
	"strings"
	"testing"
)

func TestAnalyzeSimpleQuery(t *testing.T) {
	a := NewAnalyzer(390)
	intent, complexity, strategy := a.Analyze("What is GILTI?")

	if complexity != ComplexitySimple {
		t.Fatalf("expected simple complexity, got %s", complexity)
	}
	if len(strategy.Agents) != 1 {
		t.Fatalf("simple query should run one agent, got %v", strategy.Agents)
	}
	if len(intent.Entities) != 0 {
		t.Fatalf("no citation in query, got entities %v", intent.Entities)
	}
	if strategy.Fallback {
		t.Fatalf("analysis succeeded, fallback flag should be unset")
	}
}

func TestAnalyzeComplexQueryAddsAgents(t *testing.T) {
	a := NewAnalyzer(390)
	query := "Analyze the interaction between section 382 limitations and section 163(j) " +
		"carryforwards for a consolidated group after a reorganization under section 368, " +
		"including NOL ordering rules, GILTI implications and the treasury regulation guidance"

	_, complexity, strategy := a.Analyze(query)

	if complexity < ComplexityComplex {
		t.Fatalf("expected at least complex, got %s", complexity)
	}
	if !containsAgent(strategy.Agents, AgentPrecedent) || !containsAgent(strategy.Agents, AgentExpert) {
		t.Fatalf("complex queries should include precedent and expert agents, got %v", strategy.Agents)
	}
	if !containsAgent(strategy.Agents, AgentRegulation) {
		t.Fatalf("regulation agent missing from %v", strategy.Agents)
	}
}

func TestComplexityMonotonicInEntities(t *testing.T) {
	a := NewAnalyzer(390)
	prev := ComplexitySimple
	query := "tax treatment"
	for _, suffix := range []string{" section 351", " section 368", " section 382", " section 163"} {
		query += suffix
		_, c, _ := a.Analyze(query)
		if c < prev {
			t.Fatalf("complexity dropped from %s to %s after adding an entity", prev, c)
		}
		prev = c
	}
}

func TestExtractEntities(t *testing.T) {
	entities := ExtractEntities("see section 382(a) and Reg 1.382-2, also 26 USC 163, and section 382(a) again")
	if len(entities) != 3 {
		t.Fatalf("expected 3 distinct entities, got %v", entities)
	}
	want := map[string]bool{"382(a)": true, "1.382-2": true, "163": true}
	for _, e := range entities {
		if !want[e] {
			t.Fatalf("unexpected entity %q in %v", e, entities)
		}
	}
}

func TestNormalizeQueryCanonicalForms(t *testing.T) {
	got := NormalizeQuery("  impact of the tax cuts and jobs act on   Net Operating Loss carryforwards?? ")
	if !strings.Contains(got, "TCJA") {
		t.Fatalf("TCJA not canonicalized: %q", got)
	}
	if !strings.Contains(got, "NOL") {
		t.Fatalf("NOL not canonicalized: %q", got)
	}
	if strings.Contains(got, "  ") {
		t.Fatalf("whitespace not collapsed: %q", got)
	}
}

func TestRefineQueryRespectsBudget(t *testing.T) {
	a := NewAnalyzer(390)
	long := strings.Repeat("consolidated reorganization carryforward election withholding ", 30)
	intent, _, _ := a.Analyze(long)

	for _, id := range []AgentID{AgentRegulation, AgentWebSearch, AgentAuthority} {
		refined := a.RefineQuery(NormalizeQuery(long), intent, id)
		if len(refined) > 390 {
			t.Fatalf("refined query for %s exceeds budget: %d bytes", id, len(refined))
		}
		if refined == "" {
			t.Fatalf("refined query for %s is empty", id)
		}
	}
}

func TestRefineQueryIncludesRoleVocabulary(t *testing.T) {
	a := NewAnalyzer(390)
	intent, _, _ := a.Analyze("section 382 limitation")
	refined := a.RefineQuery("section 382 limitation", intent, AgentCaseLaw)
	if !strings.Contains(refined, "revenue ruling") {
		t.Fatalf("case law vocabulary missing from %q", refined)
	}
}

func TestQueryWantsCurrentData(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"latest IRS guidance on section 174", true},
		{"current withholding rates", true},
		{"2025 filing deadlines", true},
		{"history of the 1986 reform", false},
		{"section 351 requirements", false},
	}
	for _, tc := range cases {
		if got := QueryWantsCurrentData(tc.query); got != tc.want {
			t.Fatalf("QueryWantsCurrentData(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestSelectExternalAgents(t *testing.T) {
	ok := QualityCheck{SufficientDocuments: true, HighConfidence: true}

	selected := SelectExternalAgents("latest guidance", ComplexitySimple, ok)
	if !containsAgent(selected, AgentWebSearch) {
		t.Fatalf("current-data query should select web search, got %v", selected)
	}

	selected = SelectExternalAgents("filing deadline for form 1120", ComplexitySimple, ok)
	if !containsAgent(selected, AgentAuthority) {
		t.Fatalf("deadline query should select authority agent, got %v", selected)
	}

	selected = SelectExternalAgents("section 351 analysis", ComplexityExpert, ok)
	if !containsAgent(selected, AgentWebSearch) {
		t.Fatalf("expert tier should select web search, got %v", selected)
	}

	selected = SelectExternalAgents("section 351 analysis", ComplexitySimple, QualityCheck{SufficientDocuments: false})
	if !containsAgent(selected, AgentWebSearch) {
		t.Fatalf("insufficient documents should select web search, got %v", selected)
	}

	selected = SelectExternalAgents("section 351 basics", ComplexitySimple, ok)
	if len(selected) != 0 {
		t.Fatalf("nothing should be selected, got %v", selected)
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := DefaultStrategy("my query")
	if !s.Fallback {
		t.Fatalf("default strategy must set the fallback flag")
	}
	if len(s.Agents) != 1 || s.Agents[0] != AgentRegulation {
		t.Fatalf("default strategy should run the regulation agent only, got %v", s.Agents)
	}
	for _, id := range append(InternalAgents, ExternalAgents...) {
		if s.RefinedQueries[id] != "my query" {
			t.Fatalf("refined query for %s should be the raw query, got %q", id, s.RefinedQueries[id])
		}
	}
}

func TestTruncateWords(t *testing.T) {
	got := truncateWords("alpha beta gamma delta", 12)
	if got != "alpha beta" {
		t.Fatalf("expected word-boundary cut, got %q", got)
	}
	if truncateWords("short", 100) != "short" {
		t.Fatalf("under-budget string should pass through")
	}
}
