package core

import (
	"math"
	"testing"
)

func TestAgentConfidenceEmpty(t *testing.T) {
	if got := AgentConfidence(ConfidenceFeatures{}); got != 0 {
		t.Fatalf("no documents should yield zero confidence, got %f", got)
	}
}

func TestAgentConfidenceEvidenceDampening(t *testing.T) {
	one := AgentConfidence(ConfidenceFeatures{RelevanceScores: []float64{0.9}, DistinctSources: 1})
	three := AgentConfidence(ConfidenceFeatures{RelevanceScores: []float64{0.9, 0.9, 0.9}, DistinctSources: 1})
	if one >= three {
		t.Fatalf("a single document (%f) should score below three (%f)", one, three)
	}
	// one document scales by 1/3
	if math.Abs(one-three/3) > 1e-9 {
		t.Fatalf("single-document dampening off: %f vs %f", one, three/3)
	}
}

func TestAgentConfidenceBonuses(t *testing.T) {
	base := ConfidenceFeatures{RelevanceScores: []float64{0.5, 0.5, 0.5}, DistinctSources: 1}
	plain := AgentConfidence(base)

	withMatch := base
	withMatch.DirectMatches = 1
	if got := AgentConfidence(withMatch); math.Abs(got-plain-0.15) > 1e-9 {
		t.Fatalf("direct-match bonus should add 0.15: %f vs %f", got, plain)
	}

	withRefs := base
	withRefs.HasCrossRefs = true
	if got := AgentConfidence(withRefs); math.Abs(got-plain-0.1) > 1e-9 {
		t.Fatalf("cross-reference bonus should add 0.1: %f vs %f", got, plain)
	}
}

func TestAgentConfidenceSourceBonusCapped(t *testing.T) {
	four := AgentConfidence(ConfidenceFeatures{RelevanceScores: []float64{0.5, 0.5, 0.5}, DistinctSources: 4})
	ten := AgentConfidence(ConfidenceFeatures{RelevanceScores: []float64{0.5, 0.5, 0.5}, DistinctSources: 10})
	if four != ten {
		t.Fatalf("source bonus should cap at 0.20: %f vs %f", four, ten)
	}
}

func TestAgentConfidenceCeiling(t *testing.T) {
	got := AgentConfidence(ConfidenceFeatures{
		RelevanceScores: []float64{1, 1, 1, 1, 1},
		DirectMatches:   3,
		DistinctSources: 10,
		HasCrossRefs:    true,
	})
	if got > 0.95 {
		t.Fatalf("confidence should cap at 0.95, got %f", got)
	}
}

func TestRankScoreWeights(t *testing.T) {
	got := RankScore(RankFeatures{Relevance: 1, Authority: 0, Quality: 0, Coherence: 0})
	if math.Abs(got-0.4) > 1e-9 {
		t.Fatalf("relevance weight should be 0.4, got %f", got)
	}
	got = RankScore(RankFeatures{Relevance: 1, Authority: 1, Quality: 1, Coherence: 1})
	if math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("weights should sum to 1, got %f", got)
	}
}

func TestAuthorityWeight(t *testing.T) {
	if AuthorityWeight("regulation") <= AuthorityWeight("web") {
		t.Fatalf("regulations should outrank web documents")
	}
	if AuthorityWeight("something_else") != 0.5 {
		t.Fatalf("unknown types should get 0.5, got %f", AuthorityWeight("something_else"))
	}
	if AuthorityWeight("Regulation") != AuthorityWeight("regulation") {
		t.Fatalf("type lookup should be case-insensitive")
	}
}

func TestExtractRankFeaturesMetadataOverrides(t *testing.T) {
	doc := Document{
		Type:           "web",
		RelevanceScore: 0.7,
		Metadata: map[string]interface{}{
			"quality_score":   0.9,
			"coherence_score": 0.8,
			"authority_score": 0.95,
		},
	}
	f := ExtractRankFeatures(doc)
	if f.Quality != 0.9 || f.Coherence != 0.8 || f.Authority != 0.95 {
		t.Fatalf("metadata signals not picked up: %+v", f)
	}

	plain := ExtractRankFeatures(Document{Type: "web", RelevanceScore: 0.7})
	if plain.Quality != 0.5 || plain.Coherence != 0.5 {
		t.Fatalf("unannotated documents should get neutral quality signals: %+v", plain)
	}
}

func TestShouldEscalateToTools(t *testing.T) {
	cases := []struct {
		name string
		f    EscalationFeatures
		want bool
	}{
		{"healthy", EscalationFeatures{DocumentCount: 5, AverageRelevance: 0.7}, false},
		{"too few documents", EscalationFeatures{DocumentCount: 2, AverageRelevance: 0.9}, true},
		{"weak relevance", EscalationFeatures{DocumentCount: 5, AverageRelevance: 0.4}, true},
		{"wants current data", EscalationFeatures{DocumentCount: 5, AverageRelevance: 0.7, WantsCurrentData: true}, true},
		{"empty", EscalationFeatures{}, true},
	}
	for _, tc := range cases {
		if got := ShouldEscalateToTools(tc.f); got != tc.want {
			t.Fatalf("%s: ShouldEscalateToTools = %t, want %t", tc.name, got, tc.want)
		}
	}
}

func TestEvaluateQualityGate(t *testing.T) {
	base := GateInput{
		DocumentCount:     5,
		AverageConfidence: 0.8,
		Complexity:        ComplexityModerate,
		MinDocuments:      3,
		Threshold:         0.6,
	}

	if check := EvaluateQualityGate(base); check.NeedsEnrichment {
		t.Fatalf("healthy result set should pass the gate: %+v", check)
	}

	lowDocs := base
	lowDocs.DocumentCount = 2
	if check := EvaluateQualityGate(lowDocs); !check.NeedsEnrichment || check.SufficientDocuments {
		t.Fatalf("too few documents should trigger enrichment: %+v", check)
	}

	lowConf := base
	lowConf.AverageConfidence = 0.4
	if check := EvaluateQualityGate(lowConf); !check.NeedsEnrichment || check.HighConfidence {
		t.Fatalf("low confidence should trigger enrichment: %+v", check)
	}

	expert := base
	expert.Complexity = ComplexityExpert
	if check := EvaluateQualityGate(expert); !check.NeedsEnrichment {
		t.Fatalf("expert queries always enrich: %+v", check)
	}

	current := base
	current.WantsCurrentData = true
	if check := EvaluateQualityGate(current); !check.NeedsEnrichment {
		t.Fatalf("current-data queries always enrich: %+v", check)
	}
}

func TestFinalConfidence(t *testing.T) {
	got := FinalConfidence(0.8, 0.6, 0.6)
	want := 0.8*0.6 + 0.6*0.4
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("blend off: got %f want %f", got, want)
	}

	if FinalConfidence(2.0, 2.0, 0.5) != 1 {
		t.Fatalf("final confidence should clamp to 1")
	}
	if FinalConfidence(-1, -1, 0.5) != 0 {
		t.Fatalf("final confidence should clamp to 0")
	}
	// out-of-range weight is clamped before blending
	if FinalConfidence(1, 0, 5) != 1 {
		t.Fatalf("agent weight above 1 should clamp to 1")
	}
}

func TestMaxDocumentsFor(t *testing.T) {
	if MaxDocumentsFor(ComplexitySimple) != 10 ||
		MaxDocumentsFor(ComplexityModerate) != 15 ||
		MaxDocumentsFor(ComplexityComplex) != 20 ||
		MaxDocumentsFor(ComplexityExpert) != 25 {
		t.Fatalf("complexity caps wrong")
	}
}
