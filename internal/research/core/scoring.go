package core

import "strings"

// Scoring is kept as pure functions over explicit feature structs so the
// policy can be unit-tested without agents or stores.

// ConfidenceFeatures describes one agent's result set for confidence scoring.
type ConfidenceFeatures struct {
	RelevanceScores []float64
	DirectMatches   int
	DistinctSources int
	HasCrossRefs    bool
}

// AgentConfidence converts a result-set shape into the agent's self-assessed
// confidence. The average relevance is dampened by an evidence factor so one
// high-scoring document never implies high confidence on its own.
func AgentConfidence(f ConfidenceFeatures) float64 {
	if len(f.RelevanceScores) == 0 {
		return 0.0
	}

	var sum float64
	for _, s := range f.RelevanceScores {
		sum += s
	}
	avg := sum / float64(len(f.RelevanceScores))

	if f.DirectMatches > 0 {
		avg += 0.15
	}

	sourceBonus := float64(f.DistinctSources) * 0.05
	if sourceBonus > 0.20 {
		sourceBonus = 0.20
	}

	crossRefBonus := 0.0
	if f.HasCrossRefs {
		crossRefBonus = 0.1
	}

	// evidence dampening: fewer than three documents scales confidence down
	evidenceFactor := float64(len(f.RelevanceScores)) / 3.0
	if evidenceFactor > 1.0 {
		evidenceFactor = 1.0
	}

	score := avg + sourceBonus + crossRefBonus
	if score > 0.95 {
		score = 0.95
	}
	return score * evidenceFactor
}

// RankFeatures is the feature vector for document ranking. All signals are
// in [0,1] and apply identically regardless of document source.
type RankFeatures struct {
	Relevance float64
	Authority float64
	Quality   float64
	Coherence float64
}

// Ranking weights. Tunable policy, but they must sum to 1.
const (
	weightRelevance = 0.4
	weightAuthority = 0.3
	weightQuality   = 0.2
	weightCoherence = 0.1
)

// RankScore collapses the feature vector into a single score.
func RankScore(f RankFeatures) float64 {
	return f.Relevance*weightRelevance +
		f.Authority*weightAuthority +
		f.Quality*weightQuality +
		f.Coherence*weightCoherence
}

// authorityWeights maps document type to an authority signal. Unknown types
// get a neutral 0.5.
var authorityWeights = map[string]float64{
	"regulation":            0.95,
	"federal_register":      0.9,
	"revenue_ruling":        0.9,
	"authority_ruling":      0.9,
	"case_law":              0.85,
	"case":                  0.85,
	"private_letter_ruling": 0.8,
	"precedent":             0.75,
	"expert_analysis":       0.7,
	"knowledge_base":        0.65,
	"web":                   0.6,
	"web_search":            0.6,
}

// AuthorityWeight returns the authority signal for a document type.
func AuthorityWeight(docType string) float64 {
	if w, ok := authorityWeights[strings.ToLower(docType)]; ok {
		return w
	}
	return 0.5
}

// ExtractRankFeatures builds the rank feature vector for a document.
// Quality and coherence fall back to neutral values when no enhancement
// pass has annotated them.
func ExtractRankFeatures(doc Document) RankFeatures {
	f := RankFeatures{
		Relevance: doc.RelevanceScore,
		Authority: AuthorityWeight(doc.Type),
		Quality:   0.5,
		Coherence: 0.5,
	}
	if doc.Metadata != nil {
		if q, ok := doc.Metadata["quality_score"].(float64); ok {
			f.Quality = q
		}
		if c, ok := doc.Metadata["coherence_score"].(float64); ok {
			f.Coherence = c
		}
		if a, ok := doc.Metadata["authority_score"].(float64); ok {
			f.Authority = a
		}
	}
	return f
}

// EscalationFeatures describes an internal result set when an agent decides
// whether to supplement it with external tools.
type EscalationFeatures struct {
	DocumentCount    int
	AverageRelevance float64
	WantsCurrentData bool
}

const (
	escalationMinDocuments   = 3
	escalationRelevanceFloor = 0.5
)

// ShouldEscalateToTools reports whether an internal result set is poor
// enough to warrant calling external tools: too few documents, weak average
// relevance, or a query asking for data the internal stores cannot hold.
func ShouldEscalateToTools(f EscalationFeatures) bool {
	if f.WantsCurrentData {
		return true
	}
	if f.DocumentCount < escalationMinDocuments {
		return true
	}
	return f.AverageRelevance < escalationRelevanceFloor
}

// GateInput holds everything the quality gate decides on.
type GateInput struct {
	DocumentCount     int
	AverageConfidence float64
	Complexity        QueryComplexity
	WantsCurrentData  bool
	MinDocuments      int
	Threshold         float64
}

// EvaluateQualityGate decides whether external enrichment is needed. It is
// deterministic given the same inputs: insufficient documents, low average
// confidence, expert-tier queries and queries asking for current data all
// trigger enrichment.
func EvaluateQualityGate(in GateInput) QualityCheck {
	sufficient := in.DocumentCount >= in.MinDocuments
	highConfidence := in.AverageConfidence >= in.Threshold

	needs := !sufficient || !highConfidence
	if in.Complexity == ComplexityExpert {
		needs = true
	}
	if in.WantsCurrentData {
		needs = true
	}

	return QualityCheck{
		DocumentCount:       in.DocumentCount,
		AverageConfidence:   in.AverageConfidence,
		SufficientDocuments: sufficient,
		HighConfidence:      highConfidence,
		NeedsEnrichment:     needs,
	}
}

// MaxDocumentsFor caps the final ranked set per complexity tier. The caps
// increase monotonically with the tier.
func MaxDocumentsFor(c QueryComplexity) int {
	switch c {
	case ComplexitySimple:
		return 10
	case ComplexityModerate:
		return 15
	case ComplexityComplex:
		return 20
	case ComplexityExpert:
		return 25
	default:
		return 15
	}
}

// FinalConfidence blends agent consensus with the synthesis call's
// self-estimate. agentWeight is the consensus share; the rest goes to the
// model's own estimate.
func FinalConfidence(agentConsensus, llmConfidence, agentWeight float64) float64 {
	if agentWeight < 0 {
		agentWeight = 0
	}
	if agentWeight > 1 {
		agentWeight = 1
	}
	blended := agentConsensus*agentWeight + llmConfidence*(1-agentWeight)
	if blended < 0 {
		return 0
	}
	if blended > 1 {
		return 1
	}
	return blended
}
