package core

import (
	"log"
	"regexp"
	"strings"
)

// Analyzer classifies a raw query into intent, entities, keywords and a
// complexity tier, and builds the retrieval strategy. All of its work is
// pure string analysis; failures never abort a request (the orchestrator
// substitutes DefaultStrategy).
type Analyzer struct {
	logger      *log.Logger
	maxQueryLen int
	maxKeywords int
}

// NewAnalyzer creates a query analyzer. maxQueryLen bounds refined queries
// to the external search provider's limit.
func NewAnalyzer(maxQueryLen int) *Analyzer {
	if maxQueryLen <= 0 {
		maxQueryLen = 390
	}
	return &Analyzer{
		logger:      log.New(log.Writer(), "[ANALYZER] ", log.LstdFlags),
		maxQueryLen: maxQueryLen,
		maxKeywords: 10,
	}
}

var (
	sectionRefPattern = regexp.MustCompile(`(?i)(?:section|§)\s*(\d+(?:\.\d+)?(?:\([a-z]\))?(?:\(\d+\))?)`)
	regRefPattern     = regexp.MustCompile(`(?i)(?:reg|regulation)\s*(\d+(?:\.\d+)?(?:-\d+)?)`)
	uscRefPattern     = regexp.MustCompile(`(?i)26\s*(?:USC|U\.S\.C\.)\s*§?\s*(\d+)`)
	wordPattern       = regexp.MustCompile(`\b[\w-]+\b`)
	unsafeCharPattern = regexp.MustCompile(`[^\w\s\-().,"']`)
)

// canonicalReplacements normalizes verbose citation forms into the short
// forms the stores index under.
var canonicalReplacements = []struct{ from, to string }{
	{"Tax Cuts and Jobs Act", "TCJA"},
	{"Net Operating Loss", "NOL"},
	{"Private Letter Ruling", "PLR"},
	{"Revenue Ruling", "Rev Rul"},
	{"Revenue Procedure", "Rev Proc"},
}

// domainVocabulary is the curated keyword set. Matching is case-insensitive
// whole-word.
var domainVocabulary = []string{
	"section", "irc", "irs", "treasury", "regulation", "revenue", "plr",
	"merger", "acquisition", "reorganization", "spin-off", "split-off",
	"election", "carryforward", "nol", "gilti", "consolidated",
	"precedent", "ruling", "procedure", "guidance", "interpretation",
	"deduction", "credit", "withholding", "basis", "depreciation",
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "with": {}, "that": {},
	"this": {}, "from": {}, "what": {}, "when": {}, "how": {}, "why": {},
	"does": {}, "would": {}, "should": {}, "could": {}, "about": {},
	"their": {}, "there": {}, "which": {}, "into": {}, "under": {},
}

// roleVocabulary is appended to each agent's refined query so every agent
// searches in its own register.
var roleVocabulary = map[AgentID]string{
	AgentRegulation: "section code regulation IRC treasury",
	AgentCaseLaw:    "revenue ruling case decision court taxpayer",
	AgentPrecedent:  "deal transaction merger acquisition election precedent",
	AgentExpert:     "analysis guidance interpretation technical advice",
	AgentWebSearch:  "tax current guidance",
	AgentAuthority:  "rate deadline form publication",
}

// intentAgentTable maps intent type to the base agent set, in priority
// order. The first entry is the tier's default agent.
var intentAgentTable = map[IntentType][]AgentID{
	IntentRegulationLookup: {AgentRegulation, AgentCaseLaw},
	IntentCaseLaw:          {AgentCaseLaw, AgentRegulation},
	IntentPrecedentSearch:  {AgentPrecedent, AgentCaseLaw},
	IntentResearch:         {AgentRegulation, AgentCaseLaw},
}

// Analyze runs the full analysis: normalization, intent, complexity and
// strategy construction.
func (a *Analyzer) Analyze(query string) (Intent, QueryComplexity, Strategy) {
	normalized := NormalizeQuery(query)

	intent := a.extractIntent(normalized)
	complexity := a.scoreComplexity(normalized, intent)
	strategy := a.buildStrategy(normalized, intent, complexity)

	a.logger.Printf("analyzed query: intent=%s complexity=%s agents=%v entities=%d keywords=%d",
		intent.Type, complexity, strategy.Agents, len(intent.Entities), len(intent.Keywords))

	return intent, complexity, strategy
}

// NormalizeQuery cleans whitespace, strips characters search providers
// choke on, and applies canonical citation replacements.
func NormalizeQuery(query string) string {
	q := strings.Join(strings.Fields(query), " ")
	q = unsafeCharPattern.ReplaceAllString(q, " ")
	for _, r := range canonicalReplacements {
		q = replaceInsensitive(q, r.from, r.to)
	}
	return strings.TrimSpace(strings.Join(strings.Fields(q), " "))
}

func replaceInsensitive(s, from, to string) string {
	lower := strings.ToLower(s)
	lowerFrom := strings.ToLower(from)
	var b strings.Builder
	for {
		i := strings.Index(lower, lowerFrom)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(to)
		s = s[i+len(from):]
		lower = lower[i+len(lowerFrom):]
	}
}

func (a *Analyzer) extractIntent(query string) Intent {
	return Intent{
		Type:         classifyIntentType(query),
		QuestionType: classifyQuestionType(query),
		Entities:     ExtractEntities(query),
		Keywords:     a.extractKeywords(query),
	}
}

// ExtractEntities scans for code citations (section numbers, regulation
// references, USC references). The result set is deduplicated and not
// order-sensitive.
func ExtractEntities(query string) []string {
	seen := make(map[string]struct{})
	var entities []string
	for _, pattern := range []*regexp.Regexp{sectionRefPattern, regRefPattern, uscRefPattern} {
		for _, m := range pattern.FindAllStringSubmatch(query, -1) {
			ref := strings.ToLower(m[1])
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			entities = append(entities, ref)
		}
	}
	return entities
}

func (a *Analyzer) extractKeywords(query string) []string {
	words := wordPattern.FindAllString(strings.ToLower(query), -1)
	vocab := make(map[string]struct{}, len(domainVocabulary))
	for _, t := range domainVocabulary {
		vocab[t] = struct{}{}
	}

	seen := make(map[string]struct{})
	var keywords []string
	add := func(w string) {
		if len(keywords) >= a.maxKeywords {
			return
		}
		if _, ok := seen[w]; ok {
			return
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
	}

	// curated vocabulary first, then long non-stopwords
	for _, w := range words {
		if _, ok := vocab[w]; ok {
			add(w)
		}
	}
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if len(w) > 8 {
			add(w)
		}
	}
	return keywords
}

func classifyIntentType(query string) IntentType {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "section") || strings.Contains(q, "regulation") || strings.Contains(q, "reg "):
		return IntentRegulationLookup
	case strings.Contains(q, "case") || strings.Contains(q, "ruling") || strings.Contains(q, "decision"):
		return IntentCaseLaw
	case strings.Contains(q, "precedent") || strings.Contains(q, "similar") || strings.Contains(q, "previous"):
		return IntentPrecedentSearch
	default:
		return IntentResearch
	}
}

func classifyQuestionType(query string) QuestionType {
	q := strings.ToLower(query)
	switch {
	case strings.HasPrefix(q, "how") || strings.Contains(q, "procedure") || strings.Contains(q, "steps"):
		return QuestionProcedural
	case strings.Contains(q, "if ") || strings.Contains(q, "suppose") || strings.Contains(q, "hypothetical"):
		return QuestionHypothetical
	case strings.Contains(q, "why") || strings.Contains(q, "analyze") || strings.Contains(q, "compare") || strings.Contains(q, "implications"):
		return QuestionAnalytical
	default:
		return QuestionFactual
	}
}

// scoreComplexity maps query shape to a tier with an additive point system.
// More entities, keywords or length can only raise the score, never lower
// it, so the tier is monotonic in each factor.
func (a *Analyzer) scoreComplexity(query string, intent Intent) QueryComplexity {
	score := 0

	entityCount := len(intent.Entities)
	if entityCount > 6 {
		entityCount = 6
	}
	score += entityCount * 2

	keywordCount := len(intent.Keywords)
	if keywordCount > 10 {
		keywordCount = 10
	}
	score += keywordCount

	words := len(strings.Fields(query))
	switch {
	case words > 50:
		score += 6
	case words > 25:
		score += 4
	case words >= 10:
		score += 2
	}

	switch intent.QuestionType {
	case QuestionAnalytical, QuestionHypothetical:
		score += 2
	}
	switch intent.Type {
	case IntentPrecedentSearch:
		score += 2
	case IntentCaseLaw:
		score += 1
	}

	switch {
	case score <= 4:
		return ComplexitySimple
	case score <= 10:
		return ComplexityModerate
	case score <= 16:
		return ComplexityComplex
	default:
		return ComplexityExpert
	}
}

func (a *Analyzer) buildStrategy(query string, intent Intent, complexity QueryComplexity) Strategy {
	base := intentAgentTable[intent.Type]
	if len(base) == 0 {
		base = intentAgentTable[IntentResearch]
	}

	var agents []AgentID
	if complexity == ComplexitySimple {
		// simple queries run the intent's primary agent only
		agents = []AgentID{base[0]}
	} else {
		agents = append(agents, base...)
		if !containsAgent(agents, AgentRegulation) {
			agents = append(agents, AgentRegulation)
		}
		if complexity == ComplexityComplex || complexity == ComplexityExpert {
			for _, id := range []AgentID{AgentPrecedent, AgentExpert} {
				if !containsAgent(agents, id) {
					agents = append(agents, id)
				}
			}
		}
	}

	refined := make(map[AgentID]string, len(agents)+len(ExternalAgents))
	for _, id := range agents {
		refined[id] = a.RefineQuery(query, intent, id)
	}
	for _, id := range ExternalAgents {
		refined[id] = a.RefineQuery(query, intent, id)
	}

	return Strategy{
		Agents:         agents,
		RefinedQueries: refined,
	}
}

// RefineQuery builds the agent-specific search query: the normalized query
// plus role vocabulary, entities and keywords, bounded by the provider's
// query-length limit. It is pure and never exceeds the budget.
func (a *Analyzer) RefineQuery(query string, intent Intent, agent AgentID) string {
	parts := []string{query}
	if vocab := roleVocabulary[agent]; vocab != "" {
		parts = append(parts, vocab)
	}
	for i, e := range intent.Entities {
		if i >= 3 {
			break
		}
		parts = append(parts, "section "+e)
	}
	lowerQuery := strings.ToLower(strings.Join(parts, " "))
	for _, k := range intent.Keywords {
		if !strings.Contains(lowerQuery, k) {
			parts = append(parts, k)
		}
	}
	return truncateWords(strings.Join(parts, " "), a.maxQueryLen)
}

// truncateWords cuts at a word boundary so a refined query never exceeds
// the byte budget.
func truncateWords(s string, max int) string {
	if len(s) <= max {
		return s
	}
	words := strings.Fields(s)
	var b strings.Builder
	for _, w := range words {
		next := b.Len() + len(w)
		if b.Len() > 0 {
			next++
		}
		if next > max {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String()
}

// DefaultStrategy is the fallback when analysis fails: the original query
// goes to a single default agent unchanged.
func DefaultStrategy(query string) Strategy {
	refined := make(map[AgentID]string, len(InternalAgents)+len(ExternalAgents))
	for _, id := range InternalAgents {
		refined[id] = query
	}
	for _, id := range ExternalAgents {
		refined[id] = query
	}
	return Strategy{
		Agents:         []AgentID{AgentRegulation},
		RefinedQueries: refined,
		Fallback:       true,
	}
}

var currentDataTerms = []string{"current", "recent", "latest", "new ", "2024", "2025", "2026", "this year"}

// QueryWantsCurrentData reports whether the query lexically asks for fresh
// or time-sensitive information.
func QueryWantsCurrentData(query string) bool {
	q := strings.ToLower(query)
	for _, t := range currentDataTerms {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

var authorityDataTerms = []string{"rate", "deadline", "form", "publication", "due date", "filing"}

// queryWantsAuthorityData reports whether the query asks for rates,
// deadlines, forms or publications served by the authority tool.
func queryWantsAuthorityData(query string) bool {
	q := strings.ToLower(query)
	for _, t := range authorityDataTerms {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

// SelectExternalAgents picks the enrichment agent set from lexical cues,
// the complexity tier and the quality-gate outcome.
func SelectExternalAgents(rawQuery string, complexity QueryComplexity, check QualityCheck) []AgentID {
	var selected []AgentID
	if QueryWantsCurrentData(rawQuery) {
		selected = append(selected, AgentWebSearch)
	}
	if queryWantsAuthorityData(rawQuery) {
		selected = append(selected, AgentAuthority)
	}
	if complexity == ComplexityComplex || complexity == ComplexityExpert {
		if !containsAgent(selected, AgentWebSearch) {
			selected = append(selected, AgentWebSearch)
		}
	}
	if !check.SufficientDocuments && !containsAgent(selected, AgentWebSearch) {
		selected = append(selected, AgentWebSearch)
	}
	return selected
}

func containsAgent(list []AgentID, id AgentID) bool {
	for _, a := range list {
		if a == id {
			return true
		}
	}
	return false
}
