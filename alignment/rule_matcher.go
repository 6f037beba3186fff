package alignment

import (
	"context"
	"sort"
	"strings"
)

// Matcher produces ranked clause candidates for a term.
type Matcher interface {
	Match(ctx context.Context, term *ExtractedTerm, clauses []AnalyzedClause) []Candidate
}

// ruleStrategy is one step of the rule cascade. A strategy wins for a clause
// when its score is strictly above its threshold.
type ruleStrategy struct {
	name      string
	method    MatchMethod
	threshold float64
	score     func(term *ExtractedTerm, clause *AnalyzedClause) float64
}

// RuleMatcher aligns terms to clauses with deterministic rules: titles,
// section numbers, keyword tables and the category map, tried in that order.
type RuleMatcher struct {
	rules      []compiledRule
	strategies []ruleStrategy
}

// NewRuleMatcher builds a matcher over the given keyword rules. A nil slice
// selects DefaultMatchRules.
func NewRuleMatcher(rules []MatchRule) *RuleMatcher {
	if rules == nil {
		rules = defaultMatchRules
	}
	sorted := cloneMatchRules(rules)
	sortRulesByPriority(sorted)
	m := &RuleMatcher{rules: compileMatchRules(sorted)}
	m.strategies = []ruleStrategy{
		{name: "title", method: MethodRuleTitle, threshold: 0.5, score: scoreByTitle},
		{name: "number", method: MethodRuleNumber, threshold: 0.5, score: scoreByNumber},
		{name: "keyword", method: MethodRuleKeyword, threshold: 0.5, score: m.scoreByKeyword},
		{name: "category", method: MethodRuleKeyword, threshold: 0.4, score: scoreByCategory},
	}
	return m
}

// Match returns one candidate per qualifying clause sorted by confidence.
func (m *RuleMatcher) Match(_ context.Context, term *ExtractedTerm, clauses []AnalyzedClause) []Candidate {
	if term == nil || len(clauses) == 0 {
		return nil
	}
	candidates := make([]Candidate, 0, len(clauses))
	for i := range clauses {
		clause := &clauses[i]
		if method, conf, ok := m.matchClause(term, clause); ok {
			candidates = append(candidates, Candidate{Clause: clause, Method: method, Confidence: conf})
		}
	}
	sortCandidates(candidates)
	return candidates
}

func (m *RuleMatcher) matchClause(term *ExtractedTerm, clause *AnalyzedClause) (MatchMethod, float64, bool) {
	for _, s := range m.strategies {
		if conf := s.score(term, clause); conf > s.threshold {
			return s.method, clamp01(conf), true
		}
	}
	return "", 0, false
}

// RulesForCategory lists the keyword rules that apply to a term category.
func (m *RuleMatcher) RulesForCategory(c TermCategory) []MatchRule {
	var out []MatchRule
	for _, cr := range m.rules {
		for _, tc := range cr.rule.TermCategories {
			if tc == c {
				out = append(out, cloneMatchRule(cr.rule))
				break
			}
		}
	}
	return out
}

func scoreByTitle(term *ExtractedTerm, clause *AnalyzedClause) float64 {
	if term.Title == "" || clause.Title == "" {
		return 0
	}
	tt := strings.ToLower(term.Title)
	ct := strings.ToLower(clause.Title)
	switch {
	case tt == ct:
		return 0.95
	case strings.Contains(ct, tt):
		return 0.85
	case strings.Contains(tt, ct):
		return 0.80
	}
	j := jaccard(titleWords(tt), titleWords(ct))
	if j > 0.5 {
		return 0.6 + 0.3*j
	}
	return 0
}

func scoreByNumber(term *ExtractedTerm, clause *AnalyzedClause) float64 {
	termNumbers := extractSectionNumbers(term.RawText)
	if len(termNumbers) == 0 {
		return 0
	}
	clauseNumbers := extractSectionNumbers(clause.SectionID)
	if len(clauseNumbers) == 0 {
		return 0
	}
	return sectionNumberScore(termNumbers, clauseNumbers)
}

func (m *RuleMatcher) scoreByKeyword(term *ExtractedTerm, clause *AnalyzedClause) float64 {
	lower := normalizeKey(clause.FullText)
	best := 0.0
	for _, r := range m.rules {
		if !r.appliesTo(term.Category, clause.Category) {
			continue
		}
		if conf := r.score(lower, clause.FullText); conf > best {
			best = conf
		}
	}
	return best
}

func scoreByCategory(term *ExtractedTerm, clause *AnalyzedClause) float64 {
	if !clauseCategoryExpected(term.Category, clause.Category) {
		return 0
	}
	raw := strings.ToLower(term.RawText)
	conf := 0.6
	for _, kw := range clause.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(raw, kw) {
			conf += 0.05
		}
	}
	if conf > 0.8 {
		conf = 0.8
	}
	return conf
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
