package alignment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MatchRule is a keyword rule linking term categories to clause categories.
// Higher Priority rules are listed first.
type MatchRule struct {
	Name             string           `yaml:"name" json:"name"`
	TermCategories   []TermCategory   `yaml:"term_categories" json:"term_categories"`
	ClauseCategories []ClauseCategory `yaml:"clause_categories" json:"clause_categories"`
	KeywordsEN       []string         `yaml:"keywords_en" json:"keywords_en"`
	KeywordsZH       []string         `yaml:"keywords_zh" json:"keywords_zh"`
	Priority         int              `yaml:"priority" json:"priority"`
	BaseConfidence   float64          `yaml:"base_confidence" json:"base_confidence"`
}

var defaultMatchRules = []MatchRule{
	{
		Name:             "investment_amount_to_terms",
		TermCategories:   []TermCategory{TermInvestmentAmount},
		ClauseCategories: []ClauseCategory{ClauseInvestmentTerms},
		KeywordsEN:       []string{"investment", "amount", "subscription", "purchase", "capital", "funding", "consideration"},
		KeywordsZH:       []string{"投资", "金额", "认购", "出资", "对价"},
		Priority:         10,
		BaseConfidence:   0.85,
	},
	{
		Name:             "valuation_to_terms",
		TermCategories:   []TermCategory{TermValuation},
		ClauseCategories: []ClauseCategory{ClauseInvestmentTerms},
		KeywordsEN:       []string{"valuation", "pre-money", "post-money", "enterprise value"},
		KeywordsZH:       []string{"估值", "投前", "投后", "企业价值"},
		Priority:         10,
		BaseConfidence:   0.85,
	},
	{
		Name:             "pricing_to_terms",
		TermCategories:   []TermCategory{TermPricing},
		ClauseCategories: []ClauseCategory{ClauseInvestmentTerms},
		KeywordsEN:       []string{"price", "share price", "conversion price", "issue price"},
		KeywordsZH:       []string{"价格", "股价", "转换价格", "发行价格"},
		Priority:         10,
		BaseConfidence:   0.85,
	},
	{
		Name:             "board_seats_to_governance",
		TermCategories:   []TermCategory{TermBoardSeats},
		ClauseCategories: []ClauseCategory{ClauseGovernance},
		KeywordsEN:       []string{"board", "director", "seat", "composition", "appointment"},
		KeywordsZH:       []string{"董事", "席位", "任命", "组成"},
		Priority:         9,
		BaseConfidence:   0.85,
	},
	{
		Name:             "voting_rights_to_governance",
		TermCategories:   []TermCategory{TermVotingRights},
		ClauseCategories: []ClauseCategory{ClauseGovernance},
		KeywordsEN:       []string{"voting", "vote", "rights", "shareholder", "protective"},
		KeywordsZH:       []string{"投票", "表决", "权利", "股东", "保护"},
		Priority:         9,
		BaseConfidence:   0.85,
	},
	{
		Name:             "liquidation_pref_to_liquidation",
		TermCategories:   []TermCategory{TermLiquidationPref},
		ClauseCategories: []ClauseCategory{ClauseLiquidation},
		KeywordsEN:       []string{"liquidation", "preference", "distribution", "proceeds"},
		KeywordsZH:       []string{"清算", "优先", "分配", "收益"},
		Priority:         9,
		BaseConfidence:   0.90,
	},
	{
		Name:             "anti_dilution_to_anti_dilution",
		TermCategories:   []TermCategory{TermAntiDilution},
		ClauseCategories: []ClauseCategory{ClauseAntiDilution},
		KeywordsEN:       []string{"anti-dilution", "dilution", "adjustment", "ratchet", "weighted"},
		KeywordsZH:       []string{"反稀释", "稀释", "调整", "棘轮", "加权"},
		Priority:         9,
		BaseConfidence:   0.90,
	},
	{
		Name:             "info_rights_to_info_rights",
		TermCategories:   []TermCategory{TermInformationRights},
		ClauseCategories: []ClauseCategory{ClauseInformationRights},
		KeywordsEN:       []string{"information", "reporting", "financial", "audit", "inspection"},
		KeywordsZH:       []string{"信息", "报告", "财务", "审计", "检查"},
		Priority:         8,
		BaseConfidence:   0.85,
	},
	{
		Name:             "closing_conditions_to_closing",
		TermCategories:   []TermCategory{TermClosingConditions},
		ClauseCategories: []ClauseCategory{ClauseClosing},
		KeywordsEN:       []string{"closing", "completion", "conditions", "deliverables"},
		KeywordsZH:       []string{"交割", "完成", "条件", "交付"},
		Priority:         8,
		BaseConfidence:   0.85,
	},
	{
		Name:             "conditions_precedent_to_closing",
		TermCategories:   []TermCategory{TermConditionsPrecedent},
		ClauseCategories: []ClauseCategory{ClauseClosing},
		KeywordsEN:       []string{"conditions precedent", "preconditions", "prior conditions"},
		KeywordsZH:       []string{"先决条件", "前提条件"},
		Priority:         8,
		BaseConfidence:   0.85,
	},
}

// DefaultMatchRules returns a copy of the built-in keyword rules.
func DefaultMatchRules() []MatchRule {
	return cloneMatchRules(defaultMatchRules)
}

// Validate checks categories, confidence range and keyword presence.
func (r MatchRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("rule name is required")
	}
	if len(r.TermCategories) == 0 || len(r.ClauseCategories) == 0 {
		return fmt.Errorf("rule %q: term and clause categories are required", r.Name)
	}
	for _, c := range r.TermCategories {
		if _, err := ParseTermCategory(string(c)); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	for _, c := range r.ClauseCategories {
		if _, err := ParseClauseCategory(string(c)); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	if r.BaseConfidence < 0 || r.BaseConfidence > 1 {
		return fmt.Errorf("rule %q: base confidence %v: %w", r.Name, r.BaseConfidence, ErrInvalidThreshold)
	}
	if len(r.KeywordsEN)+len(r.KeywordsZH) == 0 {
		return fmt.Errorf("rule %q: at least one keyword is required", r.Name)
	}
	return nil
}

type ruleFile struct {
	Rules []MatchRule `yaml:"rules"`
}

// LoadMatchRules reads rule overrides from a YAML file and merges them over
// the defaults by rule name. An empty path yields the defaults.
func LoadMatchRules(path string) ([]MatchRule, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return DefaultMatchRules(), nil
	}
	data, err := os.ReadFile(filepath.Clean(clean))
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	for _, r := range file.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return mergeMatchRules(defaultMatchRules, file.Rules), nil
}

// ExportMatchRules writes the default rule table to path so it can be edited.
func ExportMatchRules(path string) error {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return errors.New("rules path is required")
	}
	clean = filepath.Clean(clean)
	if dir := filepath.Dir(clean); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create rules dir: %w", err)
		}
	}
	data, err := yaml.Marshal(ruleFile{Rules: DefaultMatchRules()})
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if err := os.WriteFile(clean, data, 0o644); err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	return nil
}

func mergeMatchRules(base, overrides []MatchRule) []MatchRule {
	merged := cloneMatchRules(base)
	index := make(map[string]int, len(merged))
	for i, r := range merged {
		index[r.Name] = i
	}
	for _, r := range overrides {
		if i, ok := index[r.Name]; ok {
			merged[i] = cloneMatchRule(r)
			continue
		}
		index[r.Name] = len(merged)
		merged = append(merged, cloneMatchRule(r))
	}
	sortRulesByPriority(merged)
	return merged
}

func sortRulesByPriority(rules []MatchRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}

func cloneMatchRules(src []MatchRule) []MatchRule {
	out := make([]MatchRule, len(src))
	for i, r := range src {
		out[i] = cloneMatchRule(r)
	}
	return out
}

func cloneMatchRule(r MatchRule) MatchRule {
	r.TermCategories = append([]TermCategory(nil), r.TermCategories...)
	r.ClauseCategories = append([]ClauseCategory(nil), r.ClauseCategories...)
	r.KeywordsEN = append([]string(nil), r.KeywordsEN...)
	r.KeywordsZH = append([]string(nil), r.KeywordsZH...)
	return r
}

// compiledRule holds a rule with its keywords normalised for matching.
type compiledRule struct {
	rule       MatchRule
	keywordsEN []string
	keywordsZH []string
	total      int
}

func compileMatchRules(rules []MatchRule) []compiledRule {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		compiled = append(compiled, compiledRule{
			rule:       cloneMatchRule(r),
			keywordsEN: normalizeKeywordList(r.KeywordsEN),
			keywordsZH: r.KeywordsZH,
			total:      len(r.KeywordsEN) + len(r.KeywordsZH),
		})
	}
	return compiled
}

func (c compiledRule) appliesTo(term TermCategory, clause ClauseCategory) bool {
	termOK := false
	for _, tc := range c.rule.TermCategories {
		if tc == term {
			termOK = true
			break
		}
	}
	if !termOK {
		return false
	}
	for _, cc := range c.rule.ClauseCategories {
		if cc == clause {
			return true
		}
	}
	return false
}

// score returns base*(0.5+0.5*hits/total), or 0 when nothing hits.
func (c compiledRule) score(lowerText, rawText string) float64 {
	if c.total == 0 {
		return 0
	}
	hits := countKeywordHits(lowerText, c.keywordsEN)
	for _, kw := range c.keywordsZH {
		if kw != "" && strings.Contains(rawText, kw) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	ratio := float64(hits) / float64(c.total)
	return c.rule.BaseConfidence * (0.5 + 0.5*ratio)
}
