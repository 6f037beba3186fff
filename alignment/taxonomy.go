package alignment

import (
	"fmt"
	"strings"
)

// TermCategory classifies a term extracted from a term sheet.
type TermCategory string

const (
	TermInvestmentAmount    TermCategory = "investment_amount"
	TermValuation           TermCategory = "valuation"
	TermPricing             TermCategory = "pricing"
	TermClosingConditions   TermCategory = "closing_conditions"
	TermConditionsPrecedent TermCategory = "conditions_precedent"
	TermBoardSeats          TermCategory = "board_seats"
	TermVotingRights        TermCategory = "voting_rights"
	TermLiquidationPref     TermCategory = "liquidation_preference"
	TermAntiDilution        TermCategory = "anti_dilution"
	TermInformationRights   TermCategory = "information_rights"
	TermOther               TermCategory = "other"
)

// ClauseCategory classifies a clause of a contract template.
type ClauseCategory string

const (
	ClauseDefinitions       ClauseCategory = "definitions"
	ClauseInvestmentTerms   ClauseCategory = "investment_terms"
	ClauseGovernance        ClauseCategory = "governance"
	ClauseLiquidation       ClauseCategory = "liquidation"
	ClauseAntiDilution      ClauseCategory = "anti_dilution"
	ClauseInformationRights ClauseCategory = "information_rights"
	ClauseRepresentations   ClauseCategory = "representations"
	ClauseCovenants         ClauseCategory = "covenants"
	ClauseClosing           ClauseCategory = "closing"
	ClauseMiscellaneous     ClauseCategory = "miscellaneous"
)

// FillableType is the value type a fillable segment expects.
type FillableType string

const (
	FillText       FillableType = "text"
	FillNumber     FillableType = "number"
	FillDate       FillableType = "date"
	FillPercentage FillableType = "percentage"
	FillCurrency   FillableType = "currency"
	FillList       FillableType = "list"
)

// MatchMethod records which strategy produced a match.
type MatchMethod string

const (
	MethodRuleTitle      MatchMethod = "rule_title"
	MethodRuleNumber     MatchMethod = "rule_number"
	MethodRuleKeyword    MatchMethod = "rule_keyword"
	MethodSemantic       MatchMethod = "semantic"
	MethodTemplateMemory MatchMethod = "template_memory"
)

// ActionType tells the contract generator what to do with a matched slot.
type ActionType string

const (
	ActionInsert   ActionType = "insert"
	ActionOverride ActionType = "override"
	ActionSkip     ActionType = "skip"
)

var (
	termCategories = []TermCategory{
		TermInvestmentAmount, TermValuation, TermPricing, TermClosingConditions,
		TermConditionsPrecedent, TermBoardSeats, TermVotingRights, TermLiquidationPref,
		TermAntiDilution, TermInformationRights, TermOther,
	}
	clauseCategories = []ClauseCategory{
		ClauseDefinitions, ClauseInvestmentTerms, ClauseGovernance, ClauseLiquidation,
		ClauseAntiDilution, ClauseInformationRights, ClauseRepresentations, ClauseCovenants,
		ClauseClosing, ClauseMiscellaneous,
	}
	fillableTypes = []FillableType{FillText, FillNumber, FillDate, FillPercentage, FillCurrency, FillList}
	matchMethods  = []MatchMethod{MethodRuleTitle, MethodRuleNumber, MethodRuleKeyword, MethodSemantic, MethodTemplateMemory}
	actionTypes   = []ActionType{ActionInsert, ActionOverride, ActionSkip}
)

// TermCategories lists every term category in declaration order.
func TermCategories() []TermCategory {
	return append([]TermCategory(nil), termCategories...)
}

// ClauseCategories lists every clause category in declaration order.
func ClauseCategories() []ClauseCategory {
	return append([]ClauseCategory(nil), clauseCategories...)
}

func parseEnum[T ~string](kind, raw string, allowed []T) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	for _, a := range allowed {
		if a == v {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: %s %q", ErrUnknownCategory, kind, raw)
}

// ParseTermCategory validates raw against the term taxonomy.
func ParseTermCategory(raw string) (TermCategory, error) {
	return parseEnum("term category", raw, termCategories)
}

// ParseClauseCategory validates raw against the clause taxonomy.
func ParseClauseCategory(raw string) (ClauseCategory, error) {
	return parseEnum("clause category", raw, clauseCategories)
}

// ParseFillableType validates raw against the fillable value types.
func ParseFillableType(raw string) (FillableType, error) {
	return parseEnum("fillable type", raw, fillableTypes)
}

// ParseMatchMethod validates raw against the match methods.
func ParseMatchMethod(raw string) (MatchMethod, error) {
	return parseEnum("match method", raw, matchMethods)
}

// ParseActionType validates raw against the action types.
func ParseActionType(raw string) (ActionType, error) {
	return parseEnum("action", raw, actionTypes)
}

func (c *TermCategory) UnmarshalText(b []byte) error {
	v, err := ParseTermCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (c *ClauseCategory) UnmarshalText(b []byte) error {
	v, err := ParseClauseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (t *FillableType) UnmarshalText(b []byte) error {
	v, err := ParseFillableType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (m *MatchMethod) UnmarshalText(b []byte) error {
	v, err := ParseMatchMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (a *ActionType) UnmarshalText(b []byte) error {
	v, err := ParseActionType(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

var termToClauseCategories = map[TermCategory][]ClauseCategory{
	TermInvestmentAmount:    {ClauseInvestmentTerms},
	TermValuation:           {ClauseInvestmentTerms},
	TermPricing:             {ClauseInvestmentTerms},
	TermClosingConditions:   {ClauseClosing},
	TermConditionsPrecedent: {ClauseClosing},
	TermBoardSeats:          {ClauseGovernance},
	TermVotingRights:        {ClauseGovernance},
	TermLiquidationPref:     {ClauseLiquidation},
	TermAntiDilution:        {ClauseAntiDilution},
	TermInformationRights:   {ClauseInformationRights},
	TermOther:               {ClauseMiscellaneous},
}

var categoryFillableTypes = map[TermCategory][]FillableType{
	TermInvestmentAmount:    {FillCurrency, FillNumber},
	TermValuation:           {FillCurrency, FillNumber},
	TermPricing:             {FillCurrency, FillNumber},
	TermBoardSeats:          {FillNumber, FillText},
	TermVotingRights:        {FillPercentage, FillText},
	TermLiquidationPref:     {FillNumber, FillPercentage},
	TermAntiDilution:        {FillText},
	TermInformationRights:   {FillText},
	TermClosingConditions:   {FillText, FillDate},
	TermConditionsPrecedent: {FillText, FillDate},
	TermOther:               {FillText},
}

var categorySegmentKeywords = map[TermCategory][]string{
	TermInvestmentAmount:    {"investment", "amount", "capital", "投资", "金额"},
	TermValuation:           {"valuation", "value", "估值"},
	TermPricing:             {"price", "share", "价格", "股"},
	TermBoardSeats:          {"board", "director", "seat", "董事", "席位"},
	TermVotingRights:        {"voting", "vote", "rights", "投票", "表决"},
	TermLiquidationPref:     {"liquidation", "preference", "清算", "优先"},
	TermAntiDilution:        {"dilution", "adjustment", "稀释", "调整"},
	TermInformationRights:   {"information", "reporting", "信息", "报告"},
	TermClosingConditions:   {"closing", "conditions", "交割", "条件"},
	TermConditionsPrecedent: {"precedent", "conditions", "先决", "条件"},
}

// ExpectedClauseCategories returns the clause categories a term of category c
// normally lands in. Unknown categories yield nil.
func ExpectedClauseCategories(c TermCategory) []ClauseCategory {
	return append([]ClauseCategory(nil), termToClauseCategories[c]...)
}

// ExpectedFillableTypes returns the segment types compatible with c.
func ExpectedFillableTypes(c TermCategory) []FillableType {
	if types, ok := categoryFillableTypes[c]; ok {
		return append([]FillableType(nil), types...)
	}
	return []FillableType{FillText}
}

// SegmentKeywords returns the context keywords used to rank segments for c.
func SegmentKeywords(c TermCategory) []string {
	return append([]string(nil), categorySegmentKeywords[c]...)
}

func clauseCategoryExpected(term TermCategory, clause ClauseCategory) bool {
	for _, c := range termToClauseCategories[term] {
		if c == clause {
			return true
		}
	}
	return false
}

func fillableTypeCompatible(term TermCategory, t FillableType) bool {
	for _, ft := range ExpectedFillableTypes(term) {
		if ft == t {
			return true
		}
	}
	return false
}
