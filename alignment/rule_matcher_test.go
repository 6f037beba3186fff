package alignment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleMatcher_Title(t *testing.T) {
	m := NewRuleMatcher(nil)
	ctx := context.Background()

	t.Run("Should score an exact case-insensitive title at 0.95", func(t *testing.T) {
		term := &ExtractedTerm{ID: "t1", Category: TermBoardSeats, Title: "Board Composition"}
		clauses := []AnalyzedClause{{ID: "c1", SectionID: "sec_a", Title: "board composition", Category: ClauseGovernance}}
		got := m.Match(ctx, term, clauses)
		require.Len(t, got, 1)
		assert.Equal(t, MethodRuleTitle, got[0].Method)
		assert.GreaterOrEqual(t, got[0].Confidence, 0.95)
	})

	t.Run("Should score containment in either direction", func(t *testing.T) {
		term := &ExtractedTerm{ID: "t1", Category: TermOther, Title: "Drag Along"}
		clauses := []AnalyzedClause{
			{ID: "c1", SectionID: "sec_a", Title: "Drag Along Rights", Category: ClauseDefinitions},
			{ID: "c2", SectionID: "sec_b", Title: "Drag", Category: ClauseDefinitions},
		}
		got := m.Match(ctx, term, clauses)
		require.Len(t, got, 2)
		assert.Equal(t, "c1", got[0].Clause.ID)
		assert.InDelta(t, 0.85, got[0].Confidence, 1e-9)
		assert.Equal(t, "c2", got[1].Clause.ID)
		assert.InDelta(t, 0.80, got[1].Confidence, 1e-9)
	})

	t.Run("Should use word overlap without stopwords", func(t *testing.T) {
		term := &ExtractedTerm{ID: "t1", Category: TermOther, Title: "Rights of First Refusal"}
		clause := AnalyzedClause{ID: "c1", SectionID: "sec_a", Title: "First Refusal Rights and Obligations", Category: ClauseDefinitions}
		// {rights, first, refusal} vs {first, refusal, rights, obligations}: 3/4
		assert.InDelta(t, 0.6+0.3*0.75, scoreByTitle(term, &clause), 1e-9)
	})

	t.Run("Should ignore weak overlap", func(t *testing.T) {
		term := &ExtractedTerm{Title: "Transfer Restrictions"}
		clause := AnalyzedClause{Title: "Transfer Pricing Policy"}
		assert.Zero(t, scoreByTitle(term, &clause))
	})
}

func TestRuleMatcher_Number(t *testing.T) {
	m := NewRuleMatcher(nil)
	ctx := context.Background()

	t.Run("Should match equal section numbers at 0.75", func(t *testing.T) {
		term := &ExtractedTerm{ID: "t1", Category: TermOther, Title: "Miscellaneous", RawText: "as set out in Section 3"}
		clauses := []AnalyzedClause{{ID: "c1", SectionID: "3", Title: "Term", Category: ClauseDefinitions}}
		got := m.Match(ctx, term, clauses)
		require.Len(t, got, 1)
		assert.Equal(t, MethodRuleNumber, got[0].Method)
		assert.InDelta(t, 0.75, got[0].Confidence, 1e-9)
	})

	t.Run("Should match a parent section at 0.65", func(t *testing.T) {
		term := &ExtractedTerm{ID: "t1", Category: TermOther, Title: "Notices", RawText: "see Clause 4"}
		clauses := []AnalyzedClause{{ID: "c1", SectionID: "4.2", Title: "Addresses", Category: ClauseDefinitions}}
		got := m.Match(ctx, term, clauses)
		require.Len(t, got, 1)
		assert.Equal(t, MethodRuleNumber, got[0].Method)
		assert.InDelta(t, 0.65, got[0].Confidence, 1e-9)
	})

	t.Run("Should read CJK article numbers", func(t *testing.T) {
		term := &ExtractedTerm{ID: "t1", Category: TermOther, Title: "保密", RawText: "详见第十二条"}
		clauses := []AnalyzedClause{{ID: "c1", SectionID: "12", Title: "争议解决", Category: ClauseDefinitions}}
		got := m.Match(ctx, term, clauses)
		require.Len(t, got, 1)
		assert.Equal(t, MethodRuleNumber, got[0].Method)
	})
}

func TestRuleMatcher_Keyword(t *testing.T) {
	m := NewRuleMatcher(nil)
	ctx := context.Background()

	t.Run("Should score keyword hits against the rule table", func(t *testing.T) {
		term := &ExtractedTerm{ID: "t1", Category: TermInvestmentAmount, Title: "Series Investment", RawText: "USD five million"}
		clauses := []AnalyzedClause{{
			ID:        "c1",
			SectionID: "sec_x",
			Title:     "Subscription",
			Category:  ClauseInvestmentTerms,
			FullText:  "The investment amount shall be paid as subscription consideration.",
		}}
		got := m.Match(ctx, term, clauses)
		require.Len(t, got, 1)
		assert.Equal(t, MethodRuleKeyword, got[0].Method)
		// 4 of 12 keywords hit.
		assert.InDelta(t, 0.85*(0.5+0.5*4.0/12.0), got[0].Confidence, 1e-9)
	})

	t.Run("Should count Chinese keywords literally", func(t *testing.T) {
		term := &ExtractedTerm{ID: "t1", Category: TermLiquidationPref, Title: "优先清算", RawText: "一倍"}
		clause := AnalyzedClause{
			ID:        "c1",
			SectionID: "sec_x",
			Title:     "清算事件",
			Category:  ClauseLiquidation,
			FullText:  "发生清算事件时，投资人有权优先获得分配，liquidation preference applies.",
		}
		// liquidation, preference, 清算, 优先, 分配: 5 of 8.
		assert.InDelta(t, 0.90*(0.5+0.5*5.0/8.0), m.scoreByKeyword(term, &clause), 1e-9)
	})
}

func TestRuleMatcher_CategoryFallback(t *testing.T) {
	m := NewRuleMatcher(nil)
	ctx := context.Background()

	t.Run("Should fall back to the category map between 0.6 and 0.8", func(t *testing.T) {
		term := &ExtractedTerm{ID: "t1", Category: TermBoardSeats, Title: "Nominees", RawText: "Investors may name two nominees."}
		clauses := []AnalyzedClause{{
			ID:        "c1",
			SectionID: "sec_gov",
			Title:     "Management",
			Category:  ClauseGovernance,
			FullText:  "The company shall be managed in the ordinary course.",
			Keywords:  []string{"management"},
		}}
		got := m.Match(ctx, term, clauses)
		require.Len(t, got, 1)
		assert.Equal(t, MethodRuleKeyword, got[0].Method)
		assert.GreaterOrEqual(t, got[0].Confidence, 0.6)
		assert.LessOrEqual(t, got[0].Confidence, 0.8)
	})

	t.Run("Should boost per clause keyword and cap at 0.8", func(t *testing.T) {
		term := &ExtractedTerm{Category: TermBoardSeats, RawText: "alpha beta gamma delta epsilon"}
		clause := AnalyzedClause{Category: ClauseGovernance, Keywords: []string{"Alpha", "beta", "gamma", "delta", "epsilon"}}
		assert.InDelta(t, 0.8, scoreByCategory(term, &clause), 1e-9)
		clause.Keywords = []string{"alpha"}
		assert.InDelta(t, 0.65, scoreByCategory(term, &clause), 1e-9)
	})

	t.Run("Should not match unrelated categories", func(t *testing.T) {
		term := &ExtractedTerm{ID: "t1", Category: TermBoardSeats, Title: "Nominees", RawText: "two nominees"}
		clauses := []AnalyzedClause{{ID: "c1", SectionID: "sec_a", Title: "Payment", Category: ClauseClosing}}
		assert.Empty(t, m.Match(ctx, term, clauses))
	})
}

func TestRuleMatcher_Cascade(t *testing.T) {
	m := NewRuleMatcher(nil)

	t.Run("Should stop at the first qualifying strategy", func(t *testing.T) {
		term := &ExtractedTerm{ID: "t1", Category: TermBoardSeats, Title: "Board", RawText: "Section 2 board of directors"}
		clauses := []AnalyzedClause{{
			ID:        "c1",
			SectionID: "2",
			Title:     "Board",
			Category:  ClauseGovernance,
			FullText:  "board director seat composition appointment",
		}}
		got := m.Match(context.Background(), term, clauses)
		require.Len(t, got, 1)
		assert.Equal(t, MethodRuleTitle, got[0].Method)
	})

	t.Run("Should sort candidates by confidence", func(t *testing.T) {
		term := &ExtractedTerm{ID: "t1", Category: TermBoardSeats, Title: "Board Seats", RawText: "two seats"}
		clauses := []AnalyzedClause{
			{ID: "fallback", SectionID: "x", Title: "Other", Category: ClauseGovernance},
			{ID: "exact", SectionID: "y", Title: "Board Seats", Category: ClauseGovernance},
		}
		got := m.Match(context.Background(), term, clauses)
		require.Len(t, got, 2)
		assert.Equal(t, "exact", got[0].Clause.ID)
		assert.Equal(t, "fallback", got[1].Clause.ID)
	})

	t.Run("Should list rules for a category", func(t *testing.T) {
		rules := m.RulesForCategory(TermVotingRights)
		require.Len(t, rules, 1)
		assert.Equal(t, "voting_rights_to_governance", rules[0].Name)
		assert.Empty(t, m.RulesForCategory(TermOther))
	})
}
