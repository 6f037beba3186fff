package alignment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRule_Validate(t *testing.T) {
	valid := MatchRule{
		Name:             "custom",
		TermCategories:   []TermCategory{TermValuation},
		ClauseCategories: []ClauseCategory{ClauseInvestmentTerms},
		KeywordsEN:       []string{"cap"},
		BaseConfidence:   0.8,
	}
	require.NoError(t, valid.Validate())

	t.Run("Should reject broken rules", func(t *testing.T) {
		noName := valid
		noName.Name = " "
		assert.Error(t, noName.Validate())

		badCat := valid
		badCat.TermCategories = []TermCategory{"salary"}
		assert.ErrorIs(t, badCat.Validate(), ErrUnknownCategory)

		badConf := valid
		badConf.BaseConfidence = 1.2
		assert.ErrorIs(t, badConf.Validate(), ErrInvalidThreshold)

		noKeywords := valid
		noKeywords.KeywordsEN = nil
		assert.Error(t, noKeywords.Validate())
	})

	t.Run("Should ship valid defaults", func(t *testing.T) {
		for _, r := range DefaultMatchRules() {
			assert.NoError(t, r.Validate(), r.Name)
		}
	})
}

func TestLoadMatchRules(t *testing.T) {
	t.Run("Should return defaults for an empty path", func(t *testing.T) {
		rules, err := LoadMatchRules("")
		require.NoError(t, err)
		assert.Equal(t, DefaultMatchRules(), rules)
	})

	t.Run("Should merge overrides by name and sort by priority", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		body := `
rules:
  - name: valuation_to_terms
    term_categories: [valuation]
    clause_categories: [investment_terms]
    keywords_en: [valuation, cap]
    priority: 10
    base_confidence: 0.5
  - name: drag_along
    term_categories: [other]
    clause_categories: [covenants]
    keywords_en: [drag-along]
    priority: 11
    base_confidence: 0.7
`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		rules, err := LoadMatchRules(path)
		require.NoError(t, err)
		require.Len(t, rules, len(DefaultMatchRules())+1)
		assert.Equal(t, "drag_along", rules[0].Name)
		for _, r := range rules {
			if r.Name == "valuation_to_terms" {
				assert.InDelta(t, 0.5, r.BaseConfidence, 1e-9)
				assert.Equal(t, []string{"valuation", "cap"}, r.KeywordsEN)
				assert.Empty(t, r.KeywordsZH)
			}
		}
	})

	t.Run("Should reject unknown categories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		body := "rules:\n  - name: x\n    term_categories: [salary]\n    clause_categories: [closing]\n    keywords_en: [pay]\n    base_confidence: 0.5\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := LoadMatchRules(path)
		assert.ErrorIs(t, err, ErrUnknownCategory)
	})

	t.Run("Should fail on a missing file", func(t *testing.T) {
		_, err := LoadMatchRules(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestExportMatchRules(t *testing.T) {
	t.Run("Should export defaults that load back unchanged", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cfg", "rules.yaml")
		require.NoError(t, ExportMatchRules(path))
		rules, err := LoadMatchRules(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultMatchRules(), rules)
	})

	t.Run("Should require a path", func(t *testing.T) {
		assert.Error(t, ExportMatchRules("  "))
	})
}

func TestRuleMatcher_CustomRules(t *testing.T) {
	t.Run("Should score with loaded rules", func(t *testing.T) {
		rules := DefaultMatchRules()
		for i := range rules {
			if rules[i].Name == "valuation_to_terms" {
				rules[i].BaseConfidence = 0.6
			}
		}
		m := NewRuleMatcher(rules)
		term := &ExtractedTerm{Category: TermValuation}
		clause := AnalyzedClause{Category: ClauseInvestmentTerms, FullText: "the pre-money valuation is fixed"}
		// valuation, pre-money: 2 of 8.
		assert.InDelta(t, 0.6*(0.5+0.5*2.0/8.0), m.scoreByKeyword(term, &clause), 1e-9)
	})
}
