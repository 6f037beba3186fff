package alignment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTermCategory(t *testing.T) {
	t.Run("Should accept known values regardless of case and padding", func(t *testing.T) {
		c, err := ParseTermCategory("  Board_Seats ")
		require.NoError(t, err)
		assert.Equal(t, TermBoardSeats, c)
	})

	t.Run("Should reject unknown values", func(t *testing.T) {
		_, err := ParseTermCategory("salary")
		assert.ErrorIs(t, err, ErrUnknownCategory)
		_, err = ParseClauseCategory("boilerplate")
		assert.ErrorIs(t, err, ErrUnknownCategory)
		_, err = ParseFillableType("image")
		assert.ErrorIs(t, err, ErrUnknownCategory)
	})

	t.Run("Should validate while decoding JSON", func(t *testing.T) {
		var seg FillableSegment
		require.NoError(t, json.Unmarshal([]byte(`{"id":"s1","expected_type":"currency"}`), &seg))
		assert.Equal(t, FillCurrency, seg.ExpectedType)
		assert.Error(t, json.Unmarshal([]byte(`{"id":"s1","expected_type":"blob"}`), &seg))
	})
}

func TestTaxonomyTables(t *testing.T) {
	t.Run("Should map every term category", func(t *testing.T) {
		for _, c := range TermCategories() {
			assert.NotEmpty(t, ExpectedClauseCategories(c), c)
			assert.NotEmpty(t, ExpectedFillableTypes(c), c)
		}
		assert.Len(t, TermCategories(), 11)
		assert.Len(t, ClauseCategories(), 10)
	})

	t.Run("Should default unknown categories to text slots", func(t *testing.T) {
		assert.Nil(t, ExpectedClauseCategories("unknown"))
		assert.Equal(t, []FillableType{FillText}, ExpectedFillableTypes("unknown"))
		assert.Empty(t, SegmentKeywords(TermOther))
	})

	t.Run("Should return copies", func(t *testing.T) {
		got := ExpectedClauseCategories(TermValuation)
		got[0] = ClauseMiscellaneous
		assert.Equal(t, []ClauseCategory{ClauseInvestmentTerms}, ExpectedClauseCategories(TermValuation))
	})
}
