package alignment

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTermExtraction(t *testing.T) {
	t.Run("Should decode a term sheet record", func(t *testing.T) {
		body := `{
  "document_id": "ts-1",
  "terms": [
    {"id": "t1", "category": "investment_amount", "title": "Investment", "value": 5000000,
     "raw_text": "USD 5,000,000", "source_section_id": "s1", "source_paragraph_id": "p1", "confidence": 0.9}
  ],
  "unrecognized_sections": ["s9"],
  "extraction_timestamp": "2026-01-01T00:00:00Z"
}`
		res, err := DecodeTermExtraction(strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, "ts-1", res.DocumentID)
		require.Len(t, res.Terms, 1)
		assert.Equal(t, TermInvestmentAmount, res.Terms[0].Category)
		assert.Equal(t, []string{"s9"}, res.UnrecognizedSections)
	})

	t.Run("Should reject unknown categories", func(t *testing.T) {
		body := `{"document_id": "ts-1", "terms": [{"id": "t1", "category": "salary"}]}`
		_, err := DecodeTermExtraction(strings.NewReader(body))
		assert.ErrorIs(t, err, ErrUnknownCategory)
	})
}

func TestReadTemplateAnalysisFile(t *testing.T) {
	t.Run("Should load clauses with segments and embeddings", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "template.json")
		body := `{
  "document_id": "tpl-1",
  "clauses": [
    {"id": "c1", "section_id": "3.1", "title": "Subscription", "category": "investment_terms",
     "full_text": "The Investor shall subscribe for ____.",
     "fillable_segments": [{"id": "f1", "location_start": 30, "location_end": 34, "expected_type": "currency",
       "context_before": "subscribe for", "context_after": ".", "current_value": "____"}],
     "keywords": ["subscribe"], "semantic_embedding": [0.1, 0.2]}
  ],
  "analysis_timestamp": "2026-01-01T00:00:00Z"
}`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		res, err := ReadTemplateAnalysisFile(path)
		require.NoError(t, err)
		require.Len(t, res.Clauses, 1)
		c := res.Clauses[0]
		assert.Equal(t, ClauseInvestmentTerms, c.Category)
		assert.Equal(t, []float32{0.1, 0.2}, c.Embedding)
		require.Len(t, c.FillableSegments, 1)
		assert.True(t, c.FillableSegments[0].HasValue())
		assert.Equal(t, 30, c.FillableSegments[0].Start)
	})

	t.Run("Should fail on a missing file", func(t *testing.T) {
		_, err := ReadTemplateAnalysisFile(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
}

func TestWriteResultFile(t *testing.T) {
	seg := "f1"
	res := &AlignmentResult{
		TSDocumentID:       "ts-1",
		TemplateDocumentID: "tpl-1",
		Matches: []AlignmentMatch{{
			ID: "match_0001", TermID: "t1", ClauseID: "c1", FillableSegmentID: &seg,
			Method: MethodRuleTitle, Confidence: 0.95, Action: ActionInsert,
		}},
		UnmatchedTerms:   []string{},
		UnmatchedClauses: []string{"c2"},
		Timestamp:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	t.Run("Should write the documented keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out", "result.json")
		require.NoError(t, WriteResultFile(path, res))
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		for _, key := range []string{"ts_document_id", "template_document_id", "matches", "unmatched_terms", "unmatched_clauses", "alignment_timestamp"} {
			assert.Contains(t, raw, key)
		}
		assert.Equal(t, "2026-01-02T03:04:05Z", raw["alignment_timestamp"])
		match := raw["matches"].([]any)[0].(map[string]any)
		assert.Equal(t, "rule_title", match["match_method"])
		assert.Equal(t, "f1", match["fillable_segment_id"])
		assert.Equal(t, false, match["needs_review"])
	})

	t.Run("Should encode a null segment id", func(t *testing.T) {
		var buf bytes.Buffer
		noSeg := *res
		noSeg.Matches = []AlignmentMatch{{ID: "match_0001", Method: MethodSemantic, Action: ActionInsert}}
		require.NoError(t, EncodeResult(&buf, &noSeg))
		assert.Contains(t, buf.String(), `"fillable_segment_id": null`)
	})
}
