package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/termalign/alignment"
	"yashubustudio/termalign/embedding"
	"yashubustudio/termalign/internal/logger"
)

const termsJSON = `{
  "document_id": "ts-cli",
  "terms": [
    {"id": "term_amount", "category": "investment_amount", "title": "Investment Amount",
     "value": 5000000, "raw_text": "USD five million", "source_section_id": "ts_1"},
    {"id": "term_ratchet", "category": "anti_dilution", "title": "Ratchet",
     "raw_text": "Full ratchet.", "source_section_id": "ts_2"}
  ],
  "unrecognized_sections": [],
  "extraction_timestamp": "2026-01-01T00:00:00Z"
}`

const templateJSON = `{
  "document_id": "tmpl-cli",
  "clauses": [
    {"id": "clause_amount", "section_id": "sec_2", "title": "Investment Amount",
     "category": "investment_terms", "full_text": "The investor shall pay the investment amount of ____.",
     "fillable_segments": [
       {"id": "seg_amount", "location_start": 45, "location_end": 49, "expected_type": "currency",
        "context_before": "the investment amount of", "context_after": "", "current_value": "____"}
     ],
     "keywords": ["investment"]},
    {"id": "clause_misc", "section_id": "sec_9", "title": "Notices",
     "category": "miscellaneous", "full_text": "Notices shall be in writing.",
     "fillable_segments": [], "keywords": []}
  ],
  "analysis_timestamp": "2026-01-01T00:00:00Z"
}`

const protectionTemplateJSON = `{
  "document_id": "tmpl-protect",
  "clauses": [
    {"id": "clause_amount", "section_id": "sec_2", "title": "Investment Amount",
     "category": "investment_terms", "full_text": "The investor shall pay the investment amount of ____.",
     "fillable_segments": [], "keywords": ["investment"]},
    {"id": "clause_protection", "section_id": "sec_7", "title": "Price Protection",
     "category": "covenants", "full_text": "Holders receive full ratchet price protection.",
     "fillable_segments": [], "keywords": []}
  ],
  "analysis_timestamp": "2026-01-01T00:00:00Z"
}`

// keywordEmbedder maps texts mentioning a ratchet onto one axis and
// everything else onto another.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(strings.ToLower(text), "ratchet") {
		return []float32{1, 0, 0}, nil
	}
	return []float32{0, 0, 1}, nil
}

func (keywordEmbedder) ModelID() string { return "keyword" }

func (keywordEmbedder) Close() error { return nil }

func useKeywordEmbedder(t *testing.T) {
	t.Helper()
	prev := newEmbedder
	newEmbedder = func(context.Context, alignment.EmbedderConfig, logger.Logger) (embedding.Embedder, error) {
		return keywordEmbedder{}, nil
	}
	t.Cleanup(func() { newEmbedder = prev })
}

func writeInputs(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	terms := filepath.Join(dir, "terms.json")
	tmpl := filepath.Join(dir, "template.json")
	require.NoError(t, os.WriteFile(terms, []byte(termsJSON), 0o644))
	require.NoError(t, os.WriteFile(tmpl, []byte(templateJSON), 0o644))
	return terms, tmpl
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAlignCommand(t *testing.T) {
	t.Run("Should print the result JSON to stdout", func(t *testing.T) {
		terms, tmpl := writeInputs(t)
		cfgPath := filepath.Join(t.TempDir(), "missing.yaml")
		out, err := execute(t, "align", "--config", cfgPath, "--log-level", "error",
			"--terms", terms, "--template", tmpl, "--stdout")
		require.NoError(t, err)

		var res alignment.AlignmentResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, "ts-cli", res.TSDocumentID)
		assert.Equal(t, "tmpl-cli", res.TemplateDocumentID)
		require.Len(t, res.Matches, 1)
		assert.Equal(t, "clause_amount", res.Matches[0].ClauseID)
		assert.Equal(t, alignment.MethodRuleTitle, res.Matches[0].Method)
		require.NotNil(t, res.Matches[0].FillableSegmentID)
		assert.Equal(t, "seg_amount", *res.Matches[0].FillableSegmentID)
		assert.Len(t, res.UnmatchedTerms, 1)
		assert.Equal(t, []string{"clause_misc"}, res.UnmatchedClauses)
	})

	t.Run("Should write the result file, summary and metrics", func(t *testing.T) {
		terms, tmpl := writeInputs(t)
		dir := t.TempDir()
		output := filepath.Join(dir, "out", "result.json")
		metricsPath := filepath.Join(dir, "metrics.prom")
		cfgPath := filepath.Join(dir, "termalign.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte("vector_index:\n  provider: memory\nlog:\n  level: error\n"), 0o644))

		out, err := execute(t, "align", "--config", cfgPath,
			"--terms", terms, "--template", tmpl,
			"--output", output, "--metrics-file", metricsPath)
		require.NoError(t, err)
		assert.Contains(t, out, "alignment summary")
		assert.Contains(t, out, "term_amount -> clause_amount")
		assert.Contains(t, out, "unmatched terms: 1")
		assert.Contains(t, out, output)

		res, err := os.ReadFile(output)
		require.NoError(t, err)
		assert.Contains(t, string(res), `"alignment_timestamp"`)

		prom, err := os.ReadFile(metricsPath)
		require.NoError(t, err)
		assert.Contains(t, string(prom), "termalign_runs_total 1")
		assert.Contains(t, string(prom), `termalign_unmatched_terms_total{category="anti_dilution"} 1`)
	})

	t.Run("Should match semantically through the memory index", func(t *testing.T) {
		useKeywordEmbedder(t)
		terms, _ := writeInputs(t)
		dir := t.TempDir()
		tmpl := filepath.Join(dir, "template.json")
		require.NoError(t, os.WriteFile(tmpl, []byte(protectionTemplateJSON), 0o644))
		cfgPath := filepath.Join(dir, "termalign.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte("vector_index:\n  provider: memory\nlog:\n  level: error\n"), 0o644))

		out, err := execute(t, "align", "--config", cfgPath, "--terms", terms, "--template", tmpl, "--stdout")
		require.NoError(t, err)

		var res alignment.AlignmentResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		require.Len(t, res.Matches, 2)
		ratchet := res.Matches[1]
		assert.Equal(t, "term_ratchet", ratchet.TermID)
		assert.Equal(t, "clause_protection", ratchet.ClauseID)
		assert.Equal(t, alignment.MethodSemantic, ratchet.Method)
		assert.InDelta(t, 1.0, ratchet.Confidence, 1e-9)
		assert.Empty(t, res.UnmatchedTerms)
	})

	t.Run("Should keep aligning when the vector index is unreachable", func(t *testing.T) {
		useKeywordEmbedder(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"status":{"error":"Invalid api-key"}}`))
		}))
		defer srv.Close()
		terms, _ := writeInputs(t)
		dir := t.TempDir()
		tmpl := filepath.Join(dir, "template.json")
		require.NoError(t, os.WriteFile(tmpl, []byte(protectionTemplateJSON), 0o644))
		cfgPath := filepath.Join(dir, "termalign.yaml")
		body := "vector_index:\n  provider: qdrant\n  dsn: " + srv.URL + "\n  dimension: 3\nlog:\n  level: error\n"
		require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
		metricsPath := filepath.Join(dir, "metrics.prom")

		out, err := execute(t, "align", "--config", cfgPath, "--terms", terms, "--template", tmpl,
			"--stdout", "--metrics-file", metricsPath)
		require.NoError(t, err)

		var res alignment.AlignmentResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		require.Len(t, res.Matches, 2)
		assert.Equal(t, alignment.MethodSemantic, res.Matches[1].Method)

		prom, err := os.ReadFile(metricsPath)
		require.NoError(t, err)
		assert.Contains(t, string(prom), `termalign_backend_degraded_total{backend="vector_index"} 1`)
	})

	t.Run("Should require input files", func(t *testing.T) {
		_, err := execute(t, "align", "--terms", "x.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--template")
	})

	t.Run("Should surface invalid configuration", func(t *testing.T) {
		terms, tmpl := writeInputs(t)
		cfgPath := filepath.Join(t.TempDir(), "termalign.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte("alignment:\n  confidence_threshold: 2\n"), 0o644))
		_, err := execute(t, "align", "--config", cfgPath, "--terms", terms, "--template", tmpl, "--stdout")
		assert.Error(t, err)
	})
}

func TestIndexCommand(t *testing.T) {
	_, tmpl := writeInputs(t)
	cfgPath := filepath.Join(t.TempDir(), "missing.yaml")
	_, err := execute(t, "index", "--config", cfgPath, "--template", tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder")
}

func TestRulesExportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules", "rules.yaml")
	out, err := execute(t, "rules", "export", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	rules, err := alignment.LoadMatchRules(path)
	require.NoError(t, err)
	assert.Equal(t, alignment.DefaultMatchRules(), rules)
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termalign.yaml")
	_, err := execute(t, "config", "init", "--output", path)
	require.NoError(t, err)

	cfg, err := alignment.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, alignment.DefaultConfig().Semantic, cfg.Semantic)

	_, err = execute(t, "config", "init", "--output", path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "already exists"))

	_, err = execute(t, "config", "init", "--output", path, "--force")
	assert.NoError(t, err)
}

func TestResolveOutputPath(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveOutputPath("", filepath.Join(dir, "results"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "results"), filepath.Dir(got))
	assert.True(t, strings.HasPrefix(filepath.Base(got), "result_"))
	assert.Equal(t, ".json", filepath.Ext(got))

	explicit := filepath.Join(dir, "a", "b.json")
	got, err = resolveOutputPath(explicit, "")
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
	_, err = os.Stat(filepath.Join(dir, "a"))
	assert.NoError(t, err)
}
