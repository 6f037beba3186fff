package alignment

import (
	"strings"
	"time"
)

// ExtractedTerm is a business term pulled from a term sheet.
type ExtractedTerm struct {
	ID                string         `json:"id"`
	Category          TermCategory   `json:"category"`
	Title             string         `json:"title"`
	Value             any            `json:"value"`
	RawText           string         `json:"raw_text"`
	SourceSectionID   string         `json:"source_section_id"`
	SourceParagraphID string         `json:"source_paragraph_id"`
	Confidence        float64        `json:"confidence"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// TermExtractionResult is the output of the term-sheet extractor.
type TermExtractionResult struct {
	DocumentID           string          `json:"document_id"`
	Terms                []ExtractedTerm `json:"terms"`
	UnrecognizedSections []string        `json:"unrecognized_sections"`
	Timestamp            string          `json:"extraction_timestamp"`
}

// FillableSegment is a slot in a clause that can receive a term value.
type FillableSegment struct {
	ID            string       `json:"id"`
	Start         int          `json:"location_start"`
	End           int          `json:"location_end"`
	ExpectedType  FillableType `json:"expected_type"`
	ContextBefore string       `json:"context_before"`
	ContextAfter  string       `json:"context_after"`
	CurrentValue  *string      `json:"current_value"`
}

// Context joins the text around the slot.
func (s FillableSegment) Context() string {
	return s.ContextBefore + " " + s.ContextAfter
}

// HasValue reports whether the slot already holds non-blank text.
func (s FillableSegment) HasValue() bool {
	return s.CurrentValue != nil && strings.TrimSpace(*s.CurrentValue) != ""
}

// AnalyzedClause is a template clause annotated by the template analyzer.
type AnalyzedClause struct {
	ID               string            `json:"id"`
	SectionID        string            `json:"section_id"`
	Title            string            `json:"title"`
	Category         ClauseCategory    `json:"category"`
	FullText         string            `json:"full_text"`
	FillableSegments []FillableSegment `json:"fillable_segments"`
	Keywords         []string          `json:"keywords"`
	Embedding        []float32         `json:"semantic_embedding,omitempty"`
}

// TemplateAnalysisResult is the output of the template analyzer.
type TemplateAnalysisResult struct {
	DocumentID   string           `json:"document_id"`
	Clauses      []AnalyzedClause `json:"clauses"`
	StructureMap map[string]any   `json:"structure_map,omitempty"`
	Timestamp    string           `json:"analysis_timestamp"`
}

// Candidate is a scored term-to-clause pairing produced by a matcher.
type Candidate struct {
	Clause     *AnalyzedClause
	Method     MatchMethod
	Confidence float64
}

// AlignmentMatch is an accepted pairing of a term with a clause.
type AlignmentMatch struct {
	ID                string      `json:"id"`
	TermID            string      `json:"ts_term_id"`
	ClauseID          string      `json:"clause_id"`
	FillableSegmentID *string     `json:"fillable_segment_id"`
	Method            MatchMethod `json:"match_method"`
	Confidence        float64     `json:"confidence"`
	Action            ActionType  `json:"action"`
	NeedsReview       bool        `json:"needs_review"`
}

// AlignmentResult is the outcome of one alignment run.
type AlignmentResult struct {
	TSDocumentID       string           `json:"ts_document_id"`
	TemplateDocumentID string           `json:"template_document_id"`
	Matches            []AlignmentMatch `json:"matches"`
	UnmatchedTerms     []string         `json:"unmatched_terms"`
	UnmatchedClauses   []string         `json:"unmatched_clauses"`
	Timestamp          time.Time        `json:"alignment_timestamp"`
}

// Summary aggregates counts over a result.
type Summary struct {
	Matched          int                 `json:"matched"`
	NeedsReview      int                 `json:"needs_review"`
	UnmatchedTerms   int                 `json:"unmatched_terms"`
	UnmatchedClauses int                 `json:"unmatched_clauses"`
	Inserts          int                 `json:"inserts"`
	Overrides        int                 `json:"overrides"`
	ByMethod         map[MatchMethod]int `json:"by_method"`
}

// Summary counts matches by method and action.
func (r *AlignmentResult) Summary() Summary {
	s := Summary{ByMethod: make(map[MatchMethod]int)}
	if r == nil {
		return s
	}
	s.Matched = len(r.Matches)
	s.UnmatchedTerms = len(r.UnmatchedTerms)
	s.UnmatchedClauses = len(r.UnmatchedClauses)
	for _, m := range r.Matches {
		s.ByMethod[m.Method]++
		if m.NeedsReview {
			s.NeedsReview++
		}
		switch m.Action {
		case ActionInsert:
			s.Inserts++
		case ActionOverride:
			s.Overrides++
		}
	}
	return s
}
