package alignment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultConfidenceThreshold is the review cutoff used when none is configured.
	DefaultConfidenceThreshold = 0.7
	// DefaultEngineSemanticThreshold is the similarity cutoff of the engine's
	// own semantic matcher.
	DefaultEngineSemanticThreshold = 0.6
)

// availability is implemented by matchers that may be switched off.
type availability interface {
	IsAvailable() bool
}

// thresholdMatcher is implemented by matchers that accept a per-call cutoff.
type thresholdMatcher interface {
	MatchAbove(ctx context.Context, term *ExtractedTerm, clauses []AnalyzedClause, threshold float64) []Candidate
}

// EngineOption configures an Engine.
type EngineOption func(*Engine) error

// WithRuleMatcher replaces the rule-based matcher.
func WithRuleMatcher(m Matcher) EngineOption {
	return func(e *Engine) error {
		if m == nil {
			return errors.New("rule matcher is required")
		}
		e.rules = m
		return nil
	}
}

// WithSemanticMatcher replaces the semantic matcher.
func WithSemanticMatcher(m Matcher) EngineOption {
	return func(e *Engine) error {
		e.semantic = m
		e.pendingEmbedder = nil
		return nil
	}
}

// WithEmbedder builds the engine's semantic matcher around embedder with the
// engine's default similarity threshold. The matcher is built after every
// option has run, so it shares the final logger and observer regardless of
// option order.
func WithEmbedder(embedder Embedder, opts ...SemanticMatcherOption) EngineOption {
	return func(e *Engine) error {
		e.pendingEmbedder = &embedderOption{embedder: embedder, opts: opts}
		e.semantic = nil
		return nil
	}
}

type embedderOption struct {
	embedder Embedder
	opts     []SemanticMatcherOption
}

// WithConfidenceThreshold sets the default review cutoff.
func WithConfidenceThreshold(v float64) EngineOption {
	return func(e *Engine) error {
		return e.SetConfidenceThreshold(v)
	}
}

// WithLogger sets the engine logger.
func WithLogger(l Logger) EngineOption {
	return func(e *Engine) error {
		if l != nil {
			e.logger = l
		}
		return nil
	}
}

// WithObserver sets the receiver of alignment events.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) error {
		if o != nil {
			e.observer = o
		}
		return nil
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		if now != nil {
			e.now = now
		}
		return nil
	}
}

// Engine aligns term sheet terms with template clauses. Thresholds may be
// changed between runs; every other piece of run state is local to Align, so
// one Engine can serve concurrent runs.
type Engine struct {
	rules    Matcher
	semantic Matcher
	logger   Logger
	observer Observer
	now      func() time.Time

	pendingEmbedder *embedderOption

	mu        sync.RWMutex
	threshold float64
}

// NewEngine builds an engine with the default rule matcher and no semantic
// matcher unless options provide one.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		rules:     NewRuleMatcher(nil),
		logger:    nopLogger{},
		observer:  nopObserver{},
		now:       time.Now,
		threshold: DefaultConfidenceThreshold,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if p := e.pendingEmbedder; p != nil {
		all := append([]SemanticMatcherOption{
			WithSimilarityThreshold(DefaultEngineSemanticThreshold),
			WithSemanticLogger(e.logger),
			WithSemanticObserver(e.observer),
		}, p.opts...)
		m, err := NewSemanticMatcher(p.embedder, all...)
		if err != nil {
			return nil, err
		}
		e.semantic = m
		e.pendingEmbedder = nil
	}
	return e, nil
}

// ConfidenceThreshold returns the default review cutoff.
func (e *Engine) ConfidenceThreshold() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.threshold
}

// SetConfidenceThreshold changes the default review cutoff.
func (e *Engine) SetConfidenceThreshold(v float64) error {
	if err := checkThreshold("confidence threshold", v); err != nil {
		return err
	}
	e.mu.Lock()
	e.threshold = v
	e.mu.Unlock()
	return nil
}

// SemanticAvailable reports whether a usable semantic matcher is configured.
func (e *Engine) SemanticAvailable() bool {
	if e.semantic == nil {
		return false
	}
	if a, ok := e.semantic.(availability); ok {
		return a.IsAvailable()
	}
	return true
}

// run holds the settings and counters of a single Align call.
type run struct {
	threshold         float64
	reviewThresholds  map[TermCategory]float64
	semanticThreshold *float64
	actions           *ActionClassifier
	seq               int
}

func (r *run) thresholdFor(c TermCategory) float64 {
	if v, ok := r.reviewThresholds[c]; ok {
		return v
	}
	return r.threshold
}

func (r *run) nextMatchID() string {
	r.seq++
	return fmt.Sprintf("match_%04d", r.seq)
}

func (e *Engine) newRun(cfg *RunConfig) (*run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &run{threshold: e.ConfidenceThreshold(), reviewThresholds: map[TermCategory]float64{}}
	var (
		patterns []string
		policies map[TermCategory]ActionType
	)
	if cfg != nil {
		if cfg.ConfidenceThreshold != nil {
			r.threshold = *cfg.ConfidenceThreshold
		}
		r.semanticThreshold = cfg.SemanticThreshold
		for k, v := range cfg.ReviewThresholdsByCategory {
			r.reviewThresholds[k] = v
		}
		patterns = cfg.PlaceholderPatterns
		policies = cfg.ActionPoliciesByCategory
	}
	actions, err := NewActionClassifier(patterns, policies)
	if err != nil {
		return nil, err
	}
	r.actions = actions
	return r, nil
}

// Align matches every term of ts to at most one clause of tmpl. cfg may be
// nil. An error is returned only for nil inputs or an invalid cfg.
func (e *Engine) Align(ctx context.Context, ts *TermExtractionResult, tmpl *TemplateAnalysisResult, cfg *RunConfig) (*AlignmentResult, error) {
	if ts == nil || tmpl == nil {
		return nil, ErrNilInput
	}
	r, err := e.newRun(cfg)
	if err != nil {
		return nil, fmt.Errorf("run config: %w", err)
	}
	start := time.Now()
	e.logger.Info("alignment started",
		"ts_document_id", ts.DocumentID,
		"template_document_id", tmpl.DocumentID,
		"terms", len(ts.Terms),
		"clauses", len(tmpl.Clauses),
		"semantic", e.SemanticAvailable(),
	)

	result := &AlignmentResult{
		TSDocumentID:       ts.DocumentID,
		TemplateDocumentID: tmpl.DocumentID,
		Matches:            []AlignmentMatch{},
		UnmatchedTerms:     []string{},
		UnmatchedClauses:   []string{},
	}
	matched := make(map[string]struct{})
	for i := range ts.Terms {
		term := &ts.Terms[i]
		candidates := e.candidatesFor(ctx, r, term, tmpl.Clauses)
		if len(candidates) == 0 {
			result.UnmatchedTerms = append(result.UnmatchedTerms, e.unmatchedTermEntry(term))
			e.observer.TermUnmatched(term.Category)
			e.logger.Debug("term unmatched", "term_id", term.ID, "category", term.Category)
			continue
		}
		m := e.buildMatch(r, term, candidates[0])
		result.Matches = append(result.Matches, m)
		matched[m.ClauseID] = struct{}{}
		e.observer.MatchAccepted(m.Method, m.Action, m.NeedsReview)
		e.logger.Debug("term matched",
			"term_id", term.ID,
			"clause_id", m.ClauseID,
			"method", m.Method,
			"confidence", m.Confidence,
			"action", m.Action,
			"needs_review", m.NeedsReview,
		)
	}
	for _, c := range tmpl.Clauses {
		if _, ok := matched[c.ID]; !ok {
			result.UnmatchedClauses = append(result.UnmatchedClauses, c.ID)
		}
	}
	result.Timestamp = e.now().UTC()

	summary := result.Summary()
	elapsed := time.Since(start)
	e.observer.RunCompleted(summary, elapsed)
	e.logger.Info("alignment finished",
		"matched", summary.Matched,
		"needs_review", summary.NeedsReview,
		"unmatched_terms", summary.UnmatchedTerms,
		"unmatched_clauses", summary.UnmatchedClauses,
		"elapsed", elapsed,
	)
	return result, nil
}

// candidatesFor runs the rule matcher and, when it is not confident enough,
// the semantic matcher. The merged list is sorted by confidence.
func (e *Engine) candidatesFor(ctx context.Context, r *run, term *ExtractedTerm, clauses []AnalyzedClause) []Candidate {
	candidates := withClauses(e.rules.Match(ctx, term, clauses))
	if len(candidates) > 0 && candidates[0].Confidence >= r.thresholdFor(term.Category) {
		return candidates
	}
	if !e.SemanticAvailable() {
		return candidates
	}
	e.observer.SemanticFallback()
	return mergeCandidates(candidates, e.semanticMatch(ctx, r, term, clauses))
}

func (e *Engine) semanticMatch(ctx context.Context, r *run, term *ExtractedTerm, clauses []AnalyzedClause) []Candidate {
	if r != nil && r.semanticThreshold != nil {
		if tm, ok := e.semantic.(thresholdMatcher); ok {
			return tm.MatchAbove(ctx, term, clauses, *r.semanticThreshold)
		}
		e.logger.Debug("semantic matcher has no per-call threshold, using its own",
			"term_id", term.ID,
			"semantic_threshold", *r.semanticThreshold,
		)
	}
	return e.semantic.Match(ctx, term, clauses)
}

// withClauses drops candidates that carry no clause.
func withClauses(candidates []Candidate) []Candidate {
	out := candidates[:0:0]
	for _, c := range candidates {
		if c.Clause != nil {
			out = append(out, c)
		}
	}
	return out
}

// mergeCandidates appends extra candidates for clauses not already present.
func mergeCandidates(base, extra []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]Candidate, 0, len(base)+len(extra))
	for _, c := range base {
		if c.Clause == nil {
			continue
		}
		seen[c.Clause.ID] = struct{}{}
		out = append(out, c)
	}
	for _, c := range extra {
		if c.Clause == nil {
			continue
		}
		if _, ok := seen[c.Clause.ID]; ok {
			continue
		}
		seen[c.Clause.ID] = struct{}{}
		out = append(out, c)
	}
	sortCandidates(out)
	return out
}

func (e *Engine) buildMatch(r *run, term *ExtractedTerm, best Candidate) AlignmentMatch {
	conf := clamp01(best.Confidence)
	seg := bestSegment(term, best.Clause)
	m := AlignmentMatch{
		ID:          r.nextMatchID(),
		TermID:      term.ID,
		ClauseID:    best.Clause.ID,
		Method:      best.Method,
		Confidence:  conf,
		Action:      r.actions.Classify(term, seg),
		NeedsReview: conf < r.thresholdFor(term.Category),
	}
	if seg != nil {
		id := seg.ID
		m.FillableSegmentID = &id
	}
	return m
}

func (e *Engine) unmatchedTermEntry(term *ExtractedTerm) string {
	cats := ExpectedClauseCategories(term.Category)
	names := "any"
	if len(cats) > 0 {
		parts := make([]string, len(cats))
		for i, c := range cats {
			parts[i] = string(c)
		}
		names = strings.Join(parts, ", ")
	}
	return fmt.Sprintf(
		"Term '%s' (ID: %s, Category: %s) could not be matched. Suggested review: Look for clauses in categories %s. Source: %s",
		term.Title, term.ID, term.Category, names, term.SourceSectionID,
	)
}

// MatchCandidates returns up to limit rule and semantic candidates for term,
// deduplicated by clause and ranked by confidence. It is meant for reviewers
// choosing between alternatives; limit <= 0 means DefaultMaxResults.
func (e *Engine) MatchCandidates(ctx context.Context, term *ExtractedTerm, clauses []AnalyzedClause, limit int) []Candidate {
	if term == nil {
		return nil
	}
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	candidates := withClauses(e.rules.Match(ctx, term, clauses))
	if e.SemanticAvailable() {
		candidates = mergeCandidates(candidates, e.semantic.Match(ctx, term, clauses))
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
