package alignment

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	// DefaultSimilarityThreshold is the matcher's own default cutoff.
	DefaultSimilarityThreshold = 0.7
	// DefaultMaxResults bounds the candidates returned per term.
	DefaultMaxResults = 5
)

var errEmptyEmbedding = errors.New("embedder returned an empty vector")

// EmbeddingStatus describes how an embedding attempt ended.
type EmbeddingStatus int

const (
	EmbeddingOK EmbeddingStatus = iota
	// EmbeddingUnavailable means no embedder is configured.
	EmbeddingUnavailable
	// EmbeddingFailed means the embedder returned an error or an empty vector.
	EmbeddingFailed
)

func (s EmbeddingStatus) String() string {
	switch s {
	case EmbeddingOK:
		return "ok"
	case EmbeddingUnavailable:
		return "unavailable"
	default:
		return "failed"
	}
}

// EmbeddingOutcome is the result of embedding one text.
type EmbeddingOutcome struct {
	Vector []float32
	Status EmbeddingStatus
	Err    error
}

// OK reports whether Vector can be used.
func (o EmbeddingOutcome) OK() bool {
	return o.Status == EmbeddingOK
}

// SemanticMatcherOption configures a SemanticMatcher.
type SemanticMatcherOption func(*SemanticMatcher) error

// WithVectorSearcher delegates nearest-neighbour queries to a backend.
func WithVectorSearcher(s VectorSearcher) SemanticMatcherOption {
	return func(m *SemanticMatcher) error {
		m.searcher = s
		return nil
	}
}

// WithClauseIndexer sets where StoreClauseEmbeddings writes.
func WithClauseIndexer(ix ClauseIndexer) SemanticMatcherOption {
	return func(m *SemanticMatcher) error {
		m.indexer = ix
		return nil
	}
}

// WithSimilarityThreshold sets the minimum cosine similarity for a candidate.
func WithSimilarityThreshold(v float64) SemanticMatcherOption {
	return func(m *SemanticMatcher) error {
		return m.SetSimilarityThreshold(v)
	}
}

// WithMaxResults caps the number of candidates per term.
func WithMaxResults(n int) SemanticMatcherOption {
	return func(m *SemanticMatcher) error {
		if n <= 0 {
			return fmt.Errorf("max results must be positive, got %d", n)
		}
		m.maxResults = n
		return nil
	}
}

// WithSemanticLogger sets the logger used for degraded backends.
func WithSemanticLogger(l Logger) SemanticMatcherOption {
	return func(m *SemanticMatcher) error {
		if l != nil {
			m.logger = l
		}
		return nil
	}
}

// WithSemanticObserver reports backend fallbacks to o.
func WithSemanticObserver(o Observer) SemanticMatcherOption {
	return func(m *SemanticMatcher) error {
		if o != nil {
			m.observer = o
		}
		return nil
	}
}

// SemanticMatcher ranks clauses by embedding similarity. Without an embedder
// it is unavailable and returns no candidates.
type SemanticMatcher struct {
	embedder   Embedder
	searcher   VectorSearcher
	indexer    ClauseIndexer
	maxResults int
	logger     Logger
	observer   Observer

	mu        sync.RWMutex
	threshold float64
}

// NewSemanticMatcher builds a matcher around embedder, which may be nil.
func NewSemanticMatcher(embedder Embedder, opts ...SemanticMatcherOption) (*SemanticMatcher, error) {
	m := &SemanticMatcher{
		embedder:   embedder,
		maxResults: DefaultMaxResults,
		threshold:  DefaultSimilarityThreshold,
		logger:     nopLogger{},
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// IsAvailable reports whether an embedder is configured.
func (m *SemanticMatcher) IsAvailable() bool {
	return m != nil && m.embedder != nil
}

// SimilarityThreshold returns the current cutoff.
func (m *SemanticMatcher) SimilarityThreshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threshold
}

// SetSimilarityThreshold changes the cutoff; v must be within [0, 1].
func (m *SemanticMatcher) SetSimilarityThreshold(v float64) error {
	if err := checkThreshold("similarity threshold", v); err != nil {
		return err
	}
	m.mu.Lock()
	m.threshold = v
	m.mu.Unlock()
	return nil
}

// Match returns up to maxResults clauses whose similarity to the term's raw
// text is at least the threshold.
func (m *SemanticMatcher) Match(ctx context.Context, term *ExtractedTerm, clauses []AnalyzedClause) []Candidate {
	return m.MatchAbove(ctx, term, clauses, m.SimilarityThreshold())
}

// MatchAbove is Match with an explicit similarity cutoff for a single call.
func (m *SemanticMatcher) MatchAbove(ctx context.Context, term *ExtractedTerm, clauses []AnalyzedClause, threshold float64) []Candidate {
	if !m.IsAvailable() || term == nil || len(clauses) == 0 {
		return nil
	}
	query := m.embed(ctx, term.RawText)
	if !query.OK() {
		m.logger.Warn("term embedding failed", "term_id", term.ID, "status", query.Status.String(), "error", query.Err)
		return nil
	}
	if m.searcher != nil {
		res := m.search(ctx, query.Vector, threshold, clauses)
		if res.err == nil {
			return res.candidates
		}
		m.logger.Debug("vector search failed, ranking locally", "term_id", term.ID, "error", res.err)
		m.observer.BackendDegraded("vector_search")
	}
	return m.rankLocally(ctx, query.Vector, threshold, clauses)
}

func (m *SemanticMatcher) embed(ctx context.Context, text string) EmbeddingOutcome {
	if m.embedder == nil {
		return EmbeddingOutcome{Status: EmbeddingUnavailable}
	}
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return EmbeddingOutcome{Status: EmbeddingFailed, Err: err}
	}
	if len(vec) == 0 {
		return EmbeddingOutcome{Status: EmbeddingFailed, Err: errEmptyEmbedding}
	}
	return EmbeddingOutcome{Vector: vec, Status: EmbeddingOK}
}

type searchOutcome struct {
	candidates []Candidate
	err        error
}

func (m *SemanticMatcher) search(ctx context.Context, query []float32, threshold float64, clauses []AnalyzedClause) searchOutcome {
	hits, err := m.searcher.SearchClauses(ctx, query, threshold, m.maxResults)
	if err != nil {
		return searchOutcome{err: err}
	}
	byID := make(map[string]*AnalyzedClause, len(clauses))
	for i := range clauses {
		if _, seen := byID[clauses[i].ID]; !seen {
			byID[clauses[i].ID] = &clauses[i]
		}
	}
	candidates := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		clause, ok := byID[h.ClauseID]
		if !ok || h.Score < threshold {
			continue
		}
		candidates = append(candidates, Candidate{Clause: clause, Method: MethodSemantic, Confidence: clamp01(h.Score)})
	}
	sortCandidates(candidates)
	if len(candidates) > m.maxResults {
		candidates = candidates[:m.maxResults]
	}
	return searchOutcome{candidates: candidates}
}

func (m *SemanticMatcher) rankLocally(ctx context.Context, query []float32, threshold float64, clauses []AnalyzedClause) []Candidate {
	candidates := make([]Candidate, 0, len(clauses))
	for i := range clauses {
		clause := &clauses[i]
		vec := clause.Embedding
		if len(vec) == 0 {
			out := m.embed(ctx, clause.FullText)
			if !out.OK() {
				m.logger.Debug("clause embedding failed", "clause_id", clause.ID, "error", out.Err)
				continue
			}
			vec = out.Vector
		}
		sim := CosineSimilarity(query, vec)
		if sim >= threshold {
			candidates = append(candidates, Candidate{Clause: clause, Method: MethodSemantic, Confidence: clamp01(sim)})
		}
	}
	sortCandidates(candidates)
	if len(candidates) > m.maxResults {
		candidates = candidates[:m.maxResults]
	}
	return candidates
}

// StoreClauseEmbeddings embeds clauses lacking a vector and upserts all of
// them through the configured ClauseIndexer. It returns the number stored.
func (m *SemanticMatcher) StoreClauseEmbeddings(ctx context.Context, templateID string, clauses []AnalyzedClause) (int, error) {
	if !m.IsAvailable() || m.indexer == nil || len(clauses) == 0 {
		return 0, nil
	}
	vectors := make([]ClauseVector, 0, len(clauses))
	for i := range clauses {
		c := &clauses[i]
		vec := c.Embedding
		if len(vec) == 0 {
			out := m.embed(ctx, c.FullText)
			if !out.OK() {
				m.logger.Warn("skipping clause without embedding", "clause_id", c.ID, "error", out.Err)
				continue
			}
			vec = out.Vector
		}
		vectors = append(vectors, ClauseVector{
			ClauseID:  c.ID,
			SectionID: c.SectionID,
			Title:     c.Title,
			Category:  c.Category,
			Text:      c.FullText,
			Vector:    cloneVector(vec),
		})
	}
	if len(vectors) == 0 {
		return 0, nil
	}
	if err := m.indexer.UpsertClauses(ctx, templateID, vectors); err != nil {
		return 0, fmt.Errorf("store clause embeddings: %w", err)
	}
	return len(vectors), nil
}
