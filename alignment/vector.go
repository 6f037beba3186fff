package alignment

import (
	"context"
	"math"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// ScoredClause is a nearest-neighbour hit returned by a vector backend.
type ScoredClause struct {
	ClauseID string
	Score    float64
}

// VectorSearcher finds clauses whose stored embeddings are closest to query.
// Results must have Score >= minScore and be ordered by descending score.
type VectorSearcher interface {
	SearchClauses(ctx context.Context, query []float32, minScore float64, limit int) ([]ScoredClause, error)
}

// ClauseVector is a clause embedding ready to be stored.
type ClauseVector struct {
	ClauseID  string
	SectionID string
	Title     string
	Category  ClauseCategory
	Text      string
	Vector    []float32
}

// ClauseIndexer persists clause embeddings for later search.
type ClauseIndexer interface {
	UpsertClauses(ctx context.Context, templateID string, vectors []ClauseVector) error
}

// CosineSimilarity returns the cosine of the angle between a and b, capped at
// 1. Vectors of different length or with zero norm score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Min(1, dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
