// Package vectorindex stores clause embeddings per template and answers
// nearest-neighbour queries for the semantic matcher.
package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"yashubustudio/termalign/alignment"
)

// Store is a clause-embedding backend partitioned by template id.
type Store interface {
	alignment.ClauseIndexer
	Search(ctx context.Context, templateID string, query []float32, minScore float64, limit int) ([]alignment.ScoredClause, error)
	Close() error
}

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	errUnknownProvider   = errors.New("unknown vector index provider")
)

// Scoped binds a Store to one template so it can serve as an
// alignment.VectorSearcher.
type Scoped struct {
	store      Store
	templateID string
}

func Scope(store Store, templateID string) *Scoped {
	return &Scoped{store: store, templateID: templateID}
}

// SearchClauses searches the bound template only.
func (s *Scoped) SearchClauses(ctx context.Context, query []float32, minScore float64, limit int) ([]alignment.ScoredClause, error) {
	return s.store.Search(ctx, s.templateID, query, minScore, limit)
}

// New opens the backend selected by cfg. Provider "none" yields a nil Store.
func New(ctx context.Context, cfg alignment.VectorIndexConfig) (Store, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(), nil
	case "pgvector":
		s, err := NewPGVector(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "qdrant":
		s, err := NewQdrant(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownProvider, cfg.Provider)
	}
}
