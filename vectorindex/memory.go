package vectorindex

import (
	"context"
	"sort"
	"sync"

	"yashubustudio/termalign/alignment"
)

type memoryItem struct {
	clauseID string
	vector   []float32
}

// Memory is a brute-force index with cosine similarity.
type Memory struct {
	mu        sync.RWMutex
	templates map[string][]memoryItem
}

// NewMemory constructs an empty index.
func NewMemory() *Memory {
	return &Memory{templates: make(map[string][]memoryItem)}
}

// UpsertClauses replaces or adds the given clauses of a template.
func (m *Memory) UpsertClauses(ctx context.Context, templateID string, vectors []alignment.ClauseVector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.templates[templateID]
	pos := make(map[string]int, len(items))
	for i, it := range items {
		pos[it.clauseID] = i
	}
	for _, v := range vectors {
		item := memoryItem{clauseID: v.ClauseID, vector: cloneVector(v.Vector)}
		if i, ok := pos[v.ClauseID]; ok {
			items[i] = item
			continue
		}
		pos[v.ClauseID] = len(items)
		items = append(items, item)
	}
	m.templates[templateID] = items
	return nil
}

// Size returns the number of vectors stored for a template.
func (m *Memory) Size(templateID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.templates[templateID])
}

// Search scores every stored clause of the template and returns the top hits
// at or above minScore.
func (m *Memory) Search(ctx context.Context, templateID string, query []float32, minScore float64, limit int) ([]alignment.ScoredClause, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	items := m.templates[templateID]
	m.mu.RUnlock()
	if len(items) == 0 || len(query) == 0 || limit <= 0 {
		return nil, nil
	}
	hits := make([]alignment.ScoredClause, 0, len(items))
	for _, it := range items {
		score := alignment.CosineSimilarity(query, it.vector)
		if score < minScore {
			continue
		}
		hits = append(hits, alignment.ScoredClause{ClauseID: it.clauseID, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *Memory) Close() error { return nil }

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
