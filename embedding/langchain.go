package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"yashubustudio/termalign/alignment"
)

// LangchainEmbedder adapts any langchaingo embedder.
type LangchainEmbedder struct {
	id    string
	impl  embeddings.Embedder
	cache *Cache
}

// WrapLangchain constructs an adapter around an existing langchaingo embedder.
func WrapLangchain(id string, impl embeddings.Embedder) (*LangchainEmbedder, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("embedder id is required")
	}
	if impl == nil {
		return nil, fmt.Errorf("embedder %q: implementation is required", id)
	}
	cache, err := NewCache(id, "", defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &LangchainEmbedder{id: id, impl: impl, cache: cache}, nil
}

// NewOpenAIEmbedder builds an OpenAI (or compatible) embedder via langchaingo.
func NewOpenAIEmbedder(cfg alignment.OpenAIConfig) (*LangchainEmbedder, error) {
	opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	impl, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to construct openai embedder: %w", err)
	}
	return WrapLangchain("openai/"+cfg.Model, impl)
}

func (l *LangchainEmbedder) ModelID() string { return l.id }

func (l *LangchainEmbedder) Close() error { return nil }

// Embed delegates to EmbedQuery.
func (l *LangchainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	normalized := alignment.NormalizeText(text)
	if vec, ok := l.cache.Get(normalized); ok {
		return vec, nil
	}
	vec, err := l.impl.EmbedQuery(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: %w", l.id, err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	_ = l.cache.Put(normalized, vec)
	return cloneVector(vec), nil
}
