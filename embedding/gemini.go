package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"yashubustudio/termalign/alignment"
)

const geminiTaskType = "SEMANTIC_SIMILARITY"

type contentEmbedder interface {
	EmbedContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.EmbedContentConfig,
	) (*genai.EmbedContentResponse, error)
}

// GeminiEmbedder calls the Gemini embedding API.
type GeminiEmbedder struct {
	models    contentEmbedder
	model     string
	dimension int32
	cache     *Cache
}

// NewGeminiEmbedder creates a Gemini API client from cfg.
func NewGeminiEmbedder(ctx context.Context, cfg alignment.GeminiConfig) (*GeminiEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newGeminiEmbedder(client.Models, cfg.Model, cfg.Dimension)
}

func newGeminiEmbedder(models contentEmbedder, model string, dimension int) (*GeminiEmbedder, error) {
	cache, err := NewCache("gemini/"+model, "", defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{
		models:    models,
		model:     model,
		dimension: int32(dimension),
		cache:     cache,
	}, nil
}

// ModelID returns the Gemini model name.
func (g *GeminiEmbedder) ModelID() string {
	return g.model
}

// Close is a no-op; the HTTP client needs no teardown.
func (g *GeminiEmbedder) Close() error {
	return nil
}

// Embed returns the embedding of text, serving repeats from memory.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	normalized := alignment.NormalizeText(text)
	if vec, ok := g.cache.Get(normalized); ok {
		return vec, nil
	}
	cfg := &genai.EmbedContentConfig{TaskType: geminiTaskType}
	if g.dimension > 0 {
		dim := g.dimension
		cfg.OutputDimensionality = &dim
	}
	resp, err := g.models.EmbedContent(ctx, g.model, genai.Text(normalized), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyVector
	}
	vec := resp.Embeddings[0].Values
	_ = g.cache.Put(normalized, vec)
	return cloneVector(vec), nil
}
