// Package embedding provides the text embedding backends used by the
// semantic matcher.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"yashubustudio/termalign/alignment"
	"yashubustudio/termalign/internal/logger"
)

// Embedder is an alignment.Embedder that owns external resources.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelID() string
	Close() error
}

var (
	ErrClosed       = errors.New("embedder is closed")
	ErrEmptyVector  = errors.New("embedder returned an empty vector")
	errUnknownModel = errors.New("unknown embedder provider")
)

// New builds the embedder selected by cfg. Provider "none" yields a nil
// Embedder and no error. Remote providers are wrapped in Resilient.
func New(ctx context.Context, cfg alignment.EmbedderConfig, log logger.Logger) (Embedder, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "ort":
		o, err := NewOrtEmbedder(cfg.ORT)
		if err != nil {
			return nil, err
		}
		return o, nil
	case "gemini":
		g, err := NewGeminiEmbedder(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		return NewResilient(g, cfg.Resilience, log), nil
	case "openai":
		o, err := NewOpenAIEmbedder(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		return NewResilient(o, cfg.Resilience, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownModel, cfg.Provider)
	}
}

// EmbedTexts embeds texts sequentially with e.
func EmbedTexts(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
