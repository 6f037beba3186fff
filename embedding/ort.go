package embedding

import (
	"context"
	"path/filepath"
	"sync"

	"yashubustudio/termalign/alignment"
	"yashubustudio/termalign/emb"
)

type textEncoder interface {
	Encode(text string) ([]float32, error)
	Close()
}

// OrtEmbedder runs the local ONNX encoder behind a Cache.
type OrtEmbedder struct {
	mu      sync.RWMutex
	enc     textEncoder
	modelID string
	cache   *Cache
}

// NewOrtEmbedder initializes the encoder and prepares the caches.
func NewOrtEmbedder(cfg alignment.ORTConfig) (*OrtEmbedder, error) {
	if cfg.ModelID == "" && cfg.ModelPath != "" {
		cfg.ModelID = filepath.Base(cfg.ModelPath)
	}
	cache, err := NewCache(cfg.ModelID, cfg.CacheDir, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	encoder := &emb.Encoder{}
	if err := encoder.Init(emb.Config{
		OrtDLL:        cfg.OrtDLL,
		ModelPath:     cfg.ModelPath,
		TokenizerPath: cfg.TokenizerPath,
		MaxSeqLen:     cfg.MaxSeqLen,
	}); err != nil {
		return nil, err
	}
	return newOrtEmbedder(encoder, cfg.ModelID, cache), nil
}

func newOrtEmbedder(enc textEncoder, modelID string, cache *Cache) *OrtEmbedder {
	return &OrtEmbedder{enc: enc, modelID: modelID, cache: cache}
}

// Close releases ORT resources.
func (o *OrtEmbedder) Close() error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.enc != nil {
		o.enc.Close()
		o.enc = nil
	}
	return nil
}

// ModelID returns the identifier used for cache keys.
func (o *OrtEmbedder) ModelID() string {
	return o.modelID
}

// Embed embeds a single string with caching.
func (o *OrtEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.enc == nil {
		return nil, ErrClosed
	}
	normalized := alignment.NormalizeText(text)
	if vec, ok := o.cache.Get(normalized); ok {
		return vec, nil
	}
	vec, err := o.enc.Encode(normalized)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	_ = o.cache.Put(normalized, vec)
	return cloneVector(vec), nil
}
