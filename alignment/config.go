package alignment

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "termalign.yaml"

// Environment variables that override secrets from the config file.
const (
	EnvGeminiAPIKey = "TERMALIGN_GEMINI_API_KEY"
	EnvOpenAIAPIKey = "TERMALIGN_OPENAI_API_KEY"
	EnvVectorDSN    = "TERMALIGN_VECTOR_DSN"
)

// RunConfig tunes a single Align call. Nil or empty fields keep the engine's
// settings.
type RunConfig struct {
	ConfidenceThreshold        *float64                    `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty"`
	SemanticThreshold          *float64                    `yaml:"semantic_threshold,omitempty" json:"semantic_threshold,omitempty"`
	ActionPoliciesByCategory   map[TermCategory]ActionType `yaml:"action_policies_by_category,omitempty" json:"action_policies_by_category,omitempty"`
	ReviewThresholdsByCategory map[TermCategory]float64    `yaml:"review_thresholds_by_category,omitempty" json:"review_thresholds_by_category,omitempty"`
	PlaceholderPatterns        []string                    `yaml:"placeholder_patterns,omitempty" json:"placeholder_patterns,omitempty"`
}

// Validate rejects out-of-range thresholds, unknown categories, policies
// other than insert/override and patterns that do not compile.
func (c *RunConfig) Validate() error {
	if c == nil {
		return nil
	}
	if c.ConfidenceThreshold != nil {
		if err := checkThreshold("confidence_threshold", *c.ConfidenceThreshold); err != nil {
			return err
		}
	}
	if c.SemanticThreshold != nil {
		if err := checkThreshold("semantic_threshold", *c.SemanticThreshold); err != nil {
			return err
		}
	}
	for cat, action := range c.ActionPoliciesByCategory {
		if _, err := ParseTermCategory(string(cat)); err != nil {
			return fmt.Errorf("action_policies_by_category: %w", err)
		}
		if action != ActionInsert && action != ActionOverride {
			return fmt.Errorf("action_policies_by_category: %w: %s=%q", ErrInvalidPolicy, cat, action)
		}
	}
	for cat, v := range c.ReviewThresholdsByCategory {
		if _, err := ParseTermCategory(string(cat)); err != nil {
			return fmt.Errorf("review_thresholds_by_category: %w", err)
		}
		if err := checkThreshold("review_thresholds_by_category."+string(cat), v); err != nil {
			return err
		}
	}
	if _, err := compilePlaceholderPatterns(c.PlaceholderPatterns); err != nil {
		return fmt.Errorf("placeholder_patterns: %w", err)
	}
	return nil
}

func checkThreshold(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%s %v: %w", name, v, ErrInvalidThreshold)
	}
	return nil
}

// SemanticConfig controls the embedding matcher built by the CLI.
type SemanticConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gte=0,lte=1"`
	MaxResults          int     `yaml:"max_results" validate:"gte=1"`
}

// ORTConfig configures the local ONNX Runtime embedder and its caches.
type ORTConfig struct {
	OrtDLL        string `yaml:"ort_dll"`
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	MaxSeqLen     int    `yaml:"max_seq_len" validate:"gte=0"`
	CacheDir      string `yaml:"cache_dir"`
	CacheSize     int    `yaml:"cache_size" validate:"gte=0"`
	ModelID       string `yaml:"model_id"`
}

// GeminiConfig configures the Gemini embedding backend.
type GeminiConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension" validate:"gte=0"`
}

// OpenAIConfig configures an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// ResilienceConfig bounds calls to a remote embedder.
type ResilienceConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	Retries            int           `yaml:"retries" validate:"gte=0"`
	RetryWait          time.Duration `yaml:"retry_wait"`
	ErrorPercentToOpen int           `yaml:"error_percent_to_open" validate:"gte=0,lte=100"`
	MinRequestsToOpen  int           `yaml:"min_requests_to_open" validate:"gte=0"`
	OpenWait           time.Duration `yaml:"open_wait"`
}

// EmbedderConfig selects and configures the embedding backend.
type EmbedderConfig struct {
	Provider   string           `yaml:"provider" validate:"oneof=none ort gemini openai"`
	ORT        ORTConfig        `yaml:"ort"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// VectorIndexConfig selects where clause embeddings are stored and searched.
type VectorIndexConfig struct {
	Provider   string        `yaml:"provider" validate:"oneof=none memory pgvector qdrant"`
	DSN        string        `yaml:"dsn" validate:"required_if=Provider pgvector,required_if=Provider qdrant"`
	Table      string        `yaml:"table"`
	Collection string        `yaml:"collection"`
	Dimension  int           `yaml:"dimension" validate:"gte=0"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Config is the on-disk configuration used by the CLI.
type Config struct {
	Alignment   RunConfig         `yaml:"alignment"`
	Semantic    SemanticConfig    `yaml:"semantic"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	RulesFile   string            `yaml:"rules_file"`
	Log         LogConfig         `yaml:"log"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults populates zero values with sensible defaults. LoadConfig
// decodes files over DefaultConfig instead, so zeros written in a file are
// kept.
func (c *Config) ApplyDefaults() {
	if c.Semantic.SimilarityThreshold == 0 {
		c.Semantic.SimilarityThreshold = DefaultEngineSemanticThreshold
	}
	if c.Semantic.MaxResults == 0 {
		c.Semantic.MaxResults = DefaultMaxResults
	}
	if c.Embedder.Provider == "" {
		c.Embedder.Provider = "none"
	}
	if c.Embedder.ORT.MaxSeqLen == 0 {
		c.Embedder.ORT.MaxSeqLen = 512
	}
	if c.Embedder.ORT.CacheSize == 0 {
		c.Embedder.ORT.CacheSize = 4096
	}
	if c.Embedder.Gemini.Model == "" {
		c.Embedder.Gemini.Model = "text-embedding-004"
	}
	if c.Embedder.OpenAI.Model == "" {
		c.Embedder.OpenAI.Model = "text-embedding-3-small"
	}
	r := &c.Embedder.Resilience
	if r.Timeout == 0 {
		r.Timeout = 10 * time.Second
	}
	if r.Retries == 0 {
		r.Retries = 2
	}
	if r.RetryWait == 0 {
		r.RetryWait = 200 * time.Millisecond
	}
	if r.ErrorPercentToOpen == 0 {
		r.ErrorPercentToOpen = 50
	}
	if r.MinRequestsToOpen == 0 {
		r.MinRequestsToOpen = 5
	}
	if r.OpenWait == 0 {
		r.OpenWait = 30 * time.Second
	}
	if c.VectorIndex.Provider == "" {
		c.VectorIndex.Provider = "none"
	}
	if c.VectorIndex.Table == "" {
		c.VectorIndex.Table = "clause_embeddings"
	}
	if c.VectorIndex.Collection == "" {
		c.VectorIndex.Collection = "clause_embeddings"
	}
	if c.VectorIndex.Timeout == 0 {
		c.VectorIndex.Timeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// ApplyEnv overrides secrets with values from the environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvGeminiAPIKey)); v != "" {
		c.Embedder.Gemini.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOpenAIAPIKey)); v != "" {
		c.Embedder.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvVectorDSN)); v != "" {
		c.VectorIndex.DSN = v
	}
}

var configValidator = validator.New()

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Alignment.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.VectorIndex.Provider == "pgvector" || c.VectorIndex.Provider == "qdrant" {
		if c.VectorIndex.Dimension <= 0 {
			return fmt.Errorf("invalid config: vector_index.dimension is required for %s", c.VectorIndex.Provider)
		}
	}
	return nil
}

// LoadConfig reads a YAML (or JSON) config file. A missing file yields the
// defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if cfg.Embedder.ORT.CacheDir != "" {
		if err := os.MkdirAll(cfg.Embedder.ORT.CacheDir, 0o755); err != nil {
			return cfg, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return cfg, nil
}

// SaveConfig persists configuration to disk.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
