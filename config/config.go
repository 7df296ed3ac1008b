package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/SAMithila/doc-intelligence/internal/domain"
)

// DirName is the per-corpus state directory.
const DirName = ".docint"

// Config holds all configuration for docint.
type Config struct {
	Index      IndexConfig      `yaml:"index"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Expansion  ExpansionConfig  `yaml:"expansion"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// IndexConfig holds ingestion and lexical scoring configuration.
type IndexConfig struct {
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
	ChunkSize    int      `yaml:"chunk_size"`    // characters per chunk
	ChunkOverlap int      `yaml:"chunk_overlap"` // characters shared by neighbouring chunks
	K1           float64  `yaml:"k1"`
	B            float64  `yaml:"b"`
}

// RetrieveConfig holds fusion and query-time configuration.
type RetrieveConfig struct {
	TopK             int           `yaml:"top_k"`
	RRFK             int           `yaml:"rrf_k"`
	WeightLexical    float64       `yaml:"weight_lexical"`
	WeightSemantic   float64       `yaml:"weight_semantic"`
	CandidatePool    int           `yaml:"candidate_pool"` // 0 = max(3*top_k, 20)
	DedupJaccard     float64       `yaml:"dedup_jaccard"`  // 0 = disabled
	PerSignalTimeout time.Duration `yaml:"per_signal_timeout"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
	CacheSize        int           `yaml:"cache_size"` // 0 = disabled
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	Rerank           bool          `yaml:"rerank"` // LLM grading of the fused top-k
	RerankTimeout    time.Duration `yaml:"rerank_timeout"`
}

// ExpansionConfig controls when and how queries are rewritten for the semantic channel.
type ExpansionConfig struct {
	Mode           string        `yaml:"mode"`     // "auto", "on", "off"
	Strategy       string        `yaml:"strategy"` // "hyde", "multi_query"
	WordThreshold  int           `yaml:"word_threshold"`
	ScoreThreshold float64       `yaml:"score_threshold"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxVariations  int           `yaml:"max_variations"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Provider  string `yaml:"provider"` // "openai", "ollama", "hash"
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
	Workers   int    `yaml:"workers"`
}

// GenerationConfig holds the generative provider used for query expansion.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"` // "openai", "ollama", "echo", "none"
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text", "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Includes:     []string{"**/*.md", "**/*.txt", "**/*.rst"},
			Excludes:     []string{"**/node_modules/**", "**/vendor/**", "**/.git/**", "**/" + DirName + "/**"},
			ChunkSize:    512,
			ChunkOverlap: 50,
			K1:           1.5,
			B:            0.75,
		},
		Retrieve: RetrieveConfig{
			TopK:             5,
			RRFK:             60,
			WeightLexical:    0.5,
			WeightSemantic:   0.5,
			PerSignalTimeout: 5 * time.Second,
			QueryTimeout:     30 * time.Second,
			CacheSize:        128,
			CacheTTL:         5 * time.Minute,
			RerankTimeout:    10 * time.Second,
		},
		Expansion: ExpansionConfig{
			Mode:           "auto",
			Strategy:       "hyde",
			WordThreshold:  3,
			ScoreThreshold: 0.5,
			Timeout:        10 * time.Second,
			MaxVariations:  3,
		},
		Embedding: EmbeddingConfig{
			Enabled:   true,
			Provider:  "hash",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 256,
			BatchSize: 64,
			Workers:   4,
		},
		Generation: GenerationConfig{
			Provider:    "echo",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.7,
			MaxTokens:   150,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects configurations the retriever cannot run with.
// Every returned error wraps domain.ErrBadConfig.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{domain.ErrBadConfig}, args...)...)
	}

	if c.Index.ChunkSize <= 0 {
		return bad("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return bad("index.chunk_overlap must be in [0, chunk_size), got %d", c.Index.ChunkOverlap)
	}
	if !finite(c.Index.K1) || !finite(c.Index.B) || c.Index.K1 < 0 || c.Index.B < 0 || c.Index.B > 1 {
		return bad("index.k1/b out of range (k1=%g, b=%g)", c.Index.K1, c.Index.B)
	}

	for _, p := range append(append([]string{}, c.Index.Includes...), c.Index.Excludes...) {
		if !doublestar.ValidatePattern(p) {
			return bad("malformed glob pattern %q", p)
		}
	}

	r := c.Retrieve
	if r.TopK <= 0 {
		return bad("retrieve.top_k must be positive, got %d", r.TopK)
	}
	if r.RRFK <= 0 {
		return bad("retrieve.rrf_k must be positive, got %d", r.RRFK)
	}
	if err := ValidateWeights(r.WeightLexical, r.WeightSemantic); err != nil {
		return err
	}
	if r.CandidatePool < 0 || !finite(r.DedupJaccard) || r.DedupJaccard < 0 || r.DedupJaccard > 1 {
		return bad("retrieve.candidate_pool/dedup_jaccard out of range")
	}
	if r.PerSignalTimeout < 0 || r.QueryTimeout < 0 || r.CacheTTL < 0 || r.CacheSize < 0 || r.RerankTimeout < 0 {
		return bad("retrieve timeouts and cache settings must not be negative")
	}

	e := c.Expansion
	if _, err := domain.ParseExpansionMode(e.Mode); err != nil {
		return err
	}
	if _, err := domain.ParseStrategy(e.Strategy); err != nil {
		return err
	}
	if !finite(e.ScoreThreshold) {
		return bad("expansion.score_threshold must be a finite number, got %g", e.ScoreThreshold)
	}
	if e.WordThreshold < 0 || e.ScoreThreshold < 0 || e.Timeout < 0 || e.MaxVariations < 0 {
		return bad("expansion thresholds must not be negative")
	}

	switch c.Embedding.Provider {
	case "openai", "ollama", "hash":
	default:
		return bad("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Generation.Provider {
	case "openai", "ollama", "echo", "none", "":
	default:
		return bad("unknown generation provider %q", c.Generation.Provider)
	}
	if r.Rerank && (c.Generation.Provider == "none" || c.Generation.Provider == "") {
		return bad("retrieve.rerank needs a generation provider")
	}
	return nil
}

// ValidateWeights checks that fusion weights are non-negative and sum to 1.
func ValidateWeights(lexical, semantic float64) error {
	if !finite(lexical) || !finite(semantic) {
		return fmt.Errorf("%w: fusion weights must be finite numbers (lexical=%g, semantic=%g)",
			domain.ErrBadConfig, lexical, semantic)
	}
	if lexical < 0 || semantic < 0 {
		return fmt.Errorf("%w: fusion weights must not be negative (lexical=%g, semantic=%g)",
			domain.ErrBadConfig, lexical, semantic)
	}
	if math.Abs(lexical+semantic-1) > 0.01 {
		return fmt.Errorf("%w: fusion weights must sum to 1.0, got %g",
			domain.ErrBadConfig, lexical+semantic)
	}
	return nil
}

// finite rejects the NaN and Inf values YAML accepts as .nan and .inf.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Load loads configuration from a YAML file and validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docint.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "docint.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, DirName, "index.db")
}

// EnsureStateDir ensures the .docint directory exists.
func EnsureStateDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DirName), 0755)
}
