// Package config loads the engine configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration that would produce meaningless scores.
// It is fatal at run start.
var ErrInvalid = errors.New("invalid configuration")

const weightSumEpsilon = 1e-6

// Weights are the composite-score components. They must sum to 1 so
// scores stay comparable across runs.
type Weights struct {
	Semantic   float64 `yaml:"semantic"`
	Engagement float64 `yaml:"engagement"`
	Recency    float64 `yaml:"recency"`
}

// SourceConfig declares one content source to monitor.
type SourceConfig struct {
	Kind    string `yaml:"kind"`    // hackernews | reddit | youtube
	Name    string `yaml:"name"`    // display/identity name
	Query   string `yaml:"query"`   // hackernews search query
	Feed    string `yaml:"feed"`    // reddit/youtube feed URL
	Enabled *bool  `yaml:"enabled"` // nil means enabled
}

// IsEnabled treats a missing flag as enabled.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type Config struct {
	// Store
	DBPath   string `yaml:"db_path"`
	CacheDir string `yaml:"cache_dir"`

	// Keywords declared in the file are merged into the store on load,
	// preserving declaration order.
	Keywords []string `yaml:"keywords"`

	Sources []SourceConfig `yaml:"sources"`

	// Matching
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // τ for semantic matches
	DuplicateThreshold  float64 `yaml:"duplicate_threshold"`  // stricter than τ
	MinScore            float64 `yaml:"min_score"`            // relevance gate
	ScoreWeights        Weights `yaml:"score_weights"`

	// Recency decay
	RecencyHalfLifeHours int     `yaml:"recency_half_life_hours"`
	RecencyFloor         float64 `yaml:"recency_floor"`

	// Dedup
	DuplicateWindowHours int `yaml:"duplicate_window_hours"`

	// Trends
	TrendWindowDays int     `yaml:"trend_window_days"`
	RisingDelta     float64 `yaml:"rising_delta"`
	FallingDelta    float64 `yaml:"falling_delta"`
	TrendScoreShare float64 `yaml:"trend_score_share"` // weight of mean score vs count in the delta

	// Embeddings
	OllamaURL        string `yaml:"ollama_url"`
	EmbeddingModel   string `yaml:"embedding_model"`
	AcceleratedIndex bool   `yaml:"accelerated_index"`

	// Retry/backoff for source fetches
	RetryAttempts     int `yaml:"retry_attempts"`
	RetryBaseWaitSecs int `yaml:"retry_base_wait_secs"`
	RetryMaxWaitSecs  int `yaml:"retry_max_wait_secs"`

	// Ingestion
	ItemMaxAgeHours    int `yaml:"item_max_age_hours"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs"`
	MaxItemsPerSource  int `yaml:"max_items_per_source"`
	MaxGeminiRequests  int `yaml:"max_gemini_requests"`

	// Optional Gemini digest in reports (env only)
	GeminiAPIKey string `yaml:"-"`
}

// Default returns the built-in tunables. The exact constants are
// configuration, not contract; the property tests must hold regardless
// of them.
func Default() *Config {
	return &Config{
		DBPath:               "signalsift.db",
		CacheDir:             ".signalsift",
		SimilarityThreshold:  0.75,
		DuplicateThreshold:   0.88,
		MinScore:             0.25,
		ScoreWeights:         Weights{Semantic: 0.5, Engagement: 0.3, Recency: 0.2},
		RecencyHalfLifeHours: 48,
		RecencyFloor:         0.1,
		DuplicateWindowHours: 48,
		TrendWindowDays:      7,
		RisingDelta:          0.5,
		FallingDelta:         -0.4,
		TrendScoreShare:      0.4,
		OllamaURL:            "http://localhost:11434",
		EmbeddingModel:       "nomic-embed-text",
		AcceleratedIndex:     true,
		RetryAttempts:        3,
		RetryBaseWaitSecs:    1,
		RetryMaxWaitSecs:     60,
		ItemMaxAgeHours:      14 * 24,
		RequestTimeoutSecs:   30,
		MaxItemsPerSource:    100,
		MaxGeminiRequests:    3,
	}
}

func (c *Config) RecencyHalfLife() time.Duration {
	return time.Duration(c.RecencyHalfLifeHours) * time.Hour
}

func (c *Config) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowHours) * time.Hour
}

func (c *Config) TrendWindow() time.Duration {
	return time.Duration(c.TrendWindowDays) * 24 * time.Hour
}

func (c *Config) RetryBaseWait() time.Duration {
	return time.Duration(c.RetryBaseWaitSecs) * time.Second
}

func (c *Config) RetryMaxWait() time.Duration {
	return time.Duration(c.RetryMaxWaitSecs) * time.Second
}

func (c *Config) ItemMaxAge() time.Duration {
	return time.Duration(c.ItemMaxAgeHours) * time.Hour
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// Load reads the YAML file at path (a missing file is not an error, the
// defaults apply), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			dec := yaml.NewDecoder(f)
			decErr := dec.Decode(cfg)
			f.Close()
			if decErr != nil {
				return nil, fmt.Errorf("parse %s: %w", path, decErr)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.DBPath = getEnvOrDefault("SIGNALSIFT_DB", c.DBPath)
	c.CacheDir = getEnvOrDefault("SIGNALSIFT_CACHE_DIR", c.CacheDir)
	c.OllamaURL = getEnvOrDefault("OLLAMA_URL", c.OllamaURL)
	c.EmbeddingModel = getEnvOrDefault("EMBEDDING_MODEL", c.EmbeddingModel)
	c.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", c.RetryAttempts)
	c.MaxGeminiRequests = getEnvIntOrDefault("MAX_GEMINI_REQUESTS", c.MaxGeminiRequests)
	if v := os.Getenv("ACCELERATED_INDEX"); v != "" {
		c.AcceleratedIndex = v == "true"
	}
	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SimilarityThreshold = f
		}
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Validate rejects configurations that would silently corrupt scoring.
func (c *Config) Validate() error {
	sum := c.ScoreWeights.Semantic + c.ScoreWeights.Engagement + c.ScoreWeights.Recency
	if math.Abs(sum-1.0) > weightSumEpsilon {
		return fmt.Errorf("%w: score weights must sum to 1, got %.4f", ErrInvalid, sum)
	}
	if c.ScoreWeights.Semantic < 0 || c.ScoreWeights.Engagement < 0 || c.ScoreWeights.Recency < 0 {
		return fmt.Errorf("%w: score weights must be non-negative", ErrInvalid)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold %.2f out of [0,1]", ErrInvalid, c.SimilarityThreshold)
	}
	if c.DuplicateThreshold < 0 || c.DuplicateThreshold > 1 {
		return fmt.Errorf("%w: duplicate_threshold %.2f out of [0,1]", ErrInvalid, c.DuplicateThreshold)
	}
	if c.RecencyFloor < 0 || c.RecencyFloor > 1 {
		return fmt.Errorf("%w: recency_floor %.2f out of [0,1]", ErrInvalid, c.RecencyFloor)
	}
	if c.RisingDelta <= 0 {
		return fmt.Errorf("%w: rising_delta must be positive", ErrInvalid)
	}
	if c.FallingDelta >= 0 {
		return fmt.Errorf("%w: falling_delta must be negative", ErrInvalid)
	}
	if c.RecencyHalfLifeHours <= 0 {
		return fmt.Errorf("%w: recency_half_life_hours must be positive", ErrInvalid)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("%w: retry_attempts must be at least 1", ErrInvalid)
	}
	return nil
}
