// File: internal/config/config.go

// Package config centralizes all tunables for the analysis pipeline. Values
// come from defaults, an optional config.yaml, HINDSIGHT_* environment
// variables, and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Ranker   RankerConfig   `mapstructure:"ranker" yaml:"ranker"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // console or json
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes, per rotated file
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// AnalysisConfig bounds the pipeline's resource usage.
type AnalysisConfig struct {
	// MaxCommits caps how far back the history scan walks.
	MaxCommits int `mapstructure:"max_commits" yaml:"max_commits"`
	// MaxFileSize is the largest source file the intent extractor will read.
	MaxFileSize int64 `mapstructure:"max_file_size" yaml:"max_file_size"`
	// MaxDiffBytes is the per-commit diff text ceiling; longer diffs are
	// truncated and marked.
	MaxDiffBytes int `mapstructure:"max_diff_bytes" yaml:"max_diff_bytes"`
	// ExcludedPatterns are doublestar globs excluded from scanning and
	// extraction.
	ExcludedPatterns []string `mapstructure:"excluded_patterns" yaml:"excluded_patterns"`
	// Concurrency bounds the fan-out worker pool for per-file extraction and
	// per-commit diff retrieval.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// OpTimeout is the per-operation timeout for filesystem and repository
	// reads; a timed-out unit is recorded as failed-and-skipped.
	OpTimeout time.Duration `mapstructure:"op_timeout" yaml:"op_timeout"`
	// Deadline is the overall pipeline budget. On expiry the pipeline
	// returns a degraded result assembled from whatever completed.
	Deadline time.Duration `mapstructure:"deadline" yaml:"deadline"`
	// ContextCommits caps how many ranked commits the assembled bug context
	// carries downstream.
	ContextCommits int `mapstructure:"context_commits" yaml:"context_commits"`
}

// RankerConfig exposes the scoring weights and selection thresholds. The
// defaults are calibrated so that any file-overlapping commit outranks every
// non-overlapping one regardless of the secondary signals.
type RankerConfig struct {
	OverlapWeight    float64 `mapstructure:"overlap_weight" yaml:"overlap_weight"`
	ProximityWeight  float64 `mapstructure:"proximity_weight" yaml:"proximity_weight"`
	RecencyWeight    float64 `mapstructure:"recency_weight" yaml:"recency_weight"`
	DivergenceWeight float64 `mapstructure:"divergence_weight" yaml:"divergence_weight"`
	KeywordWeight    float64 `mapstructure:"keyword_weight" yaml:"keyword_weight"`
	// RecencyHalfLife controls the exponential age decay of the recency
	// signal.
	RecencyHalfLife time.Duration `mapstructure:"recency_half_life" yaml:"recency_half_life"`
	// ConfidenceThreshold is the minimum score the top candidate must reach
	// to be selected as primary.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	// SelectionMargin is the required score gap between the top two
	// candidates; a smaller gap yields the ambiguous-tie outcome.
	SelectionMargin float64 `mapstructure:"selection_margin" yaml:"selection_margin"`
	// RelatedWindow is how many top-ranked commits are considered when
	// grouping related multi-file changes.
	RelatedWindow int `mapstructure:"related_window" yaml:"related_window"`
}

// LLMConfig configures the external explanation generator.
type LLMConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	RPS         float64       `mapstructure:"rps" yaml:"rps"`
	Burst       int           `mapstructure:"burst" yaml:"burst"`
}

// CacheConfig configures the persisted result cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir     string        `mapstructure:"dir" yaml:"dir"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
	// MemoryEntries sizes the in-memory LRU layer per namespace.
	MemoryEntries int `mapstructure:"memory_entries" yaml:"memory_entries"`
}

// DefaultConfigDir returns ~/.hindsight, falling back to the working
// directory when the home directory cannot be resolved.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hindsight"
	}
	return filepath.Join(home, ".hindsight")
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "hindsight")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Analysis --
	v.SetDefault("analysis.max_commits", 50)
	v.SetDefault("analysis.max_file_size", 1<<20)
	v.SetDefault("analysis.max_diff_bytes", 64<<10)
	v.SetDefault("analysis.excluded_patterns", []string{"**/*.pyc", "**/__pycache__/**", ".git/**"})
	v.SetDefault("analysis.concurrency", 8)
	v.SetDefault("analysis.op_timeout", "10s")
	v.SetDefault("analysis.deadline", "2m")
	v.SetDefault("analysis.context_commits", 50)

	// -- Ranker --
	v.SetDefault("ranker.overlap_weight", 10.0)
	v.SetDefault("ranker.proximity_weight", 2.0)
	v.SetDefault("ranker.recency_weight", 1.0)
	v.SetDefault("ranker.divergence_weight", 1.5)
	v.SetDefault("ranker.keyword_weight", 0.5)
	v.SetDefault("ranker.recency_half_life", "168h")
	v.SetDefault("ranker.confidence_threshold", 10.0)
	v.SetDefault("ranker.selection_margin", 0.5)
	v.SetDefault("ranker.related_window", 5)

	// -- LLM --
	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.backoff_base", "1s")
	v.SetDefault("llm.rps", 1.0)
	v.SetDefault("llm.burst", 2)

	// -- Cache --
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", filepath.Join(DefaultConfigDir(), "cache"))
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.memory_entries", 128)
}

// NewConfigFromViper creates a validated configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// API keys come from the environment only, never the config file.
	_ = v.BindEnv("llm.api_key", "HINDSIGHT_API_KEY", "GEMINI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Analysis.MaxCommits < 1 {
		return fmt.Errorf("analysis.max_commits must be at least 1")
	}
	if c.Analysis.MaxFileSize < 1 {
		return fmt.Errorf("analysis.max_file_size must be at least 1 byte")
	}
	if c.Analysis.Concurrency < 1 {
		return fmt.Errorf("analysis.concurrency must be a positive integer")
	}
	if c.Analysis.ContextCommits < 1 {
		return fmt.Errorf("analysis.context_commits must be at least 1")
	}
	if c.Ranker.SelectionMargin < 0 {
		return fmt.Errorf("ranker.selection_margin must be non-negative")
	}
	if c.Ranker.RecencyHalfLife <= 0 {
		return fmt.Errorf("ranker.recency_half_life must be a positive duration")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be non-negative")
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be a positive duration")
	}
	return nil
}
