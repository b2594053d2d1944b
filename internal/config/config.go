// Package config loads and defaults the memory bank engine's tunables from
// .cortex/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in the engine's design notes (spec §7).
// It is loaded once at process start and passed down explicitly — never held
// in a package-level mutable singleton.
type Config struct {
	BankRoot string `yaml:"bank_root"`

	FSStore    FSStoreConfig    `yaml:"fsstore"`
	TokenBudget TokenBudgetConfig `yaml:"token_budget"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Quality    QualityConfig    `yaml:"quality"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Pattern    PatternConfig    `yaml:"pattern"`
	Learning   LearningConfig   `yaml:"learning"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// FSStoreConfig governs the file layer (C1): locking, rate limiting, and the
// subprocess timeout used by external tools the bank shells out to (fsnotify
// watches are always-on and have no timeout of their own).
type FSStoreConfig struct {
	LockTimeoutSeconds      int `yaml:"lock_timeout_s"`
	RateOpsPerSecond        int `yaml:"rate_ops_per_sec"`
	RateWaitSeconds         int `yaml:"rate_wait_s"`
	SubprocessTimeoutSeconds int `yaml:"subprocess_timeout_s"`
}

// TokenBudgetConfig is the default budget the optimizer (C8) uses absent an
// explicit caller-supplied budget.
type TokenBudgetConfig struct {
	Default int `yaml:"default"`
}

// ScoringConfig weights the four components of relevance scoring (C7):
// keyword match, dependency proximity, recency, and quality.
type ScoringConfig struct {
	KeywordWeight    float64 `yaml:"w_k"`
	DependencyWeight float64 `yaml:"w_d"`
	RecencyWeight    float64 `yaml:"w_r"`
	QualityWeight    float64 `yaml:"w_q"`
	CacheCapacity    int     `yaml:"cache_capacity"`
}

// QualityConfig weights the five components of the planner's (C11) quality
// score: completeness, consistency, freshness, structure, efficiency.
type QualityConfig struct {
	CompletenessWeight float64 `yaml:"completeness"`
	ConsistencyWeight  float64 `yaml:"consistency"`
	FreshnessWeight    float64 `yaml:"freshness"`
	StructureWeight    float64 `yaml:"structure"`
	EfficiencyWeight   float64 `yaml:"efficiency"`
}

// SimilarityConfig holds the two thresholds the duplication detector (C9)
// and the planner's consolidation suggestions (C11) compare ratios against.
type SimilarityConfig struct {
	DuplicationThreshold   float64 `yaml:"t_sim"`
	ConsolidationThreshold float64 `yaml:"t_cons"`
}

// PatternConfig governs the access-log window the pattern analyzer (C10)
// replays.
type PatternConfig struct {
	WindowSize int `yaml:"window_size"`
}

// LearningConfig holds the confidence-adjustment coefficients (C13) and the
// retention cap on stored feedback records.
type LearningConfig struct {
	Alpha        float64 `yaml:"alpha"`
	Beta         float64 `yaml:"beta"`
	RetentionCap int     `yaml:"retention_cap"`
}

// LoggingConfig mirrors internal/logging.Initialize's parameters.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns every default named in the engine's design notes.
func DefaultConfig() *Config {
	return &Config{
		BankRoot: "memory-bank",

		FSStore: FSStoreConfig{
			LockTimeoutSeconds:       5,
			RateOpsPerSecond:         100,
			RateWaitSeconds:          1,
			SubprocessTimeoutSeconds: 30,
		},

		TokenBudget: TokenBudgetConfig{
			Default: 100000,
		},

		Scoring: ScoringConfig{
			KeywordWeight:    0.40,
			DependencyWeight: 0.30,
			RecencyWeight:    0.20,
			QualityWeight:    0.10,
			CacheCapacity:    100,
		},

		Quality: QualityConfig{
			CompletenessWeight: 0.25,
			ConsistencyWeight:  0.25,
			FreshnessWeight:    0.15,
			StructureWeight:    0.20,
			EfficiencyWeight:   0.15,
		},

		Similarity: SimilarityConfig{
			DuplicationThreshold:   0.85,
			ConsolidationThreshold: 0.70,
		},

		Pattern: PatternConfig{
			WindowSize: 10000,
		},

		Learning: LearningConfig{
			Alpha:        0.3,
			Beta:         0.2,
			RetentionCap: 50000,
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults for
// any field left unset and to an all-defaults Config if the file is absent.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path as YAML, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config: create dir %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides lets operators override the bank root without editing
// the config file, the way a deployment script typically would.
func (c *Config) applyEnvOverrides() {
	if root := os.Getenv("CORTEX_BANK_ROOT"); root != "" {
		c.BankRoot = root
	}
	if v := os.Getenv("CORTEX_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
}

// Validate checks that scoring and quality weights are well-formed: every
// weight in [0, 1] and each group sums close enough to 1.0 to be a genuine
// convex combination (spec §4.6/§4.11's scoring formulas assume this).
func (c *Config) Validate() error {
	scoringSum := c.Scoring.KeywordWeight + c.Scoring.DependencyWeight +
		c.Scoring.RecencyWeight + c.Scoring.QualityWeight
	if scoringSum < 0.99 || scoringSum > 1.01 {
		return fmt.Errorf("config: scoring weights must sum to 1.0, got %.4f", scoringSum)
	}

	qualitySum := c.Quality.CompletenessWeight + c.Quality.ConsistencyWeight +
		c.Quality.FreshnessWeight + c.Quality.StructureWeight + c.Quality.EfficiencyWeight
	if qualitySum < 0.99 || qualitySum > 1.01 {
		return fmt.Errorf("config: quality weights must sum to 1.0, got %.4f", qualitySum)
	}

	if c.Similarity.DuplicationThreshold <= 0 || c.Similarity.DuplicationThreshold > 1 {
		return fmt.Errorf("config: similarity.t_sim must be in (0, 1], got %.4f", c.Similarity.DuplicationThreshold)
	}
	if c.Similarity.ConsolidationThreshold <= 0 || c.Similarity.ConsolidationThreshold > 1 {
		return fmt.Errorf("config: similarity.t_cons must be in (0, 1], got %.4f", c.Similarity.ConsolidationThreshold)
	}

	return nil
}
