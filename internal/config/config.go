// Package config loads coderev configuration from defaults, an optional
// YAML file, and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Provider    ProviderConfig    `yaml:"provider"`
	Cache       CacheConfig       `yaml:"cache"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Session     SessionConfig     `yaml:"session"`
	Store       StoreConfig       `yaml:"store"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	Debug       bool              `yaml:"debug"`
}

// ProviderConfig selects and tunes the LLM provider.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseUrl,omitempty"`
	// MaxInFlight caps concurrent provider calls across all requests.
	// Requests beyond the cap queue in FIFO order.
	MaxInFlight int           `yaml:"maxInFlight"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"maxRetries"`
}

// CacheConfig bounds the review result cache.
type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"` // zero disables expiry
}

// ScoringConfig holds the tunable scoring coefficients. The shape of the
// formula is fixed; the coefficients are configuration.
type ScoringConfig struct {
	// Severity base impact values, 0-100.
	InfoBase     float64 `yaml:"infoBase"`
	MinorBase    float64 `yaml:"minorBase"`
	MajorBase    float64 `yaml:"majorBase"`
	CriticalBase float64 `yaml:"criticalBase"`
	// MinVisibility floors the team-bias discount so historically
	// dismissed categories are demoted, never fully suppressed.
	MinVisibility float64 `yaml:"minVisibility"`
	// VisibilityFloor drops findings whose impact falls below it.
	VisibilityFloor float64 `yaml:"visibilityFloor"`
	// CorroborationBoost is added to confidence per corroborating
	// analyzer, capped at 1.0.
	CorroborationBoost float64 `yaml:"corroborationBoost"`
}

// SessionConfig bounds conversational follow-up context.
type SessionConfig struct {
	// MaxTurns is the number of most recent turns preserved verbatim
	// when history is truncated.
	MaxTurns int `yaml:"maxTurns"`
	// MaxContextChars bounds the assembled prompt context.
	MaxContextChars int `yaml:"maxContextChars"`
}

// StoreConfig locates the persistence database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// FingerprintConfig controls unit fingerprinting.
type FingerprintConfig struct {
	IgnoreWhitespace bool `yaml:"ignoreWhitespace"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Name:        "openai",
			Model:       "gpt-4o",
			MaxInFlight: 4,
			Timeout:     60 * time.Second,
			MaxRetries:  3,
		},
		Cache: CacheConfig{
			Capacity: 256,
			TTL:      24 * time.Hour,
		},
		Scoring: ScoringConfig{
			InfoBase:           15,
			MinorBase:          40,
			MajorBase:          70,
			CriticalBase:       100,
			MinVisibility:      0.15,
			VisibilityFloor:    2,
			CorroborationBoost: 0.1,
		},
		Session: SessionConfig{
			MaxTurns:        8,
			MaxContextChars: 16000,
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
	}
}

// Load reads the config file at path (or the default location when path is
// empty), applying defaults for anything unset and env overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = defaultConfigPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No file is fine; defaults + env apply.
	case err != nil:
		return cfg, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CODEREV_PROVIDER"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("CODEREV_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("CODEREV_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("CODEREV_MAX_INFLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Provider.MaxInFlight = n
		}
	}
	if v := os.Getenv("CODEREV_STORE"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("CODEREV_DEBUG"); v != "" {
		cfg.Debug = v == "1" || v == "true"
	}
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "coderev", "config.yaml")
	}
	return "coderev.yaml"
}

func defaultStorePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "coderev", "coderev.db")
	}
	return "coderev.db"
}
