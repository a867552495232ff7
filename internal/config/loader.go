package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults, applies
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the GRIOT_* environment variables onto cfg. Environment
// values win over the file, so deployments can keep credentials out of YAML.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GRIOT_PROJECT_ID"); v != "" {
		cfg.Model.ProjectID = v
	}
	if v := os.Getenv("GRIOT_REGION"); v != "" {
		cfg.Model.Region = v
	}
	if v := os.Getenv("GRIOT_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("GRIOT_POSTGRES_DSN"); v != "" {
		cfg.Store.PostgresDSN = v
	}
	if v := os.Getenv("GRIOT_MEDIA_BUCKET"); v != "" {
		cfg.Store.MediaBucket = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Model.Provider != "" && !cfg.Model.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("model.provider %q is invalid; valid values: gemini, openai", cfg.Model.Provider))
	}
	if cfg.Model.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("model.pool_size %d must not be negative", cfg.Model.PoolSize))
	}

	if cfg.Session.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("session.max_concurrent %d must be positive", cfg.Session.MaxConcurrent))
	}
	if cfg.Audio.SampleRateIn <= 0 || cfg.Audio.SampleRateOut <= 0 {
		errs = append(errs, fmt.Errorf("audio sample rates must be positive, got in=%d out=%d", cfg.Audio.SampleRateIn, cfg.Audio.SampleRateOut))
	}

	if cfg.Stream.HighWatermark <= 0 {
		errs = append(errs, fmt.Errorf("stream.high_watermark %d must be positive", cfg.Stream.HighWatermark))
	}
	if cfg.Stream.LowWatermark < 0 || cfg.Stream.LowWatermark >= cfg.Stream.HighWatermark {
		errs = append(errs, fmt.Errorf("stream.low_watermark %d must be in [0, high_watermark)", cfg.Stream.LowWatermark))
	}

	if cfg.Agents.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("agents.timeout_seconds %d must be positive", cfg.Agents.TimeoutSeconds))
	}
	if t := cfg.Agents.CulturalConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("agents.cultural_confidence_threshold %.2f is out of range [0, 1]", t))
	}
	if t := cfg.Agents.CulturalRejectThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("agents.cultural_reject_threshold %.2f is out of range [0, 1]", t))
	}
	if cfg.Agents.CulturalRejectThreshold > cfg.Agents.CulturalConfidenceThreshold {
		errs = append(errs, fmt.Errorf("agents.cultural_reject_threshold %.2f must not exceed cultural_confidence_threshold %.2f",
			cfg.Agents.CulturalRejectThreshold, cfg.Agents.CulturalConfidenceThreshold))
	}

	// Soft issues: the server still starts, degraded.
	if cfg.Model.APIKey == "" && cfg.Model.ProjectID == "" {
		slog.Warn("no model credentials configured; model calls will fail to authenticate")
	}
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; sessions will not survive a restart")
	}

	return errors.Join(errs...)
}
