// Package config provides configuration management for the TradeGuard control plane.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Read the configuration file
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the configuration (${VAR} syntax)
	expanded := os.ExpandEnv(string(data))

	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables take precedence over file values
	v.SetEnvPrefix("TRADEGUARD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional fields
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func LoadWithDefaults(configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix("TRADEGUARD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Read and expand the configuration file if it exists
	if data, err := os.ReadFile(configPath); err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// If file doesn't exist, continue with defaults and environment variables

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults installs the illustrative defaults for every tunable threshold.
// All of these are configuration data, never hard-coded at the call sites.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tradeguard")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("learning.low_sample_floor", 10)
	v.SetDefault("learning.medium_sample_floor", 30)
	v.SetDefault("learning.high_sample_floor", 100)
	v.SetDefault("learning.low_blend_weight", 0.3)
	v.SetDefault("learning.medium_blend_weight", 0.7)
	v.SetDefault("learning.high_blend_weight", 1.0)

	v.SetDefault("excursion.checkpoint_seconds", 120)
	v.SetDefault("excursion.bucket_edges", []float64{0, 2, 4, 6, 8})
	v.SetDefault("excursion.stop_out_floor", 0.70)
	v.SetDefault("excursion.sample_size_floor", 20)

	v.SetDefault("optimizer.improvement_margin", 0.10)
	v.SetDefault("optimizer.cache_ttl_seconds", 300)

	v.SetDefault("backup.root_dir", "data/artifacts")
	v.SetDefault("backup.max_snapshots", 10)

	v.SetDefault("canary.min_trades", 10)
	v.SetDefault("canary.min_elapsed_minutes", 120)
	v.SetDefault("canary.observation_window_hours", 24)
	v.SetDefault("canary.win_rate_drop_trigger", 0.20)
	v.SetDefault("canary.drawdown_floor", 500)
	v.SetDefault("canary.sharpe_drop_trigger", 0.30)
	v.SetDefault("canary.catastrophic_win_rate_floor", 0.25)
	v.SetDefault("canary.catastrophic_drawdown", 2000)

	v.SetDefault("promotion.enabled", true)
	v.SetDefault("promotion.baseline_window_hours", 168)
	v.SetDefault("promotion.evaluation_schedule", "*/5 * * * *")
	v.SetDefault("promotion.recommendation_schedule", "0 * * * *")

	v.SetDefault("pipeline.enabled", false)
	v.SetDefault("pipeline.url", "http://localhost:9000/artifacts")
	v.SetDefault("pipeline.poll_interval_seconds", 300)
	v.SetDefault("pipeline.timeout_seconds", 30)
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.rate_limit_per_second", 1)
	v.SetDefault("pipeline.download_dir", "data/incoming")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("stream.enabled", true)
	v.SetDefault("stream.port", 8081)

	v.SetDefault("features.auto_promotion_enabled", true)
	v.SetDefault("features.excursion_analysis_enabled", true)
	v.SetDefault("features.artifact_intake_enabled", false)
	v.SetDefault("features.persistent_ledger_enabled", false)
}

// ReloadFromEnv reloads the full configuration from the path given in
// TRADEGUARD_CONFIG_PATH, if set.
func ReloadFromEnv(cfg *Config) error {
	if envPath := os.Getenv("TRADEGUARD_CONFIG_PATH"); envPath != "" {
		newCfg, err := Load(envPath)
		if err != nil {
			return err
		}
		*cfg = *newCfg
	}
	return nil
}
