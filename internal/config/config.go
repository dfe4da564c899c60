// Package config provides configuration management for the TradeGuard control plane.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Learning  LearningConfig  `mapstructure:"learning" validate:"required"`
	Excursion ExcursionConfig `mapstructure:"excursion" validate:"required"`
	Optimizer OptimizerConfig `mapstructure:"optimizer" validate:"required"`
	Backup    BackupConfig    `mapstructure:"backup" validate:"required"`
	Canary    CanaryConfig    `mapstructure:"canary" validate:"required"`
	Promotion PromotionConfig `mapstructure:"promotion" validate:"required"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" validate:"required"`
	Metrics   MetricsConfig   `mapstructure:"metrics" validate:"required"`
	Stream    StreamConfig    `mapstructure:"stream" validate:"required"`
	Features  FeaturesConfig  `mapstructure:"features" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// LearningConfig represents the confidence tier thresholds used by every
// statistical consumer.
type LearningConfig struct {
	LowSampleFloor    int     `mapstructure:"low_sample_floor" validate:"required,gt=0"`
	MediumSampleFloor int     `mapstructure:"medium_sample_floor" validate:"required,gt=0"`
	HighSampleFloor   int     `mapstructure:"high_sample_floor" validate:"required,gt=0"`
	LowBlendWeight    float64 `mapstructure:"low_blend_weight" validate:"gte=0,lte=1"`
	MediumBlendWeight float64 `mapstructure:"medium_blend_weight" validate:"gte=0,lte=1"`
	HighBlendWeight   float64 `mapstructure:"high_blend_weight" validate:"gte=0,lte=1"`
}

// ExcursionConfig represents adverse-excursion threshold derivation settings
type ExcursionConfig struct {
	CheckpointSeconds int       `mapstructure:"checkpoint_seconds" validate:"required,gt=0"`
	BucketEdges       []float64 `mapstructure:"bucket_edges" validate:"required,min=2,bucketedges"`
	StopOutFloor      float64   `mapstructure:"stop_out_floor" validate:"required,gt=0,lte=1"`
	SampleSizeFloor   int       `mapstructure:"sample_size_floor" validate:"required,gt=0"`
}

// OptimizerConfig represents parameter recommendation settings
type OptimizerConfig struct {
	ImprovementMargin float64 `mapstructure:"improvement_margin" validate:"required,gt=0"`
	CacheTTLSeconds   int     `mapstructure:"cache_ttl_seconds" validate:"required,gt=0"`
}

// BackupConfig represents artifact snapshot storage settings
type BackupConfig struct {
	RootDir      string `mapstructure:"root_dir" validate:"required"`
	MaxSnapshots int    `mapstructure:"max_snapshots" validate:"required,gt=0"`
}

// CanaryConfig represents post-promotion observation settings
type CanaryConfig struct {
	MinTrades                int     `mapstructure:"min_trades" validate:"required,gt=0"`
	MinElapsedMinutes        int     `mapstructure:"min_elapsed_minutes" validate:"required,gt=0"`
	ObservationWindowHours   int     `mapstructure:"observation_window_hours" validate:"required,gt=0"`
	WinRateDropTrigger       float64 `mapstructure:"win_rate_drop_trigger" validate:"required,gt=0,lt=1"`
	DrawdownFloor            float64 `mapstructure:"drawdown_floor" validate:"required,gt=0"`
	SharpeDropTrigger        float64 `mapstructure:"sharpe_drop_trigger" validate:"required,gt=0,lt=1"`
	CatastrophicWinRateFloor float64 `mapstructure:"catastrophic_win_rate_floor" validate:"gte=0,lt=1"`
	CatastrophicDrawdown     float64 `mapstructure:"catastrophic_drawdown" validate:"required,gt=0"`
}

// PromotionConfig represents promotion lifecycle settings
type PromotionConfig struct {
	Enabled                bool   `mapstructure:"enabled"`
	BaselineWindowHours    int    `mapstructure:"baseline_window_hours" validate:"required,gt=0"`
	EvaluationSchedule     string `mapstructure:"evaluation_schedule" validate:"required"`
	RecommendationSchedule string `mapstructure:"recommendation_schedule" validate:"required"`
}

// PipelineConfig represents the training-pipeline artifact feed
type PipelineConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	URL                 string `mapstructure:"url" validate:"required,url"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds" validate:"required,gt=0"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	RetryAttempts       int    `mapstructure:"retry_attempts" validate:"gte=0"`
	RateLimitPerSecond  float64 `mapstructure:"rate_limit_per_second" validate:"required,gt=0"`
	AuthToken           string `mapstructure:"auth_token"`
	DownloadDir         string `mapstructure:"download_dir" validate:"required"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// StreamConfig represents the websocket event stream
type StreamConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// FeaturesConfig represents feature flags
type FeaturesConfig struct {
	AutoPromotionEnabled      bool `mapstructure:"auto_promotion_enabled"`
	ExcursionAnalysisEnabled  bool `mapstructure:"excursion_analysis_enabled"`
	ArtifactIntakeEnabled     bool `mapstructure:"artifact_intake_enabled"`
	PersistentLedgerEnabled   bool `mapstructure:"persistent_ledger_enabled"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// BaselineWindow returns the promotion baseline window as a duration
func (c *Config) BaselineWindow() time.Duration {
	return time.Duration(c.Promotion.BaselineWindowHours) * time.Hour
}

// ExcursionCheckpoint returns the excursion checkpoint as a duration
func (c *Config) ExcursionCheckpoint() time.Duration {
	return time.Duration(c.Excursion.CheckpointSeconds) * time.Second
}
