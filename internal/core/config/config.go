package config

import (
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
	redisclient "github.com/feedguard/feedguard/internal/infra/redis"
	"github.com/feedguard/feedguard/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Sources    []SourceConfig     `yaml:"sources"`
	Endpoints  []domain.Endpoint  `yaml:"endpoints"`
	Redis      redisclient.Config `yaml:"redis"`
	Logging    LoggingConfig      `yaml:"logging"`
	Database   postgres.Config    `yaml:"database"`
	Monitor    MonitorConfig      `yaml:"monitor"`
	Healing    HealingConfig      `yaml:"healing"`
	Knowledge  KnowledgeConfig    `yaml:"knowledge"`
	Alerting   AlertingConfig     `yaml:"alerting"`
	Cache      CacheConfig        `yaml:"cache"`
	Checkpoint CheckpointConfig   `yaml:"checkpoint"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SourceConfig holds settings for one upstream data provider. An
// endpoint's Source field must name one of these.
type SourceConfig struct {
	Name         string        `yaml:"name"`
	URL          string        `yaml:"url"`
	AlternateURL string        `yaml:"alternate_url"` // optional fallback provider
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAge       time.Duration `yaml:"max_age"` // payload staleness bound, 0 = no check
}

// MonitorConfig bounds the check scheduler.
type MonitorConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// HealingConfig bounds the remediation engine.
type HealingConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// KnowledgeConfig tunes the learning layer.
type KnowledgeConfig struct {
	PriorStrength   int64         `yaml:"prior_strength"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// AlertingConfig tunes the alert lifecycle.
type AlertingConfig struct {
	WarningInterval        time.Duration `yaml:"warning_interval"`
	RequiredFailedFraction float64       `yaml:"required_failed_fraction"`
}

// CacheConfig tunes the fallback chain.
type CacheConfig struct {
	WarmTTL time.Duration `yaml:"warm_ttl"`
}

// CheckpointConfig tunes the persistence worker.
type CheckpointConfig struct {
	Interval time.Duration `yaml:"interval"`
}
