package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/feedguard/feedguard/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Monitor.MaxConcurrent == 0 {
		cfg.Monitor.MaxConcurrent = 8
	}
	if cfg.Healing.MaxAttempts == 0 {
		cfg.Healing.MaxAttempts = 3
	}
	if cfg.Healing.AttemptTimeout == 0 {
		cfg.Healing.AttemptTimeout = 10 * time.Second
	}
	if cfg.Knowledge.PriorStrength == 0 {
		cfg.Knowledge.PriorStrength = 20
	}
	if cfg.Knowledge.RefreshInterval == 0 {
		cfg.Knowledge.RefreshInterval = 5 * time.Minute
	}
	if cfg.Alerting.WarningInterval == 0 {
		cfg.Alerting.WarningInterval = time.Hour
	}
	if cfg.Alerting.RequiredFailedFraction == 0 {
		cfg.Alerting.RequiredFailedFraction = 0.5
	}
	if cfg.Cache.WarmTTL == 0 {
		cfg.Cache.WarmTTL = 5 * time.Minute
	}
	if cfg.Checkpoint.Interval == 0 {
		cfg.Checkpoint.Interval = 30 * time.Second
	}

	for i := range cfg.Sources {
		if cfg.Sources[i].Timeout == 0 {
			cfg.Sources[i].Timeout = 10 * time.Second
		}
	}

	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].Interval == 0 {
			cfg.Endpoints[i].Interval = 30 * time.Second
		}
		if cfg.Endpoints[i].Timeout == 0 {
			cfg.Endpoints[i].Timeout = 10 * time.Second
		}
		if cfg.Endpoints[i].Criticality == "" {
			cfg.Endpoints[i].Criticality = domain.CriticalityOptional
		}
	}
}

func validate(cfg *AppConfig) error {
	sources := make(map[string]bool, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if s.Name == "" {
			return fmt.Errorf("source with empty name")
		}
		if sources[s.Name] {
			return fmt.Errorf("duplicate source %q", s.Name)
		}
		sources[s.Name] = true
	}

	seen := make(map[string]bool, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		if ep.Source == "" || ep.Symbol == "" {
			return fmt.Errorf("endpoint with empty source or symbol")
		}
		if !sources[ep.Source] {
			return fmt.Errorf("endpoint %s references unknown source %q", ep.Key(), ep.Source)
		}
		if seen[ep.Key()] {
			return fmt.Errorf("duplicate endpoint %s", ep.Key())
		}
		seen[ep.Key()] = true
		if ep.Criticality != domain.CriticalityRequired && ep.Criticality != domain.CriticalityOptional {
			return fmt.Errorf("endpoint %s has invalid criticality %q", ep.Key(), ep.Criticality)
		}
	}
	return nil
}
