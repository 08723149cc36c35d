package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
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

	for i, p := range cfg.Providers {
		if len(p.Models) == 0 {
			return nil, fmt.Errorf("provider %q has no models", p.Name)
		}
		if cfg.Providers[i].Timeout == 0 {
			cfg.Providers[i].Timeout = 30 * time.Second
		}
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Content.Timeout == 0 {
		cfg.Content.Timeout = 15 * time.Second
	}
	if cfg.Content.MaxConcurrent == 0 {
		cfg.Content.MaxConcurrent = 5
	}
	if cfg.Content.TimelineItems == 0 {
		cfg.Content.TimelineItems = 50
	}
	if cfg.Pipeline.AnalyzeWorkers == 0 {
		cfg.Pipeline.AnalyzeWorkers = 5
	}
	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 10
	}
	if cfg.Pipeline.BatchRetries == 0 {
		cfg.Pipeline.BatchRetries = 3
	}
	if cfg.Pipeline.BatchRetryDelay == 0 {
		cfg.Pipeline.BatchRetryDelay = 2 * time.Second
	}
	if cfg.Pipeline.HighTraffic == 0 {
		cfg.Pipeline.HighTraffic = 60 * time.Second
	}
	for i := range cfg.Topics {
		if cfg.Topics[i].MaxPages == 0 {
			cfg.Topics[i].MaxPages = 3
		}
	}
}
