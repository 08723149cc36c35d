package config

import (
	"time"

	"leadscout/internal/core/domain"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig     `yaml:"server"`
	Topics    []TopicConfig    `yaml:"topics"`
	Providers []ProviderConfig `yaml:"providers"`
	Content   ContentConfig    `yaml:"content"`
	Pipeline  PipelineConfig   `yaml:"pipeline"`
	Redis     RedisConfig      `yaml:"redis"`
	Database  DatabaseConfig   `yaml:"database"`
	Logging   LoggingConfig    `yaml:"logging"`
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

// RedisConfig holds the job broker connection settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// TopicConfig holds settings for one discovery topic.
type TopicConfig struct {
	ID                  string        `yaml:"id"`
	Name                string        `yaml:"name"`
	Keywords            []string      `yaml:"keywords"`
	Categories          []string      `yaml:"categories"`
	SecondaryCategories []string      `yaml:"secondary_categories"`
	PromptTemplate      string        `yaml:"prompt_template"`
	SecondaryPrompt     string        `yaml:"secondary_prompt_template"`
	MaxPages            int           `yaml:"max_pages"`
	ScanInterval        time.Duration `yaml:"scan_interval"` // 0 = manual trigger only
}

// ProviderConfig holds settings for one AI provider, in priority order.
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Models  []string      `yaml:"models"` // ordered, first is preferred
	Timeout time.Duration `yaml:"timeout"`
}

// ContentConfig holds the external content API settings.
type ContentConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Platform      string        `yaml:"platform"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"` // parallel timeline fetches
	TimelineItems int           `yaml:"timeline_items"` // max items per timeline fetch
}

// PipelineConfig holds stage worker and classifier tuning.
type PipelineConfig struct {
	AnalyzeWorkers  int           `yaml:"analyze_workers"` // analyze-stage pool size
	BatchSize       int           `yaml:"batch_size"`      // accounts per AI request
	BatchRetries    int           `yaml:"batch_retries"`   // whole-batch retry count
	BatchRetryDelay time.Duration `yaml:"batch_retry_delay"`
	HighTraffic     time.Duration `yaml:"high_traffic"` // router continuous-error window
}

// Topic converts a config entry to the domain type.
func (t TopicConfig) Topic() domain.TopicConfig {
	cats := make([]domain.Category, 0, len(t.Categories))
	for _, c := range t.Categories {
		cats = append(cats, domain.Category(c))
	}
	secondary := make([]domain.Category, 0, len(t.SecondaryCategories))
	for _, c := range t.SecondaryCategories {
		secondary = append(secondary, domain.Category(c))
	}
	return domain.TopicConfig{
		ID:                      t.ID,
		Name:                    t.Name,
		Keywords:                t.Keywords,
		Categories:              cats,
		SecondaryCategories:     secondary,
		PromptTemplate:          t.PromptTemplate,
		SecondaryPromptTemplate: t.SecondaryPrompt,
		MaxPages:                t.MaxPages,
		ScanInterval:            t.ScanInterval,
	}
}
