// Package config loads service configuration from an optional YAML file and the environment.
// Environment variables always override YAML values. Secrets only come from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for versionwatch.
type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	Server   ServerConfig   `yaml:"server"`
	Arango   ArangoConfig   `yaml:"arango"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	NATS     NATSConfig     `yaml:"nats"`
	AI       AIConfig       `yaml:"ai"`
	Tasks    TasksConfig    `yaml:"tasks"`
	Sources  SourcesConfig  `yaml:"sources"`
	Enricher EnricherConfig `yaml:"enricher"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port string `yaml:"port" env:"MS_PORT" env-default:"8080"`
}

// ArangoConfig holds ArangoDB connection settings.
type ArangoConfig struct {
	Host     string `yaml:"host" env:"ARANGO_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"ARANGO_PORT" env-default:"8529"`
	User     string `yaml:"user" env:"ARANGO_USER" env-default:"root"`
	Pass     string `yaml:"-" env:"ARANGO_PASS" env-default:"mypassword"`
	URL      string `yaml:"url" env:"ARANGO_URL"` // derived from host and port when empty
	Database string `yaml:"database" env:"ARANGO_DATABASE" env-default:"versionwatch"`
}

// KafkaConfig holds broker settings. Brokers empty disables Kafka.
type KafkaConfig struct {
	Brokers       string `yaml:"brokers" env:"KAFKA_BROKERS"`
	EventsTopic   string `yaml:"events_topic" env:"KAFKA_EVENTS_TOPIC" env-default:"item-events"`
	RequestsTopic string `yaml:"requests_topic" env:"KAFKA_REQUESTS_TOPIC" env-default:"check-requests"`
	GroupID       string `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"versionwatch-worker"`
	APIKey        string `yaml:"-" env:"KAFKA_API_KEY"`
	APISecret     string `yaml:"-" env:"KAFKA_API_SECRET"`
}

// BrokerList splits the comma separated broker string.
func (k KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.BrokerList()) > 0
}

// NATSConfig holds JetStream settings. URL empty disables NATS.
type NATSConfig struct {
	URL         string `yaml:"url" env:"NATS_URL"`
	Stream      string `yaml:"stream" env:"NATS_STREAM" env-default:"ITEM_EVENTS"`
	QuotaBucket string `yaml:"quota_bucket" env:"NATS_QUOTA_BUCKET" env-default:"ai_quota"`
}

// AIConfig holds AI provider and enrichment policy settings.
type AIConfig struct {
	Provider    string `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"` // openai | anthropic
	Model       string `yaml:"model" env:"AI_MODEL" env-default:"gpt-4o-mini"`
	BaseURL     string `yaml:"base_url" env:"AI_BASE_URL"`
	APIKey      string `yaml:"-" env:"AI_API_KEY"`
	QuotaPerRun int    `yaml:"quota_per_run" env:"AI_QUOTA_PER_RUN" env-default:"25"`
	MaxRetries  int    `yaml:"max_retries" env:"AI_MAX_RETRIES" env-default:"3"`
	TimeoutMs   int    `yaml:"timeout_ms" env:"AI_TIMEOUT_MS" env-default:"30000"`
	MaxTokens   int    `yaml:"max_tokens" env:"AI_MAX_TOKENS" env-default:"1200"`
}

// Enabled reports whether an AI provider can be constructed.
func (a AIConfig) Enabled() bool {
	return a.APIKey != ""
}

// TasksConfig sizes the background task queue.
type TasksConfig struct {
	Workers   int `yaml:"workers" env:"TASK_WORKERS" env-default:"4"`
	QueueSize int `yaml:"queue_size" env:"TASK_QUEUE_SIZE" env-default:"256"`
}

// SourcesConfig holds catalog endpoints used by the built-in connectors.
type SourcesConfig struct {
	GitHubAPI    string        `yaml:"github_api" env:"GITHUB_API_URL" env-default:"https://api.github.com"`
	GitHubToken  string        `yaml:"-" env:"GITHUB_TOKEN"`
	NPMRegistry  string        `yaml:"npm_registry" env:"NPM_REGISTRY_URL" env-default:"https://registry.npmjs.org"`
	PyPIURL      string        `yaml:"pypi_url" env:"PYPI_URL" env-default:"https://pypi.org"`
	DockerHubURL string        `yaml:"dockerhub_url" env:"DOCKERHUB_URL" env-default:"https://hub.docker.com"`
	EndOfLifeURL string        `yaml:"endoflife_url" env:"ENDOFLIFE_URL" env-default:"https://endoflife.date"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"SOURCE_FETCH_TIMEOUT" env-default:"15s"`
}

// EnricherConfig holds the vulnerability database endpoint.
type EnricherConfig struct {
	OSVURL string `yaml:"osv_url" env:"OSV_URL" env-default:"https://api.osv.dev"`
}

// Load reads configuration from path (if it exists) with environment overrides.
// An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			return finish(cfg)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if cfg.Arango.URL == "" {
		cfg.Arango.URL = "http://" + cfg.Arango.Host + ":" + cfg.Arango.Port
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.AI.Provider) {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported ai provider %q", c.AI.Provider)
	}
	if c.AI.QuotaPerRun < 0 {
		return errors.New("ai quota_per_run must not be negative")
	}
	if c.Tasks.Workers < 1 {
		return errors.New("tasks workers must be at least 1")
	}
	if c.Tasks.QueueSize < 1 {
		return errors.New("tasks queue_size must be at least 1")
	}
	return nil
}
