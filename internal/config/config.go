// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (TUTORCORE_* runtime override)
//  2. Config file (./config.yaml or /etc/tutorcore/config.yaml)
//  3. Default values
//
// Sensitive values (API keys, database password) are never logged.
// Validation uses sentinel errors so callers can branch with errors.Is().
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidChunkSize indicates the ingestion chunk size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidBatchCount indicates the ingestion batch count is out of range.
	ErrInvalidBatchCount = errors.New("invalid batch count")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidPostgres indicates the PostgreSQL settings are incomplete.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")

	// ErrInvalidTimeout indicates the model timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid model timeout")
)

// Config holds all tutorcore settings.
type Config struct {
	// Provider settings. The API key here is the deployment default;
	// per-tenant keys override it at client construction time.
	GeminiAPIKey  string `mapstructure:"gemini_api_key"`
	ChatModel     string `mapstructure:"chat_model"`
	VisionModel   string `mapstructure:"vision_model"`
	EmbedderModel string `mapstructure:"embedder_model"`
	EmbeddingDim  int    `mapstructure:"embedding_dim"`

	// Ingestion settings.
	ChunkSize  int `mapstructure:"chunk_size"`
	BatchCount int `mapstructure:"batch_count"`

	// Retrieval settings.
	TopK int `mapstructure:"top_k"`

	// Resilience settings for provider calls.
	ModelTimeout time.Duration `mapstructure:"model_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`

	// PostgreSQL settings.
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDatabase string `mapstructure:"postgres_database"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// HTTP server settings.
	ServerAddr string `mapstructure:"server_addr"`

	// Tracing settings (empty endpoint disables tracing).
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Environment  string `mapstructure:"environment"`
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/tutorcore")

	viper.SetEnvPrefix("TUTORCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file: environment variables and defaults only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("chat_model", "googleai/gemini-2.5-flash")
	viper.SetDefault("vision_model", "googleai/gemini-2.5-flash")
	viper.SetDefault("embedder_model", "googleai/text-embedding-004")
	viper.SetDefault("embedding_dim", 1536)
	viper.SetDefault("chunk_size", 1000)
	viper.SetDefault("batch_count", 10)
	viper.SetDefault("top_k", 20)
	viper.SetDefault("model_timeout", 15*time.Second)
	viper.SetDefault("max_retries", 2)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "tutorcore")
	viper.SetDefault("postgres_database", "tutorcore")
	viper.SetDefault("postgres_sslmode", "disable")
	viper.SetDefault("server_addr", "127.0.0.1:8080")
	viper.SetDefault("environment", "development")
}

// DSN returns the PostgreSQL connection string.
// Callers must not log the returned value (contains the password).
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword,
		c.PostgresHost, c.PostgresPort,
		c.PostgresDatabase, c.PostgresSSLMode)
}
