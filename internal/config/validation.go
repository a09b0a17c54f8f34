package config

import (
	"fmt"
	"time"
)

const (
	minChunkSize = 100
	maxChunkSize = 32 * 1024

	maxBatchCount = 100
	maxTopK       = 100

	minModelTimeout = time.Second
	maxModelTimeout = 5 * time.Minute
)

// Validate checks all configuration values and returns the first violation.
// Returned errors wrap the package sentinel errors for errors.Is checks.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ChatModel == "" {
		return fmt.Errorf("%w: chat_model is empty", ErrInvalidModelName)
	}
	if c.VisionModel == "" {
		return fmt.Errorf("%w: vision_model is empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidModelName)
	}

	if c.ChunkSize < minChunkSize || c.ChunkSize > maxChunkSize {
		return fmt.Errorf("%w: %d (must be %d-%d)", ErrInvalidChunkSize, c.ChunkSize, minChunkSize, maxChunkSize)
	}
	if c.BatchCount < 1 || c.BatchCount > maxBatchCount {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidBatchCount, c.BatchCount, maxBatchCount)
	}
	if c.TopK < 1 || c.TopK > maxTopK {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidTopK, c.TopK, maxTopK)
	}

	if c.ModelTimeout < minModelTimeout || c.ModelTimeout > maxModelTimeout {
		return fmt.Errorf("%w: %s (must be %s-%s)", ErrInvalidTimeout, c.ModelTimeout, minModelTimeout, maxModelTimeout)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("%w: max_retries %d (must be 0-10)", ErrInvalidTimeout, c.MaxRetries)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDatabase == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgres)
	}

	return nil
}

// ValidateAPIKey checks that a provider API key is present.
// Called at client construction time with the tenant key (or the deployment
// default when the tenant has none) so the failure surfaces before any
// provider call is attempted.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrMissingAPIKey
	}
	return nil
}
