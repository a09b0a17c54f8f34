package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// CallerConfig tunes the resilience wrapper around model invocations.
type CallerConfig struct {
	Timeout         time.Duration // per-attempt deadline
	MaxRetries      int           // retries after the first attempt
	InitialInterval time.Duration // first backoff delay
	MaxInterval     time.Duration // backoff ceiling
	RequestsPerSec  float64       // provider rate limit, 0 = unlimited
}

// DefaultCallerConfig returns the production defaults: 15 s per attempt and
// up to 2 retries on transient provider errors.
func DefaultCallerConfig() CallerConfig {
	return CallerConfig{
		Timeout:         15 * time.Second,
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups transient-error substrings by category, matched
// case-insensitively against err.Error(). String matching because provider
// SDKs expose no typed errors for transient failures.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},
	{"500", "502", "503", "504", "unavailable"},
	{"connection reset", "timeout", "temporary"},
}

// retryableError reports whether err is transient and worth retrying.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, pattern := range group {
			if strings.Contains(msg, pattern) {
				return true
			}
		}
	}
	return false
}

// Caller executes model invocations with a per-attempt timeout, per-attempt
// rate limiting, and exponential backoff on transient errors.
type Caller struct {
	cfg     CallerConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewCaller creates a Caller. Zero-valued cfg fields fall back to
// DefaultCallerConfig.
func NewCaller(cfg CallerConfig, logger *slog.Logger) *Caller {
	def := DefaultCallerConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}
	return &Caller{cfg: cfg, limiter: limiter, logger: logger}
}

// Do runs fn with the caller's resilience policy. Each attempt gets a fresh
// timeout and waits on the rate limiter; non-transient errors fail
// immediately.
func (c *Caller) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := c.cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%s: rate limit wait: %w", op, err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			c.logger.Debug("model call succeeded", "op", op, "attempts", attempt+1, "elapsed", time.Since(start))
			return nil
		}
		lastErr = err

		if !retryableError(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		c.logger.Debug("retrying model call", "op", op, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: canceled during retry: %w", op, ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.cfg.MaxInterval)
		}
	}

	return fmt.Errorf("%s after %d retries (elapsed %v): %w", op, c.cfg.MaxRetries, time.Since(start), lastErr)
}
