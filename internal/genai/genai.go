// Package genai constructs model provider clients and wraps every model
// invocation with timeouts, rate limiting, and retry on transient failures.
package genai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// Config describes one tenant's provider client. Tenants bring their own
// API keys, so there is no process-wide client.
type Config struct {
	APIKey        string
	EmbedderModel string // e.g. "text-embedding-004"
	Logger        *slog.Logger
	Caller        CallerConfig
}

// Client owns a genkit instance bound to one tenant's credentials.
type Client struct {
	g        *genkit.Genkit
	embedder ai.Embedder
	caller   *Caller
	logger   *slog.Logger
}

// New creates a Client for one tenant.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.EmbedderModel == "" {
		return nil, fmt.Errorf("embedder model is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	g := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: cfg.APIKey}),
	)

	return &Client{
		g:        g,
		embedder: googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel),
		caller:   NewCaller(cfg.Caller, cfg.Logger),
		logger:   cfg.Logger,
	}, nil
}

// Genkit exposes the underlying instance for structured-output collaborators.
func (c *Client) Genkit() *genkit.Genkit { return c.g }

// Embedder returns the tenant's embedding model.
func (c *Client) Embedder() ai.Embedder { return c.embedder }

// Caller returns the resilience wrapper shared by this client's callers.
func (c *Client) Caller() *Caller { return c.caller }
