// Package app assembles the service from its parts: database, provider
// client, stores, pipeline, engine, grading, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightclass/tutorcore/internal/api"
	"github.com/brightclass/tutorcore/internal/bot"
	"github.com/brightclass/tutorcore/internal/checkpoint"
	"github.com/brightclass/tutorcore/internal/config"
	"github.com/brightclass/tutorcore/internal/database"
	"github.com/brightclass/tutorcore/internal/document"
	"github.com/brightclass/tutorcore/internal/genai"
	"github.com/brightclass/tutorcore/internal/grading"
	"github.com/brightclass/tutorcore/internal/ingest"
	"github.com/brightclass/tutorcore/internal/knowledge"
	"github.com/brightclass/tutorcore/internal/observability"
	"github.com/brightclass/tutorcore/internal/postprocess"
	"github.com/brightclass/tutorcore/internal/retrieval"
)

// App is the assembled service.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool
	Server *api.Server

	Engine   *bot.Engine
	Pipeline *ingest.Pipeline
	Grading  *grading.Service
}

// New builds the App. The returned cleanup closes the pool and flushes
// tracing; call it on shutdown.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.OTLPEndpoint,
			Environment: cfg.Environment,
			ServiceName: "tutorcore",
		})
		if err != nil {
			return fail(fmt.Errorf("setting up tracing: %w", err))
		}
		cleanups = append(cleanups, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("flushing tracer", "error", err)
			}
		})
	}

	pool, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		return fail(fmt.Errorf("opening database: %w", err))
	}
	cleanups = append(cleanups, pool.Close)

	client, err := genai.New(ctx, genai.Config{
		APIKey:        cfg.GeminiAPIKey,
		EmbedderModel: cfg.EmbedderModel,
		Logger:        logger,
		Caller: genai.CallerConfig{
			Timeout:    cfg.ModelTimeout,
			MaxRetries: cfg.MaxRetries,
		},
	})
	if err != nil {
		return fail(fmt.Errorf("creating provider client: %w", err))
	}

	vectors := knowledge.New(knowledge.NewQueries(pool), logger)
	documents := document.New(document.NewQueries(pool), logger)
	checkpoints := checkpoint.New(checkpoint.NewQueries(pool), logger)
	bots := bot.NewStore(bot.NewQueries(pool), logger)
	submissions := grading.NewStore(pool, logger)

	pipeline, err := ingest.NewPipeline(ingest.Config{
		Embedder:   client.Embedder(),
		Vectors:    vectors,
		Documents:  documents,
		Logger:     logger,
		ChunkSize:  cfg.ChunkSize,
		BatchCount: cfg.BatchCount,
	})
	if err != nil {
		return fail(fmt.Errorf("creating ingestion pipeline: %w", err))
	}

	tool := retrieval.NewTool(client.Embedder(), vectors, int32(cfg.TopK), logger)
	formatter := postprocess.New(client.Genkit(), cfg.ChatModel, logger)

	engine, err := bot.NewEngine(bot.Config{
		Model:       genai.NewChat(client),
		Retriever:   tool,
		Checkpoints: checkpoints,
		Formatter:   formatter,
		Logger:      logger,
	})
	if err != nil {
		return fail(fmt.Errorf("creating conversation engine: %w", err))
	}

	grader := grading.NewService(client.Genkit(), cfg.VisionModel, submissions, logger)

	server, err := api.NewServer(api.ServerConfig{
		Logger:    logger,
		Engine:    engine,
		Bots:      bots,
		BotAdmin:  bots,
		Threads:   engine,
		Documents: documents,
		Vectors:   vectors,
		Ingestor:  pipeline,
		Grader:    grader,
		Pool:      pool,
	})
	if err != nil {
		return fail(fmt.Errorf("creating api server: %w", err))
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Server:   server,
		Engine:   engine,
		Pipeline: pipeline,
		Grading:  grader,
	}, cleanup, nil
}
