// Package api exposes the core over thin JSON endpoints: document ingestion,
// bot queries, and grading. The wire format is not contractual; the core
// packages own the semantics.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains the server's dependencies.
type ServerConfig struct {
	Logger    *slog.Logger
	Engine    QueryEngine   // required
	Bots      BotSource     // required
	BotAdmin  BotStore      // required
	Threads   ThreadPurger  // required
	Documents DocumentStore // required
	Vectors   VectorPurger  // required
	Ingestor  Ingestor      // required
	Grader    Grader        // required
	Pool      *pgxpool.Pool // optional: nil degrades /ready to liveness
	SpoolDir  string        // optional: upload spool directory, default os.TempDir()
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("query engine is required")
	}
	if cfg.Bots == nil {
		return nil, errors.New("bot source is required")
	}
	if cfg.BotAdmin == nil {
		return nil, errors.New("bot admin store is required")
	}
	if cfg.Threads == nil {
		return nil, errors.New("thread purger is required")
	}
	if cfg.Documents == nil {
		return nil, errors.New("document store is required")
	}
	if cfg.Vectors == nil {
		return nil, errors.New("vector purger is required")
	}
	if cfg.Ingestor == nil {
		return nil, errors.New("ingestor is required")
	}
	if cfg.Grader == nil {
		return nil, errors.New("grader is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dh := &documentHandler{documents: cfg.Documents, vectors: cfg.Vectors, ingestor: cfg.Ingestor, spoolDir: cfg.SpoolDir, logger: logger}
	qh := &queryHandler{engine: cfg.Engine, bots: cfg.Bots, logger: logger}
	bh := &botHandler{bots: cfg.BotAdmin, source: cfg.Bots, threads: cfg.Threads, logger: logger}
	gh := &gradeHandler{grader: cfg.Grader, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents", dh.create)
	mux.HandleFunc("GET /api/documents/{id}", dh.get)
	mux.HandleFunc("DELETE /api/documents/{id}", dh.delete)
	mux.HandleFunc("POST /api/bots", bh.create)
	mux.HandleFunc("GET /api/bots/{id}", bh.get)
	mux.HandleFunc("PUT /api/bots/{id}/documents", bh.setDocuments)
	mux.HandleFunc("DELETE /api/bots/{id}", bh.delete)
	mux.HandleFunc("POST /api/bots/{id}/query", qh.query)
	mux.HandleFunc("POST /api/grade/text", gh.gradeText)
	mux.HandleFunc("POST /api/grade/choice", gh.gradeChoice)
	mux.HandleFunc("POST /api/grade/image", gh.gradeImage)
	mux.HandleFunc("POST /api/submissions/{id}/grade", gh.gradeSubmission)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> Tracing -> Routes
	var handler http.Handler = mux
	handler = tracingMiddleware()(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
