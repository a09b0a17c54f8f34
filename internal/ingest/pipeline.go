// Package ingest implements the document ingestion pipeline: extract text,
// split into fixed-size chunks, embed batches concurrently, upsert vectors,
// and report cumulative progress until the Document reaches 100.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/brightclass/tutorcore/internal/knowledge"
)

// VectorStore is the pipeline's view of the chunk store.
type VectorStore interface {
	Upsert(ctx context.Context, chunk knowledge.Chunk) error
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
}

// ProgressStore receives Document progress writes. Only the pipeline writes
// progress.
type ProgressStore interface {
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int32) error
}

// Config contains the pipeline's dependencies and tuning.
type Config struct {
	Embedder  ai.Embedder
	Vectors   VectorStore
	Documents ProgressStore
	Logger    *slog.Logger

	ChunkSize  int // target chunk length in runes (default 1000)
	BatchCount int // upper bound on concurrent upload batches (default 10)
}

// Pipeline ingests documents. Safe for concurrent use; each Ingest call is
// an independent run.
type Pipeline struct {
	embedder   ai.Embedder
	vectors    VectorStore
	documents  ProgressStore
	logger     *slog.Logger
	chunkSize  int
	batchCount int
}

// NewPipeline creates a Pipeline from cfg.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if cfg.Documents == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.BatchCount <= 0 {
		cfg.BatchCount = 10
	}
	return &Pipeline{
		embedder:   cfg.Embedder,
		vectors:    cfg.Vectors,
		documents:  cfg.Documents,
		logger:     cfg.Logger,
		chunkSize:  cfg.ChunkSize,
		batchCount: cfg.BatchCount,
	}, nil
}

// Request describes one ingestion run. SourcePath is the transient upload
// file; the pipeline deletes it on completion and on failure.
type Request struct {
	DocumentID uuid.UUID
	TenantID   uuid.UUID
	SourcePath string
}

// Run is an in-flight ingestion. Progress carries cumulative percentages
// (strictly increasing, ending at 100 on success) and is closed when the run
// finishes. Wait blocks until completion and returns the terminal error.
type Run struct {
	Progress <-chan int32

	done chan struct{}
	err  error
}

// Wait blocks until the run finishes and returns its terminal error, nil on
// success or an *IngestError on failure. A zero-value Run counts as already
// finished.
func (r *Run) Wait() error {
	if r.done != nil {
		<-r.done
	}
	return r.err
}

// Ingest validates and chunks the source synchronously, then embeds and
// uploads batches in the background. The returned Run outlives ctx
// cancellation from a disconnecting client: batches run on a derived
// background context so a started ingestion always reaches a terminal state.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Run, error) {
	f, err := os.Open(req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("opening source file: %w", err)
	}

	text, err := extractText(f)
	_ = f.Close()
	if err != nil {
		p.removeSource(req)
		return nil, &IngestError{DocumentID: req.DocumentID, Stage: "extract", Err: err}
	}

	chunks := splitChunks(text, p.chunkSize)
	if len(chunks) == 0 {
		p.removeSource(req)
		return nil, &IngestError{DocumentID: req.DocumentID, Stage: "extract", Err: fmt.Errorf("document contains no text")}
	}
	batches := partition(chunks, p.batchCount)

	progressCh := make(chan int32, len(batches))
	run := &Run{Progress: progressCh, done: make(chan struct{})}

	go p.process(req, batches, progressCh, run)

	return run, nil
}

// process embeds and uploads all batches, then finalizes the run.
func (p *Pipeline) process(req Request, batches [][]string, progressCh chan<- int32, run *Run) {
	// Detached from the request context: client disconnects must not abort
	// an accepted ingestion. Batch failure cancels the siblings instead.
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		firstErr  *IngestError
	)
	total := len(batches)

	// chunkOffset gives each batch its absolute chunk indices so chunk ids
	// stay deterministic across runs.
	offset := 0
	for _, batch := range batches {
		wg.Add(1)
		go func(batch []string, offset int) {
			defer wg.Done()

			if err := p.uploadBatch(ctx, req, batch, offset); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel(err)
				}
				mu.Unlock()
				return
			}

			// Progress derives from the shared completed count and is sent
			// under the same lock, so the reported sequence is strictly
			// increasing regardless of batch completion order. The channel
			// is buffered to len(batches), the send never blocks.
			mu.Lock()
			completed++
			pct := int32(math.Ceil(float64(completed) / float64(total) * 100))
			progressCh <- pct
			mu.Unlock()
			if err := p.documents.UpdateProgress(ctx, req.DocumentID, pct); err != nil {
				p.logger.Warn("updating document progress", "document_id", req.DocumentID, "error", err)
			}
		}(batch, offset)
		offset += len(batch)
	}

	wg.Wait()
	close(progressCh)
	p.removeSource(req)

	if firstErr != nil {
		run.err = firstErr
		p.logger.Error("ingestion failed", "document_id", req.DocumentID, "stage", firstErr.Stage, "error", firstErr.Err)
	} else {
		p.logger.Info("ingestion complete", "document_id", req.DocumentID, "batches", total)
	}
	close(run.done)
}

// uploadBatch embeds one batch and upserts its chunks.
func (p *Pipeline) uploadBatch(ctx context.Context, req Request, batch []string, offset int) *IngestError {
	if err := ctx.Err(); err != nil {
		return &IngestError{DocumentID: req.DocumentID, Stage: "embed", Err: context.Cause(ctx)}
	}

	docs := make([]*ai.Document, len(batch))
	for i, text := range batch {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := p.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return &IngestError{DocumentID: req.DocumentID, Stage: "embed", Err: err}
	}
	if len(resp.Embeddings) != len(batch) {
		return &IngestError{DocumentID: req.DocumentID, Stage: "embed",
			Err: fmt.Errorf("got %d embeddings for %d chunks", len(resp.Embeddings), len(batch))}
	}

	for i, text := range batch {
		idx := int32(offset + i)
		chunk := knowledge.Chunk{
			ID:         fmt.Sprintf("%s-%04d", req.DocumentID, idx),
			DocumentID: req.DocumentID,
			TenantID:   req.TenantID,
			Index:      idx,
			Content:    text,
			Embedding:  resp.Embeddings[i].Embedding,
		}
		if err := p.vectors.Upsert(ctx, chunk); err != nil {
			return &IngestError{DocumentID: req.DocumentID, Stage: "store", Err: err}
		}
	}
	return nil
}

// Reingest is the recovery path for a partially ingested document: delete
// any vectors left by the failed run, then ingest from scratch.
func (p *Pipeline) Reingest(ctx context.Context, req Request) (*Run, error) {
	if _, err := p.vectors.DeleteByDocument(ctx, req.DocumentID); err != nil {
		return nil, fmt.Errorf("clearing previous vectors: %w", err)
	}
	return p.Ingest(ctx, req)
}

func (p *Pipeline) removeSource(req Request) {
	if req.SourcePath == "" {
		return
	}
	if err := os.Remove(req.SourcePath); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("removing transient source file", "path", req.SourcePath, "error", err)
	}
}
