// Package knowledge stores embedded document chunks in PostgreSQL + pgvector
// and serves metadata-filtered cosine similarity search over them.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Querier defines the database operations Store needs. The interface lives
// with the consumer (like io.Reader or http.RoundTripper) so tests can
// substitute a mock.
type Querier interface {
	UpsertChunk(ctx context.Context, arg UpsertChunkParams) error
	SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error)
	DeleteChunksByDocument(ctx context.Context, documentID string) (int64, error)
	CountChunksByDocument(ctx context.Context, documentID string) (int64, error)
}

// Store manages chunk vectors. Safe for concurrent use.
type Store struct {
	queries Querier
	logger  *slog.Logger
}

// New creates a Store. A nil logger falls back to slog.Default().
func New(queries Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{queries: queries, logger: logger}
}

// Upsert writes one chunk. Chunks are never mutated after creation; an
// upsert with an existing id only happens on re-ingestion.
func (s *Store) Upsert(ctx context.Context, chunk Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("chunk id is empty")
	}
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("chunk %q has empty embedding", chunk.ID)
	}

	embedding := pgvector.NewVector(chunk.Embedding)
	err := s.queries.UpsertChunk(ctx, UpsertChunkParams{
		ID:         chunk.ID,
		DocumentID: chunk.DocumentID.String(),
		TenantID:   chunk.TenantID.String(),
		ChunkIndex: chunk.Index,
		Content:    chunk.Content,
		Embedding:  &embedding,
	})
	if err != nil {
		return fmt.Errorf("upserting chunk %q: %w", chunk.ID, err)
	}

	s.logger.Debug("upserted chunk", "id", chunk.ID, "document_id", chunk.DocumentID)
	return nil
}

// Search returns the chunks most similar to queryEmbedding, ordered by
// cosine similarity descending. WithDocumentIDs is required: Search refuses
// to run unscoped.
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	if len(cfg.documentIDs) == 0 {
		return nil, fmt.Errorf("search requires a document id restriction")
	}
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}

	// Bound vector search so a slow index scan cannot hold the request.
	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	ids := make([]string, len(cfg.documentIDs))
	for i, id := range cfg.documentIDs {
		ids[i] = id.String()
	}

	queryVec := pgvector.NewVector(queryEmbedding)
	rows, err := s.queries.SearchChunks(queryCtx, SearchChunksParams{
		QueryEmbedding: &queryVec,
		DocumentIDs:    ids,
		ResultLimit:    cfg.topK,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return rowsToResults(rows), nil
}

// DeleteByDocument removes all vectors of a document. Called when the
// Document row is deleted and as the first step of re-ingestion.
func (s *Store) DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	n, err := s.queries.DeleteChunksByDocument(ctx, documentID.String())
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for document %s: %w", documentID, err)
	}

	s.logger.Debug("deleted chunks", "document_id", documentID, "count", n)
	return n, nil
}

// CountByDocument returns the number of chunks stored for a document.
func (s *Store) CountByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	count, err := s.queries.CountChunksByDocument(ctx, documentID.String())
	if err != nil {
		return 0, fmt.Errorf("counting chunks for document %s: %w", documentID, err)
	}
	return count, nil
}

func rowsToResults(rows []SearchChunksRow) []Result {
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		docID, err := uuid.Parse(row.DocumentID)
		if err != nil {
			continue // skip rows with malformed ids rather than failing the search
		}
		tenantID, _ := uuid.Parse(row.TenantID)

		results = append(results, Result{
			Chunk: Chunk{
				ID:         row.ID,
				DocumentID: docID,
				TenantID:   tenantID,
				Index:      row.ChunkIndex,
				Content:    row.Content,
			},
			Similarity: row.Similarity,
		})
	}
	return results
}
