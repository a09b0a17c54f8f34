package knowledge

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DBTX is the subset of pgx used by Queries. Satisfied by *pgxpool.Pool,
// *pgx.Conn, and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries executes chunk SQL against PostgreSQL.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries instance bound to db.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// UpsertChunkParams are the arguments for UpsertChunk.
type UpsertChunkParams struct {
	ID         string
	DocumentID string
	TenantID   string
	ChunkIndex int32
	Content    string
	Embedding  *pgvector.Vector
}

const upsertChunkSQL = `
INSERT INTO chunks (id, document_id, tenant_id, chunk_index, content, embedding)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    content = EXCLUDED.content,
    embedding = EXCLUDED.embedding`

// UpsertChunk inserts or replaces a chunk row.
func (q *Queries) UpsertChunk(ctx context.Context, arg UpsertChunkParams) error {
	_, err := q.db.Exec(ctx, upsertChunkSQL,
		arg.ID, arg.DocumentID, arg.TenantID, arg.ChunkIndex, arg.Content, arg.Embedding)
	return err
}

// SearchChunksParams are the arguments for SearchChunks.
type SearchChunksParams struct {
	QueryEmbedding *pgvector.Vector
	DocumentIDs    []string
	ResultLimit    int32
}

// SearchChunksRow is one similarity-search result row.
type SearchChunksRow struct {
	ID         string
	DocumentID string
	TenantID   string
	ChunkIndex int32
	Content    string
	Similarity float32
}

const searchChunksSQL = `
SELECT id, document_id, tenant_id, chunk_index, content,
       (1 - (embedding <=> $1))::float4 AS similarity
FROM chunks
WHERE document_id = ANY($2::uuid[])
ORDER BY embedding <=> $1
LIMIT $3`

// SearchChunks runs cosine similarity search restricted to the given
// document ids.
func (q *Queries) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error) {
	rows, err := q.db.Query(ctx, searchChunksSQL,
		arg.QueryEmbedding, arg.DocumentIDs, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchChunksRow
	for rows.Next() {
		var r SearchChunksRow
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.TenantID, &r.ChunkIndex, &r.Content, &r.Similarity); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteChunksByDocument removes all chunks of a document and returns the
// number of rows deleted.
func (q *Queries) DeleteChunksByDocument(ctx context.Context, documentID string) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountChunksByDocument counts chunks stored for a document.
func (q *Queries) CountChunksByDocument(ctx context.Context, documentID string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&count)
	return count, err
}
