package document

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx used by Queries.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries executes document SQL against PostgreSQL.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries instance bound to db.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// CreateDocumentParams are the arguments for CreateDocument.
type CreateDocumentParams struct {
	ID       string
	TenantID string
	Name     string
}

// Row is a document table row.
type Row struct {
	ID        string
	TenantID  string
	Name      string
	Progress  int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateDocument inserts a document with progress 0.
func (q *Queries) CreateDocument(ctx context.Context, arg CreateDocumentParams) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO documents (id, tenant_id, name) VALUES ($1, $2, $3)`,
		arg.ID, arg.TenantID, arg.Name)
	return err
}

// GetDocument fetches a document row by id.
func (q *Queries) GetDocument(ctx context.Context, id string) (Row, error) {
	var r Row
	err := q.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, progress, created_at, updated_at FROM documents WHERE id = $1`,
		id).Scan(&r.ID, &r.TenantID, &r.Name, &r.Progress, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// UpdateProgressParams are the arguments for UpdateDocumentProgress.
type UpdateProgressParams struct {
	ID       string
	Progress int32
}

// UpdateDocumentProgress raises progress; GREATEST enforces monotonicity.
func (q *Queries) UpdateDocumentProgress(ctx context.Context, arg UpdateProgressParams) error {
	_, err := q.db.Exec(ctx,
		`UPDATE documents SET progress = GREATEST(progress, $2), updated_at = now() WHERE id = $1`,
		arg.ID, arg.Progress)
	return err
}

// DeleteDocument removes a document row. bot_documents links cascade.
func (q *Queries) DeleteDocument(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}
