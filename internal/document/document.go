// Package document manages Document rows: the relational record of an
// ingested source file. Progress is monotonically non-decreasing and only
// the ingestion pipeline writes it.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound indicates the document does not exist.
var ErrNotFound = errors.New("document not found")

// Document identifies an ingested source file.
type Document struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Progress  int32 // 0-100; readers must treat progress < 100 as not-yet-queryable
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Querier defines the database operations Store needs.
type Querier interface {
	CreateDocument(ctx context.Context, arg CreateDocumentParams) error
	GetDocument(ctx context.Context, id string) (Row, error)
	UpdateDocumentProgress(ctx context.Context, arg UpdateProgressParams) error
	DeleteDocument(ctx context.Context, id string) error
}

// Store persists Document rows. Safe for concurrent use.
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

// Create inserts a new document with progress 0.
func (s *Store) Create(ctx context.Context, tenantID uuid.UUID, name string) (*Document, error) {
	if name == "" {
		return nil, fmt.Errorf("document name is empty")
	}

	doc := &Document{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     name,
	}
	err := s.queries.CreateDocument(ctx, CreateDocumentParams{
		ID:       doc.ID.String(),
		TenantID: doc.TenantID.String(),
		Name:     doc.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}

	s.logger.Debug("created document", "id", doc.ID, "name", name)
	return doc, nil
}

// Get retrieves a document by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	row, err := s.queries.GetDocument(ctx, id.String())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting document %s: %w", id, err)
	}
	return rowToDocument(row)
}

// UpdateProgress raises the document's progress. The SQL uses GREATEST so a
// late or out-of-order write can never lower stored progress.
func (s *Store) UpdateProgress(ctx context.Context, id uuid.UUID, progress int32) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress %d out of range 0-100", progress)
	}
	err := s.queries.UpdateDocumentProgress(ctx, UpdateProgressParams{
		ID:       id.String(),
		Progress: progress,
	})
	if err != nil {
		return fmt.Errorf("updating progress for document %s: %w", id, err)
	}
	return nil
}

// Delete removes the document row. Callers must delete the document's
// vectors first; the row and its vectors are not removed atomically and the
// delete-vectors-then-row order keeps any crash window orphan-free on the
// relational side.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.queries.DeleteDocument(ctx, id.String()); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	s.logger.Debug("deleted document", "id", id)
	return nil
}

func rowToDocument(row Row) (*Document, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("parsing document id: %w", err)
	}
	tenantID, err := uuid.Parse(row.TenantID)
	if err != nil {
		return nil, fmt.Errorf("parsing tenant id: %w", err)
	}
	return &Document{
		ID:        id,
		TenantID:  tenantID,
		Name:      row.Name,
		Progress:  row.Progress,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
