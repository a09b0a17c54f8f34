package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier defines the database operations Store needs.
type Querier interface {
	GetBot(ctx context.Context, id uuid.UUID) (Bot, error)
	ListBotDocuments(ctx context.Context, botID uuid.UUID) ([]uuid.UUID, error)
	InsertBot(ctx context.Context, b Bot) error
	SetBotDocuments(ctx context.Context, botID uuid.UUID, documentIDs []uuid.UUID) error
	DeleteBot(ctx context.Context, id uuid.UUID) (int64, error)
}

// Store loads and persists bot configurations in PostgreSQL.
type Store struct {
	queries Querier
	logger  *slog.Logger
}

// NewStore creates a Store. A nil logger falls back to slog.Default().
func NewStore(queries Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{queries: queries, logger: logger}
}

// Get loads a bot and its linked document ids.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Bot, error) {
	b, err := s.queries.GetBot(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bot{}, ErrBotNotFound
		}
		return Bot{}, fmt.Errorf("loading bot %s: %w", id, err)
	}

	docs, err := s.queries.ListBotDocuments(ctx, id)
	if err != nil {
		return Bot{}, fmt.Errorf("loading documents for bot %s: %w", id, err)
	}
	b.DocumentIDs = docs
	return b, nil
}

// Create persists a new bot and its document links.
func (s *Store) Create(ctx context.Context, b Bot) error {
	if b.ID == uuid.Nil {
		return fmt.Errorf("bot id is required")
	}
	if b.ModelName == "" {
		return fmt.Errorf("bot model name is required")
	}
	if err := s.queries.InsertBot(ctx, b); err != nil {
		return fmt.Errorf("creating bot %s: %w", b.ID, err)
	}
	if err := s.queries.SetBotDocuments(ctx, b.ID, b.DocumentIDs); err != nil {
		return fmt.Errorf("linking documents for bot %s: %w", b.ID, err)
	}

	s.logger.Info("created bot", "bot_id", b.ID, "documents", len(b.DocumentIDs))
	return nil
}

// SetDocuments replaces a bot's document links.
func (s *Store) SetDocuments(ctx context.Context, botID uuid.UUID, documentIDs []uuid.UUID) error {
	if err := s.queries.SetBotDocuments(ctx, botID, documentIDs); err != nil {
		return fmt.Errorf("linking documents for bot %s: %w", botID, err)
	}
	return nil
}

// Delete removes a bot's row. Document links cascade in the schema;
// checkpoint purging is the engine's DeleteBot.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.queries.DeleteBot(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting bot %s: %w", id, err)
	}
	if n == 0 {
		return ErrBotNotFound
	}

	s.logger.Info("deleted bot", "bot_id", id)
	return nil
}

// DBTX is the subset of pgx used by Queries.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries executes bot SQL against PostgreSQL.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries instance bound to db.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// GetBot fetches one bot row. Returns pgx.ErrNoRows when absent.
func (q *Queries) GetBot(ctx context.Context, id uuid.UUID) (Bot, error) {
	var b Bot
	err := q.db.QueryRow(ctx, `
SELECT id, tenant_id, name, system_prompt, model_name, greeting
FROM bots WHERE id = $1`, id).
		Scan(&b.ID, &b.TenantID, &b.Name, &b.SystemPrompt, &b.ModelName, &b.Greeting)
	return b, err
}

// ListBotDocuments returns the document ids linked to botID.
func (q *Queries) ListBotDocuments(ctx context.Context, botID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `
SELECT document_id FROM bot_documents WHERE bot_id = $1 ORDER BY document_id`, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertBot inserts one bot row.
func (q *Queries) InsertBot(ctx context.Context, b Bot) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO bots (id, tenant_id, name, system_prompt, model_name, greeting)
VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.TenantID, b.Name, b.SystemPrompt, b.ModelName, b.Greeting)
	return err
}

// SetBotDocuments replaces all document links for botID.
func (q *Queries) SetBotDocuments(ctx context.Context, botID uuid.UUID, documentIDs []uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM bot_documents WHERE bot_id = $1`, botID); err != nil {
		return err
	}
	for _, docID := range documentIDs {
		_, err := q.db.Exec(ctx, `
INSERT INTO bot_documents (bot_id, document_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`, botID, docID)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteBot removes one bot row. bot_documents rows cascade.
func (q *Queries) DeleteBot(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM bots WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
