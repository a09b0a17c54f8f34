// Package checkpoint persists conversation thread state in PostgreSQL,
// keyed by "{botID}-{userID}". State is the JSON-encoded turn list,
// including tool-call scaffolding, so a thread resumes exactly where the
// previous request left it. Put is last-writer-wins; the engine serializes
// writers per key above this layer.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brightclass/tutorcore/internal/bot"
)

// Querier defines the database operations Store needs.
type Querier interface {
	GetCheckpoint(ctx context.Context, key string) ([]byte, error)
	PutCheckpoint(ctx context.Context, key string, state []byte) error
	DeleteCheckpointsByPrefix(ctx context.Context, prefix string) (int64, error)
}

// Store is the PostgreSQL-backed bot.CheckpointStore.
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

// Get loads the thread state for key. The second return is false when no
// checkpoint exists yet (first turn of a thread).
func (s *Store) Get(ctx context.Context, key string) ([]bot.Turn, bool, error) {
	raw, err := s.queries.GetCheckpoint(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("loading checkpoint %q: %w", key, err)
	}

	var turns []bot.Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, false, fmt.Errorf("decoding checkpoint %q: %w", key, err)
	}
	return turns, true, nil
}

// Put stores the full thread state for key.
func (s *Store) Put(ctx context.Context, key string, turns []bot.Turn) error {
	raw, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encoding checkpoint %q: %w", key, err)
	}
	if err := s.queries.PutCheckpoint(ctx, key, raw); err != nil {
		return fmt.Errorf("saving checkpoint %q: %w", key, err)
	}

	s.logger.Debug("saved checkpoint", "key", key, "turns", len(turns))
	return nil
}

// DeleteByKeyPrefix removes every checkpoint whose key starts with prefix.
// Used to purge all of a bot's threads when the bot is deleted.
func (s *Store) DeleteByKeyPrefix(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, fmt.Errorf("refusing to delete with empty prefix")
	}
	n, err := s.queries.DeleteCheckpointsByPrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("deleting checkpoints with prefix %q: %w", prefix, err)
	}

	s.logger.Debug("deleted checkpoints", "prefix", prefix, "count", n)
	return n, nil
}

// DBTX is the subset of pgx used by Queries.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries executes checkpoint SQL against PostgreSQL.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries instance bound to db.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// GetCheckpoint fetches raw state for key. Returns pgx.ErrNoRows when absent.
func (q *Queries) GetCheckpoint(ctx context.Context, key string) ([]byte, error) {
	var state []byte
	err := q.db.QueryRow(ctx, `SELECT state FROM checkpoints WHERE key = $1`, key).Scan(&state)
	return state, err
}

// PutCheckpoint upserts raw state for key.
func (q *Queries) PutCheckpoint(ctx context.Context, key string, state []byte) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO checkpoints (key, state, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		key, state)
	return err
}

// DeleteCheckpointsByPrefix removes checkpoints whose key starts with prefix.
// Keys are "{uuid}-{uuid}" so the prefix contains no LIKE metacharacters.
func (q *Queries) DeleteCheckpointsByPrefix(ctx context.Context, prefix string) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM checkpoints WHERE key LIKE $1 || '%'`, prefix)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
