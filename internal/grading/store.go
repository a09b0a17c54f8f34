package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists submissions in PostgreSQL. Mark is transactional: the row
// is locked, re-checked, and written in one transaction so concurrent
// grading attempts cannot double-mark.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store over pool. A nil logger falls back to
// slog.Default().
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Create inserts a new unmarked submission.
func (s *Store) Create(ctx context.Context, sub Submission) error {
	if sub.ID == uuid.Nil {
		return fmt.Errorf("submission id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO submissions (id, tenant_id, kind, content, image_path)
VALUES ($1, $2, $3, $4, $5)`,
		sub.ID, sub.TenantID, string(sub.Kind), sub.Content, sub.ImagePath)
	if err != nil {
		return fmt.Errorf("creating submission %s: %w", sub.ID, err)
	}
	return nil
}

// Get loads one submission.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Submission, error) {
	var sub Submission
	var kind string
	err := s.pool.QueryRow(ctx, `
SELECT id, tenant_id, kind, content, image_path, obtained_score, remarks, marked
FROM submissions WHERE id = $1`, id).
		Scan(&sub.ID, &sub.TenantID, &kind, &sub.Content, &sub.ImagePath,
			&sub.ObtainedScore, &sub.Remarks, &sub.Marked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Submission{}, ErrSubmissionNotFound
		}
		return Submission{}, fmt.Errorf("loading submission %s: %w", id, err)
	}
	sub.Kind = SubmissionKind(kind)
	return sub, nil
}

// Mark writes score and remarks and flips marked, all in one transaction.
// The row is locked and re-checked first: a submission that is already
// marked is rejected with ErrAlreadyMarked and keeps its stored values.
func (s *Store) Mark(ctx context.Context, id uuid.UUID, score int, remarks string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	var marked bool
	err = tx.QueryRow(ctx, `SELECT marked FROM submissions WHERE id = $1 FOR UPDATE`, id).Scan(&marked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSubmissionNotFound
		}
		return fmt.Errorf("locking submission %s: %w", id, err)
	}
	if marked {
		return fmt.Errorf("marking submission %s: %w", id, ErrAlreadyMarked)
	}

	_, err = tx.Exec(ctx, `
UPDATE submissions
SET obtained_score = $2, remarks = $3, marked = true, updated_at = now()
WHERE id = $1`, id, score, remarks)
	if err != nil {
		return fmt.Errorf("marking submission %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing mark for submission %s: %w", id, err)
	}

	s.logger.Debug("marked submission", "submission_id", id, "score", score)
	return nil
}
