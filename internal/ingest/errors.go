package ingest

import (
	"fmt"

	"github.com/google/uuid"
)

// IngestError is the typed failure surfaced by a pipeline run. Completed
// batches are not rolled back; callers treat a failed run as requiring
// Reingest (delete prior vectors, ingest from scratch).
type IngestError struct {
	DocumentID uuid.UUID
	Stage      string // "extract", "embed" or "store"
	Err        error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingesting document %s (%s): %v", e.DocumentID, e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }
