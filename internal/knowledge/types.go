package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is a bounded-length slice of extracted document text, the unit of
// embedding and storage. Chunk IDs are deterministic ("{documentID}-{index}")
// so re-ingesting a document overwrites its previous vectors.
type Chunk struct {
	ID         string
	DocumentID uuid.UUID
	TenantID   uuid.UUID
	Index      int32
	Content    string
	Embedding  []float32
}

// Result is a single similarity-search hit.
type Result struct {
	Chunk      Chunk
	Similarity float32 // cosine similarity, 1 = identical
}

// SearchOption configures similarity search using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK        int32
	documentIDs []uuid.UUID
	timeout     time.Duration
}

// DefaultTopK is the number of chunks returned when WithTopK is not given.
const DefaultTopK = 20

const defaultSearchTimeout = 10 * time.Second

// WithTopK sets the maximum number of results to return.
func WithTopK(k int32) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithDocumentIDs restricts results to chunks whose document_id is in ids.
// Search requires this restriction; an unscoped search would leak chunks
// across bots and tenants.
func WithDocumentIDs(ids []uuid.UUID) SearchOption {
	return func(c *searchConfig) {
		c.documentIDs = ids
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    DefaultTopK,
		timeout: defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
