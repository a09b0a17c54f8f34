// Package testutil provides deterministic test doubles shared across
// package tests: a hash-based embedder and a scripted chat model.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// Embedder is a deterministic ai.Embedder: the same text always produces the
// same unit-length vector, so similarity comparisons are stable across runs.
type Embedder struct {
	Dim int
	Err error // returned from Embed when set

	mu    sync.Mutex
	calls int
}

// NewEmbedder creates a deterministic embedder producing dim-length vectors.
func NewEmbedder(dim int) *Embedder {
	return &Embedder{Dim: dim}
}

// Name implements ai.Embedder.
func (e *Embedder) Name() string { return "testutil/embedder" }

// Register implements ai.Embedder. No-op for tests.
func (e *Embedder) Register(api.Registry) {}

// Embed implements ai.Embedder.
func (e *Embedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings := make([]*ai.Embedding, 0, len(req.Input))
	for _, doc := range req.Input {
		var text string
		if len(doc.Content) > 0 {
			text = doc.Content[0].Text
		}
		embeddings = append(embeddings, &ai.Embedding{Embedding: e.vector(text)})
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// Calls returns how many times Embed was invoked.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// vector expands a sha256 digest of the text into a normalized vector.
func (e *Embedder) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))

	vec := make([]float32, e.Dim)
	var norm float64
	for i := range vec {
		// Cycle through the digest four bytes at a time.
		off := (i * 4) % (len(sum) - 3)
		bits := binary.BigEndian.Uint32(sum[off : off+4])
		v := float64(bits)/float64(math.MaxUint32) - 0.5
		vec[i] = float32(v)
		norm += v * v
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
