// Package retrieval implements the similarity-search tool the conversation
// engine offers to the model: embed a query, search the chunk store scoped
// to a set of document ids, return attributed snippets.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/brightclass/tutorcore/internal/knowledge"
)

// ErrNoDocuments indicates retrieval was attempted with an empty document
// scope. The engine guards this before calling; this is a defensive check.
var ErrNoDocuments = errors.New("no files are attached to this bot")

// Snippet is one retrieved chunk with source attribution.
type Snippet struct {
	Text       string
	DocumentID uuid.UUID
	Similarity float32
}

// Searcher is the tool's view of the knowledge store.
type Searcher interface {
	Search(ctx context.Context, queryEmbedding []float32, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Tool performs metadata-scoped similarity search. It has no side effects
// and is safe to call zero or more times per conversation turn.
type Tool struct {
	embedder ai.Embedder
	store    Searcher
	topK     int32
	logger   *slog.Logger
}

// NewTool creates the retrieval tool. topK <= 0 uses knowledge.DefaultTopK.
func NewTool(embedder ai.Embedder, store Searcher, topK int32, logger *slog.Logger) *Tool {
	if topK <= 0 {
		topK = knowledge.DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{embedder: embedder, store: store, topK: topK, logger: logger}
}

// Retrieve returns the chunks most similar to query among the allowed
// documents, ranked by cosine similarity.
func (t *Tool) Retrieve(ctx context.Context, query string, allowedDocumentIDs []uuid.UUID) ([]Snippet, error) {
	if len(allowedDocumentIDs) == 0 {
		return nil, ErrNoDocuments
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("retrieval query is empty")
	}

	resp, err := t.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned for query")
	}

	results, err := t.store.Search(ctx, resp.Embeddings[0].Embedding,
		knowledge.WithDocumentIDs(allowedDocumentIDs),
		knowledge.WithTopK(t.topK))
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	snippets := make([]Snippet, 0, len(results))
	for _, r := range results {
		snippets = append(snippets, Snippet{
			Text:       r.Chunk.Content,
			DocumentID: r.Chunk.DocumentID,
			Similarity: r.Similarity,
		})
	}

	t.logger.Debug("retrieved snippets", "count", len(snippets), "scope", len(allowedDocumentIDs))
	return snippets, nil
}

// Render formats snippets as a tool-result message body with source
// attribution.
func Render(snippets []Snippet) string {
	if len(snippets) == 0 {
		return "No matching content found."
	}
	var sb strings.Builder
	for i, s := range snippets {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[source: %s]\n%s", s.DocumentID, s.Text)
	}
	return sb.String()
}
