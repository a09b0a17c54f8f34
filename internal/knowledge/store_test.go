package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/brightclass/tutorcore/internal/log"
)

// mockQuerier implements Querier for testing.
type mockQuerier struct {
	upsertErr  error
	searchErr  error
	searchRows []SearchChunksRow

	lastUpsert UpsertChunkParams
	lastSearch SearchChunksParams
	deleted    []string
	deleteN    int64
}

func (m *mockQuerier) UpsertChunk(_ context.Context, arg UpsertChunkParams) error {
	m.lastUpsert = arg
	return m.upsertErr
}

func (m *mockQuerier) SearchChunks(_ context.Context, arg SearchChunksParams) ([]SearchChunksRow, error) {
	m.lastSearch = arg
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchRows, nil
}

func (m *mockQuerier) DeleteChunksByDocument(_ context.Context, documentID string) (int64, error) {
	m.deleted = append(m.deleted, documentID)
	return m.deleteN, nil
}

func (m *mockQuerier) CountChunksByDocument(_ context.Context, _ string) (int64, error) {
	return int64(len(m.searchRows)), nil
}

func TestUpsert_Validation(t *testing.T) {
	t.Parallel()

	q := &mockQuerier{}
	store := New(q, log.NewNop())
	ctx := context.Background()

	if err := store.Upsert(ctx, Chunk{}); err == nil {
		t.Error("expected error for empty chunk id")
	}
	if err := store.Upsert(ctx, Chunk{ID: "d-0001"}); err == nil {
		t.Error("expected error for empty embedding")
	}
}

func TestUpsert_PassesFields(t *testing.T) {
	t.Parallel()

	q := &mockQuerier{}
	store := New(q, log.NewNop())

	docID := uuid.New()
	tenantID := uuid.New()
	chunk := Chunk{
		ID:         docID.String() + "-0003",
		DocumentID: docID,
		TenantID:   tenantID,
		Index:      3,
		Content:    "photosynthesis converts light energy",
		Embedding:  []float32{0.1, 0.2, 0.3},
	}

	if err := store.Upsert(context.Background(), chunk); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got := q.lastUpsert
	if got.DocumentID != docID.String() {
		t.Errorf("document id = %q, want %q", got.DocumentID, docID)
	}
	if got.TenantID != tenantID.String() {
		t.Errorf("tenant id = %q, want %q", got.TenantID, tenantID)
	}
	if got.ChunkIndex != 3 {
		t.Errorf("chunk index = %d, want 3", got.ChunkIndex)
	}
	if got.Embedding == nil {
		t.Error("embedding not passed")
	}
}

func TestSearch_RequiresDocumentScope(t *testing.T) {
	t.Parallel()

	store := New(&mockQuerier{}, log.NewNop())

	_, err := store.Search(context.Background(), []float32{0.1})
	if err == nil {
		t.Fatal("expected error for unscoped search")
	}
}

func TestSearch_DefaultTopKAndScope(t *testing.T) {
	t.Parallel()

	docID := uuid.New()
	q := &mockQuerier{
		searchRows: []SearchChunksRow{
			{ID: docID.String() + "-0000", DocumentID: docID.String(), TenantID: uuid.New().String(), Content: "mitosis", Similarity: 0.92},
		},
	}
	store := New(q, log.NewNop())

	results, err := store.Search(context.Background(), []float32{0.5, 0.5},
		WithDocumentIDs([]uuid.UUID{docID}))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if q.lastSearch.ResultLimit != DefaultTopK {
		t.Errorf("limit = %d, want default %d", q.lastSearch.ResultLimit, DefaultTopK)
	}
	if len(q.lastSearch.DocumentIDs) != 1 || q.lastSearch.DocumentIDs[0] != docID.String() {
		t.Errorf("document scope = %v, want [%s]", q.lastSearch.DocumentIDs, docID)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Chunk.DocumentID != docID {
		t.Errorf("result document id = %s, want %s", results[0].Chunk.DocumentID, docID)
	}
	if results[0].Similarity != 0.92 {
		t.Errorf("similarity = %f, want 0.92", results[0].Similarity)
	}
}

func TestSearch_CustomTopK(t *testing.T) {
	t.Parallel()

	q := &mockQuerier{}
	store := New(q, log.NewNop())

	_, err := store.Search(context.Background(), []float32{1},
		WithDocumentIDs([]uuid.UUID{uuid.New()}),
		WithTopK(5))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if q.lastSearch.ResultLimit != 5 {
		t.Errorf("limit = %d, want 5", q.lastSearch.ResultLimit)
	}
}

func TestSearch_QuerierError(t *testing.T) {
	t.Parallel()

	q := &mockQuerier{searchErr: errors.New("connection refused")}
	store := New(q, log.NewNop())

	_, err := store.Search(context.Background(), []float32{1},
		WithDocumentIDs([]uuid.UUID{uuid.New()}))
	if err == nil {
		t.Fatal("expected error from querier")
	}
}

func TestDeleteByDocument(t *testing.T) {
	t.Parallel()

	q := &mockQuerier{deleteN: 4}
	store := New(q, log.NewNop())

	docID := uuid.New()
	n, err := store.DeleteByDocument(context.Background(), docID)
	if err != nil {
		t.Fatalf("DeleteByDocument failed: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted = %d, want 4", n)
	}
	if len(q.deleted) != 1 || q.deleted[0] != docID.String() {
		t.Errorf("delete scope = %v, want [%s]", q.deleted, docID)
	}
}
