package knowledge_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/brightclass/tutorcore/internal/knowledge"
	"github.com/brightclass/tutorcore/internal/testutil"
)

// vec builds a 1536-dimensional unit vector pointing along one axis, so
// cosine similarity between two vec() results is 1 for the same axis and
// 0 otherwise.
func vec(axis int) []float32 {
	v := make([]float32, 1536)
	v[axis] = 1
	return v
}

func TestStoreAgainstPostgres(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := knowledge.New(knowledge.NewQueries(db.Pool), nil)
	ctx := context.Background()

	tenantID := uuid.New()
	docA := uuid.New()
	docB := uuid.New()

	chunks := []knowledge.Chunk{
		{ID: docA.String() + "-0000", DocumentID: docA, TenantID: tenantID, Index: 0, Content: "osmosis moves water across membranes", Embedding: vec(0)},
		{ID: docA.String() + "-0001", DocumentID: docA, TenantID: tenantID, Index: 1, Content: "diffusion follows concentration gradients", Embedding: vec(1)},
		{ID: docB.String() + "-0000", DocumentID: docB, TenantID: tenantID, Index: 0, Content: "photosynthesis converts light to sugar", Embedding: vec(0)},
	}
	for _, c := range chunks {
		if err := store.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert(%s): %v", c.ID, err)
		}
	}

	t.Run("search is scoped to the given documents", func(t *testing.T) {
		results, err := store.Search(ctx, vec(0),
			knowledge.WithDocumentIDs([]uuid.UUID{docA}),
			knowledge.WithTopK(10))
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("got %d results, want 2", len(results))
		}
		for _, r := range results {
			if r.Chunk.DocumentID != docA {
				t.Errorf("result %q belongs to document %s, want %s", r.Chunk.ID, r.Chunk.DocumentID, docA)
			}
		}
		// vec(0) matches the first chunk exactly.
		if results[0].Chunk.Index != 0 {
			t.Errorf("best match has index %d, want 0", results[0].Chunk.Index)
		}
		if results[0].Similarity < results[1].Similarity {
			t.Errorf("results not ordered by similarity: %v then %v",
				results[0].Similarity, results[1].Similarity)
		}
		if results[0].Similarity < 0.99 {
			t.Errorf("exact match similarity = %v, want ~1", results[0].Similarity)
		}
	})

	t.Run("search refuses to run unscoped", func(t *testing.T) {
		if _, err := store.Search(ctx, vec(0)); err == nil {
			t.Fatal("Search without document ids succeeded, want error")
		}
	})

	t.Run("top k limits results", func(t *testing.T) {
		results, err := store.Search(ctx, vec(0),
			knowledge.WithDocumentIDs([]uuid.UUID{docA, docB}),
			knowledge.WithTopK(1))
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
	})

	t.Run("upsert replaces an existing chunk", func(t *testing.T) {
		updated := chunks[0]
		updated.Content = "osmosis, revised"
		if err := store.Upsert(ctx, updated); err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		n, err := store.CountByDocument(ctx, docA)
		if err != nil {
			t.Fatalf("CountByDocument: %v", err)
		}
		if n != 2 {
			t.Fatalf("count after upsert = %d, want 2", n)
		}

		results, err := store.Search(ctx, vec(0),
			knowledge.WithDocumentIDs([]uuid.UUID{docA}), knowledge.WithTopK(1))
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if results[0].Chunk.Content != "osmosis, revised" {
			t.Errorf("content = %q, want the replaced text", results[0].Chunk.Content)
		}
	})

	t.Run("delete removes only the target document", func(t *testing.T) {
		n, err := store.DeleteByDocument(ctx, docA)
		if err != nil {
			t.Fatalf("DeleteByDocument: %v", err)
		}
		if n != 2 {
			t.Errorf("deleted %d chunks, want 2", n)
		}

		remaining, err := store.CountByDocument(ctx, docB)
		if err != nil {
			t.Fatalf("CountByDocument: %v", err)
		}
		if remaining != 1 {
			t.Errorf("document B has %d chunks after deleting A, want 1", remaining)
		}
	})
}
