package document_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/brightclass/tutorcore/internal/document"
	"github.com/brightclass/tutorcore/internal/testutil"
)

func TestStoreAgainstPostgres(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := document.New(document.NewQueries(db.Pool), nil)
	ctx := context.Background()

	doc, err := store.Create(ctx, uuid.New(), "cell-biology.txt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	t.Run("new documents start at progress zero", func(t *testing.T) {
		got, err := store.Get(ctx, doc.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Progress != 0 {
			t.Errorf("progress = %d, want 0", got.Progress)
		}
		if got.Name != "cell-biology.txt" {
			t.Errorf("name = %q", got.Name)
		}
	})

	t.Run("progress never decreases", func(t *testing.T) {
		if err := store.UpdateProgress(ctx, doc.ID, 67); err != nil {
			t.Fatalf("UpdateProgress(67): %v", err)
		}
		// A late batch report must not roll progress back.
		if err := store.UpdateProgress(ctx, doc.ID, 34); err != nil {
			t.Fatalf("UpdateProgress(34): %v", err)
		}

		got, err := store.Get(ctx, doc.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Progress != 67 {
			t.Errorf("progress = %d, want 67 after out-of-order write", got.Progress)
		}

		if err := store.UpdateProgress(ctx, doc.ID, 100); err != nil {
			t.Fatalf("UpdateProgress(100): %v", err)
		}
		got, err = store.Get(ctx, doc.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Progress != 100 {
			t.Errorf("progress = %d, want 100", got.Progress)
		}
	})

	t.Run("delete removes the row", func(t *testing.T) {
		if err := store.Delete(ctx, doc.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		_, err := store.Get(ctx, doc.ID)
		if !errors.Is(err, document.ErrNotFound) {
			t.Fatalf("Get after delete = %v, want ErrNotFound", err)
		}
	})
}
