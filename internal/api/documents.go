package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/brightclass/tutorcore/internal/document"
	"github.com/brightclass/tutorcore/internal/ingest"
)

// Ingestor starts document ingestion runs.
type Ingestor interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Run, error)
	Reingest(ctx context.Context, req ingest.Request) (*ingest.Run, error)
}

// DocumentStore is the handler's view of document rows.
type DocumentStore interface {
	Create(ctx context.Context, tenantID uuid.UUID, name string) (*document.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*document.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// VectorPurger removes a document's chunk vectors.
type VectorPurger interface {
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
}

type documentHandler struct {
	documents DocumentStore
	vectors   VectorPurger
	ingestor  Ingestor
	spoolDir  string // transient upload files live here until ingestion finishes
	logger    *slog.Logger
}

type createDocumentRequest struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Content  string `json:"content"`
}

type createDocumentResponse struct {
	DocumentID string `json:"document_id"`
}

// create accepts a document, records it at progress 0, and starts ingestion
// in the background. Responds 202 immediately; progress is polled via get.
func (h *documentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "tenant_id is not a valid uuid")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "content is empty")
		return
	}

	doc, err := h.documents.Create(r.Context(), tenantID, req.Name)
	if err != nil {
		h.logger.Error("creating document", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not create document")
		return
	}

	spool, err := h.spoolContent(doc.ID, req.Content)
	if err != nil {
		h.logger.Error("spooling document content", "document_id", doc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not store upload")
		return
	}

	run, err := h.ingestor.Ingest(r.Context(), ingest.Request{
		DocumentID: doc.ID,
		TenantID:   tenantID,
		SourcePath: spool,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "ingest_failed", err.Error())
		return
	}

	// Fire and forget: drain progress in the background so the run never
	// blocks, and log the terminal state.
	go func() {
		for range run.Progress {
		}
		if err := run.Wait(); err != nil {
			h.logger.Error("ingestion failed", "document_id", doc.ID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, createDocumentResponse{DocumentID: doc.ID.String()})
}

type documentResponse struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Progress   int32  `json:"progress"`
}

// get reports a document's ingestion progress.
func (h *documentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "document id is not a valid uuid")
		return
	}

	doc, err := h.documents.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		h.logger.Error("loading document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load document")
		return
	}

	writeJSON(w, http.StatusOK, documentResponse{
		DocumentID: doc.ID.String(),
		Name:       doc.Name,
		Progress:   doc.Progress,
	})
}

// delete removes a document's vectors and then its row, in that order, so a
// crash between the two never leaves vectors without a row.
func (h *documentHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "document id is not a valid uuid")
		return
	}

	if _, err := h.documents.Get(r.Context(), id); err != nil {
		if errors.Is(err, document.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		h.logger.Error("loading document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load document")
		return
	}

	if _, err := h.vectors.DeleteByDocument(r.Context(), id); err != nil {
		h.logger.Error("deleting document vectors", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not delete document vectors")
		return
	}
	if err := h.documents.Delete(r.Context(), id); err != nil {
		h.logger.Error("deleting document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not delete document")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// spoolContent writes uploaded content to a transient file for the pipeline,
// which removes it when the run finishes.
func (h *documentHandler) spoolContent(docID uuid.UUID, content string) (string, error) {
	dir := h.spoolDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("upload-%s.txt", docID))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", err
	}
	return path, nil
}
