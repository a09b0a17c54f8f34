package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/brightclass/tutorcore/internal/bot"
)

// BotStore manages bot configuration rows.
type BotStore interface {
	Create(ctx context.Context, b bot.Bot) error
	SetDocuments(ctx context.Context, botID uuid.UUID, documentIDs []uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ThreadPurger removes all conversation threads of a bot.
type ThreadPurger interface {
	DeleteBot(ctx context.Context, botID uuid.UUID) error
}

type botHandler struct {
	bots    BotStore
	source  BotSource
	threads ThreadPurger
	logger  *slog.Logger
}

type createBotRequest struct {
	TenantID     string   `json:"tenant_id"`
	Name         string   `json:"name"`
	SystemPrompt string   `json:"system_prompt"`
	ModelName    string   `json:"model_name"`
	Greeting     string   `json:"greeting"`
	DocumentIDs  []string `json:"document_ids"`
}

type botResponse struct {
	BotID       string   `json:"bot_id"`
	Name        string   `json:"name"`
	ModelName   string   `json:"model_name"`
	Greeting    string   `json:"greeting"`
	DocumentIDs []string `json:"document_ids"`
}

func (h *botHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
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
	if strings.TrimSpace(req.ModelName) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "model_name is required")
		return
	}
	docIDs, err := parseUUIDs(req.DocumentIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "document_ids contains an invalid uuid")
		return
	}

	b := bot.Bot{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Name:         req.Name,
		SystemPrompt: req.SystemPrompt,
		ModelName:    req.ModelName,
		Greeting:     req.Greeting,
		DocumentIDs:  docIDs,
	}
	if err := h.bots.Create(r.Context(), b); err != nil {
		h.logger.Error("creating bot", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not create bot")
		return
	}

	writeJSON(w, http.StatusCreated, toBotResponse(b))
}

func (h *botHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "bot id is not a valid uuid")
		return
	}

	b, err := h.source.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, bot.ErrBotNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "bot not found")
			return
		}
		h.logger.Error("loading bot", "bot_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load bot")
		return
	}

	writeJSON(w, http.StatusOK, toBotResponse(b))
}

type setBotDocumentsRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

func (h *botHandler) setDocuments(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "bot id is not a valid uuid")
		return
	}

	var req setBotDocumentsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	docIDs, err := parseUUIDs(req.DocumentIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "document_ids contains an invalid uuid")
		return
	}

	if err := h.bots.SetDocuments(r.Context(), id, docIDs); err != nil {
		h.logger.Error("linking bot documents", "bot_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not update bot documents")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// delete removes the bot row and purges its conversation threads. Thread
// purge failure is logged but does not fail the delete: orphaned
// checkpoints are unreachable once the bot row is gone.
func (h *botHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "bot id is not a valid uuid")
		return
	}

	if err := h.bots.Delete(r.Context(), id); err != nil {
		if errors.Is(err, bot.ErrBotNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "bot not found")
			return
		}
		h.logger.Error("deleting bot", "bot_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not delete bot")
		return
	}

	if err := h.threads.DeleteBot(r.Context(), id); err != nil {
		h.logger.Error("purging bot threads", "bot_id", id, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toBotResponse(b bot.Bot) botResponse {
	docIDs := make([]string, 0, len(b.DocumentIDs))
	for _, id := range b.DocumentIDs {
		docIDs = append(docIDs, id.String())
	}
	return botResponse{
		BotID:       b.ID.String(),
		Name:        b.Name,
		ModelName:   b.ModelName,
		Greeting:    b.Greeting,
		DocumentIDs: docIDs,
	}
}
