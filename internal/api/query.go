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

// QueryEngine runs one conversation turn.
type QueryEngine interface {
	Query(ctx context.Context, b bot.Bot, userID uuid.UUID, question string) (*bot.Answer, error)
}

// BotSource loads bot configurations.
type BotSource interface {
	Get(ctx context.Context, id uuid.UUID) (bot.Bot, error)
}

type queryHandler struct {
	engine QueryEngine
	bots   BotSource
	logger *slog.Logger
}

type queryRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
}

type snippetResponse struct {
	Text       string  `json:"text"`
	DocumentID string  `json:"document_id"`
	Similarity float32 `json:"similarity"`
}

type queryResponse struct {
	Answer    string            `json:"answer"`
	ImageFile string            `json:"image_file,omitempty"`
	Snippets  []snippetResponse `json:"snippets,omitempty"`
}

// query runs one conversation turn against a bot.
func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	botID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "bot id is not a valid uuid")
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id is not a valid uuid")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "question is required")
		return
	}

	b, err := h.bots.Get(r.Context(), botID)
	if err != nil {
		if errors.Is(err, bot.ErrBotNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "bot not found")
			return
		}
		h.logger.Error("loading bot", "bot_id", botID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load bot")
		return
	}

	answer, err := h.engine.Query(r.Context(), b, userID, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, bot.ErrNoDocuments):
			writeError(w, http.StatusUnprocessableEntity, "no_documents", err.Error())
		case errors.Is(err, bot.ErrGenerationFailed):
			h.logger.Error("generation failed", "bot_id", botID, "error", err)
			writeError(w, http.StatusBadGateway, "generation_failed", "the model could not produce an answer")
		default:
			h.logger.Error("query failed", "bot_id", botID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "query failed")
		}
		return
	}

	resp := queryResponse{Answer: answer.Text, ImageFile: answer.ImageFile}
	for _, s := range answer.Snippets {
		resp.Snippets = append(resp.Snippets, snippetResponse{
			Text:       s.Text,
			DocumentID: s.DocumentID.String(),
			Similarity: s.Similarity,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
