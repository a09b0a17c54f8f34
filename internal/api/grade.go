package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/brightclass/tutorcore/internal/grading"
)

// Grader is the handler's view of the grading service.
type Grader interface {
	GradeChoice(q grading.Question, selected int) int
	GradeText(ctx context.Context, q grading.Question, answer string) (int, error)
	GradeImage(ctx context.Context, q grading.Question, imagePath string) grading.GradeResult
	GradeSubmission(ctx context.Context, id uuid.UUID, q grading.Question) (grading.GradeResult, error)
}

type gradeHandler struct {
	grader Grader
	logger *slog.Logger
}

type gradeTextRequest struct {
	Question grading.Question `json:"question"`
	Answer   string           `json:"answer"`
}

type gradeChoiceRequest struct {
	Question grading.Question `json:"question"`
	Selected int              `json:"selected"`
}

type gradeImageRequest struct {
	Question  grading.Question `json:"question"`
	ImagePath string           `json:"image_path"`
}

type gradeResponse struct {
	ObtainedScore int    `json:"obtained_score"`
	Remarks       string `json:"remarks,omitempty"`
}

// gradeText grades a free-text answer.
func (h *gradeHandler) gradeText(w http.ResponseWriter, r *http.Request) {
	var req gradeTextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	score, err := h.grader.GradeText(r.Context(), req.Question, req.Answer)
	if err != nil {
		h.logger.Error("text grading failed", "error", err)
		writeError(w, http.StatusBadGateway, "grading_failed", "the model could not grade the answer")
		return
	}
	writeJSON(w, http.StatusOK, gradeResponse{ObtainedScore: score})
}

// gradeChoice grades a multiple-choice answer. Deterministic, no model call.
func (h *gradeHandler) gradeChoice(w http.ResponseWriter, r *http.Request) {
	var req gradeChoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, gradeResponse{ObtainedScore: h.grader.GradeChoice(req.Question, req.Selected)})
}

// gradeImage grades a photographed answer. Always 200: failures surface as a
// zero score with an error remark.
func (h *gradeHandler) gradeImage(w http.ResponseWriter, r *http.Request) {
	var req gradeImageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	result := h.grader.GradeImage(r.Context(), req.Question, req.ImagePath)
	writeJSON(w, http.StatusOK, gradeResponse{ObtainedScore: result.ObtainedScore, Remarks: result.Remarks})
}

type gradeSubmissionRequest struct {
	Question grading.Question `json:"question"`
}

// gradeSubmission grades a stored submission once. Repeat attempts conflict.
func (h *gradeHandler) gradeSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "submission id is not a valid uuid")
		return
	}

	var req gradeSubmissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	result, err := h.grader.GradeSubmission(r.Context(), id, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, grading.ErrAlreadyMarked):
			writeError(w, http.StatusConflict, "already_marked", "submission already marked")
		case errors.Is(err, grading.ErrSubmissionNotFound):
			writeError(w, http.StatusNotFound, "not_found", "submission not found")
		default:
			h.logger.Error("submission grading failed", "submission_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "grading failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, gradeResponse{ObtainedScore: result.ObtainedScore, Remarks: result.Remarks})
}
