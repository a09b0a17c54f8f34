package grading

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
)

const textGradeSystemPrompt = `You are a strict but fair grader for student answers.
Grade the student's answer against the reference answer on conceptual correctness only.
Ignore grammar, spelling, and phrasing differences. Partial credit is allowed.`

const imageGradeSystemPrompt = `You are a grader for handwritten student answers submitted as photos.
Read the student's work in the image and grade it against the question and reference answer on conceptual correctness only.
Respond with JSON only, no other text, in exactly this shape: {"obtained_score": <integer>, "remarks": "<short feedback>"}`

// textScore is the structured-output schema for text grading.
type textScore struct {
	Score int `json:"score"`
}

// SubmissionStore is the service's view of submission persistence.
type SubmissionStore interface {
	Get(ctx context.Context, id uuid.UUID) (Submission, error)
	Mark(ctx context.Context, id uuid.UUID, score int, remarks string) error
}

// Service grades submissions. Safe for concurrent use.
type Service struct {
	g      *genkit.Genkit
	model  string
	store  SubmissionStore
	logger *slog.Logger

	// Model invocations, replaceable in tests.
	generateScore  func(ctx context.Context, system, prompt string) (textScore, error)
	generateVision func(ctx context.Context, system string, msg *ai.Message) (string, error)
}

// NewService creates a grading Service using the named model.
func NewService(g *genkit.Genkit, model string, store SubmissionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{g: g, model: model, store: store, logger: logger}
	s.generateScore = s.generateScoreStructured
	s.generateVision = s.generateVisionText
	return s
}

// GradeChoice grades a multiple-choice answer by lookup. No model call, no
// side effects: full marks for the correct option, zero otherwise.
func (s *Service) GradeChoice(q Question, selected int) int {
	if selected < 0 || selected >= len(q.Options) {
		return 0
	}
	if q.Options[selected].IsCorrect {
		return q.MaxScore
	}
	return 0
}

// GradeText grades a free-text answer with one structured-output call. The
// returned score is clamped to [0, q.MaxScore].
func (s *Service) GradeText(ctx context.Context, q Question, answer string) (int, error) {
	if strings.TrimSpace(answer) == "" {
		return 0, nil
	}

	prompt := fmt.Sprintf(
		"Question:\n%s\n\nReference answer:\n%s\n\nStudent answer:\n%s\n\nMaximum score: %d\nReturn the score the student earned.",
		q.Text, q.ModelAnswer, answer, q.MaxScore)

	out, err := s.generateScore(ctx, textGradeSystemPrompt, prompt)
	if err != nil {
		return 0, fmt.Errorf("grading text answer: %w", err)
	}

	score := out.Score
	if score < 0 {
		score = 0
	}
	if score > q.MaxScore {
		score = q.MaxScore
	}
	return score, nil
}

// GradeImage grades a photographed answer with one multimodal call. It never
// returns an error: any failure, from reading the file to parsing the model's
// JSON, degrades to a zero score with an error remark so a bad photo cannot
// take down a grading batch.
func (s *Service) GradeImage(ctx context.Context, q Question, imagePath string) GradeResult {
	part, err := imagePart(imagePath)
	if err != nil {
		return s.degraded("reading answer image", err)
	}

	prompt := fmt.Sprintf(
		"Question:\n%s\n\nReference answer:\n%s\n\nMaximum score: %d",
		q.Text, q.ModelAnswer, q.MaxScore)
	msg := ai.NewUserMessage(part, ai.NewTextPart(prompt))

	raw, err := s.generateVision(ctx, imageGradeSystemPrompt, msg)
	if err != nil {
		return s.degraded("vision model call", err)
	}

	var result GradeResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &result); err != nil {
		return s.degraded("parsing vision grade", fmt.Errorf("%w: %q", err, raw))
	}

	if result.ObtainedScore < 0 {
		result.ObtainedScore = 0
	}
	if result.ObtainedScore > q.MaxScore {
		result.ObtainedScore = q.MaxScore
	}
	return result
}

// GradeSubmission grades one stored submission by its kind and persists the
// result. A submission already marked is rejected with ErrAlreadyMarked
// before any model call and keeps its stored score and remarks.
func (s *Service) GradeSubmission(ctx context.Context, id uuid.UUID, q Question) (GradeResult, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return GradeResult{}, err
	}
	if sub.Marked {
		return GradeResult{}, fmt.Errorf("grading submission %s: %w", id, ErrAlreadyMarked)
	}

	var result GradeResult
	switch sub.Kind {
	case KindChoice:
		selected, err := strconv.Atoi(strings.TrimSpace(sub.Content))
		if err != nil {
			return GradeResult{}, fmt.Errorf("submission %s has non-numeric choice %q", id, sub.Content)
		}
		result = GradeResult{ObtainedScore: s.GradeChoice(q, selected)}

	case KindText:
		score, err := s.GradeText(ctx, q, sub.Content)
		if err != nil {
			return GradeResult{}, err
		}
		result = GradeResult{ObtainedScore: score}

	case KindImage:
		result = s.GradeImage(ctx, q, sub.ImagePath)

	default:
		return GradeResult{}, fmt.Errorf("submission %s has unknown kind %q", id, sub.Kind)
	}

	if err := s.store.Mark(ctx, id, result.ObtainedScore, result.Remarks); err != nil {
		return GradeResult{}, err
	}

	s.logger.Info("graded submission", "submission_id", id, "kind", sub.Kind, "score", result.ObtainedScore)
	return result, nil
}

func (s *Service) degraded(stage string, err error) GradeResult {
	s.logger.Warn("image grading degraded", "stage", stage, "error", err)
	return GradeResult{ObtainedScore: 0, Remarks: fmt.Sprintf("Error: %s: %v", stage, err)}
}

func (s *Service) generateScoreStructured(ctx context.Context, system, prompt string) (textScore, error) {
	resp, err := genkit.Generate(ctx, s.g,
		ai.WithModelName(s.model),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
		ai.WithOutputType(textScore{}),
	)
	if err != nil {
		return textScore{}, err
	}

	var out textScore
	if err := resp.Output(&out); err != nil {
		return textScore{}, err
	}
	return out, nil
}

func (s *Service) generateVisionText(ctx context.Context, system string, msg *ai.Message) (string, error) {
	resp, err := genkit.Generate(ctx, s.g,
		ai.WithModelName(s.model),
		ai.WithSystem(system),
		ai.WithMessages(msg),
	)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// imagePart reads an answer photo and wraps it as a base64 data-URI media
// part. Content type comes from the bytes, with extension as fallback.
func imagePart(path string) (*ai.Part, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", path, err)
	}

	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jpg", ".jpeg":
			mediaType = "image/jpeg"
		case ".png":
			mediaType = "image/png"
		case ".webp":
			mediaType = "image/webp"
		default:
			return nil, fmt.Errorf("file %s is not an image (detected %s)", path, mediaType)
		}
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	return ai.NewMediaPart(mediaType, "data:"+mediaType+";base64,"+encoded), nil
}
