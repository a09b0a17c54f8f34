// Package grading implements automated marking of student submissions:
// multiple-choice by pure lookup, free-text and handwritten-image answers
// by model call. Each submission is marked exactly once.
package grading

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyMarked indicates a grading attempt against a submission
	// that has already been marked. The stored score is never overwritten.
	ErrAlreadyMarked = errors.New("submission already marked")

	// ErrSubmissionNotFound indicates the submission row does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
)

// SubmissionKind distinguishes the three gradable answer forms.
type SubmissionKind string

const (
	KindChoice SubmissionKind = "choice"
	KindText   SubmissionKind = "text"
	KindImage  SubmissionKind = "image"
)

// Option is one multiple-choice alternative.
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is the grading rubric for one question.
type Question struct {
	Text        string   `json:"text"`
	ModelAnswer string   `json:"model_answer,omitempty"` // reference answer for text/image grading
	Options     []Option `json:"options,omitempty"`      // set for multiple choice
	MaxScore    int      `json:"max_score"`
}

// Submission is one student answer awaiting or holding a grade. Content is
// the selected option index for choice questions and the free-text answer
// otherwise; ImagePath points at the uploaded answer photo for image kind.
type Submission struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Kind          SubmissionKind
	Content       string
	ImagePath     string
	ObtainedScore int
	Remarks       string
	Marked        bool
}

// GradeResult is a finished grade. For image grading it is always populated:
// failures yield a zero score with an error remark instead of propagating.
type GradeResult struct {
	ObtainedScore int    `json:"obtained_score"`
	Remarks       string `json:"remarks"`
}
