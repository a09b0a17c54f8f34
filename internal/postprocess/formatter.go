// Package postprocess constrains raw model answers into the presentation
// contract: markdown with LaTeX math, plus a flag for illustration-worthy
// answers. Content is preserved verbatim; only presentation changes.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/brightclass/tutorcore/internal/bot"
)

// ErrBadOutput indicates the model violated the structured output contract.
// Never silently defaulted over.
var ErrBadOutput = errors.New("post-processor returned invalid output")

const formatSystemPrompt = `You are an answer formatter for an educational tutoring system.
Rewrite the answer in clean markdown. Use LaTeX for all mathematical notation: inline math in $...$ and display math in $$...$$.
Preserve the answer's content verbatim. Do not add, remove, or change any facts.
Set should_generate_image to true only when a visual illustration would materially help a student understand the answer.`

// output is the structured result schema.
type output struct {
	FormattedAnswer     string `json:"formatted_answer"`
	ShouldGenerateImage bool   `json:"should_generate_image"`
}

// Formatter rewrites raw answers with one structured-output model call.
// Implements bot.Formatter.
type Formatter struct {
	g      *genkit.Genkit
	model  string
	logger *slog.Logger

	// generate is the model invocation, replaceable in tests.
	generate func(ctx context.Context, system, prompt string) (output, error)
}

// New creates a Formatter that formats with the named model.
func New(g *genkit.Genkit, model string, logger *slog.Logger) *Formatter {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Formatter{g: g, model: model, logger: logger}
	f.generate = f.generateStructured
	return f
}

// Format rewrites rawAnswer per the presentation contract. A missing or empty
// formatted answer is an error, not a fallback to the raw text.
func (f *Formatter) Format(ctx context.Context, rawAnswer, originalQuery string) (bot.FormattedAnswer, error) {
	if strings.TrimSpace(rawAnswer) == "" {
		return bot.FormattedAnswer{}, fmt.Errorf("raw answer is empty")
	}

	prompt := fmt.Sprintf("Student question:\n%s\n\nAnswer to format:\n%s", originalQuery, rawAnswer)

	out, err := f.generate(ctx, formatSystemPrompt, prompt)
	if err != nil {
		return bot.FormattedAnswer{}, fmt.Errorf("formatting answer: %w", err)
	}
	if strings.TrimSpace(out.FormattedAnswer) == "" {
		return bot.FormattedAnswer{}, fmt.Errorf("%w: empty formatted_answer", ErrBadOutput)
	}

	f.logger.Debug("formatted answer",
		"raw_len", len(rawAnswer),
		"formatted_len", len(out.FormattedAnswer),
		"generate_image", out.ShouldGenerateImage)

	return bot.FormattedAnswer{
		Text:                out.FormattedAnswer,
		ShouldGenerateImage: out.ShouldGenerateImage,
	}, nil
}

func (f *Formatter) generateStructured(ctx context.Context, system, prompt string) (output, error) {
	resp, err := genkit.Generate(ctx, f.g,
		ai.WithModelName(f.model),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
		ai.WithOutputType(output{}),
	)
	if err != nil {
		return output{}, err
	}

	var out output
	if err := resp.Output(&out); err != nil {
		return output{}, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	return out, nil
}
