package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/brightclass/tutorcore/internal/retrieval"
)

// state names the orchestration graph nodes. One query walks
// deciding -> {tools, generating} -> done; the tools state is visited at
// most once because the generating call offers no tools.
type state int

const (
	stateDeciding state = iota
	stateTools
	stateGenerating
	stateDone
)

// formattingDirective is appended to every bot's system prompt for the
// generating call. Content must be preserved; only presentation changes.
const formattingDirective = `Format your answer in markdown. Use LaTeX for all mathematical notation: inline math in $...$ and display math in $$...$$. Do not alter the substance of the answer.`

// Config contains the engine's dependencies.
type Config struct {
	Model       ChatModel
	Retriever   Retriever
	Checkpoints CheckpointStore
	Logger      *slog.Logger

	// Optional collaborators.
	Formatter Formatter      // nil = raw answers are returned unformatted
	Images    ImageGenerator // nil = illustration generation disabled
	Sink      MessageSink    // nil = no external chat-history persistence
}

func (cfg Config) validate() error {
	if cfg.Model == nil {
		return fmt.Errorf("chat model is required")
	}
	if cfg.Retriever == nil {
		return fmt.Errorf("retriever is required")
	}
	if cfg.Checkpoints == nil {
		return fmt.Errorf("checkpoint store is required")
	}
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// Engine runs the conversation orchestration graph. Safe for concurrent use;
// turns against the same thread key are serialized internally.
type Engine struct {
	model       ChatModel
	retriever   Retriever
	checkpoints CheckpointStore
	formatter   Formatter
	images      ImageGenerator
	sink        MessageSink
	logger      *slog.Logger

	mu     sync.Mutex
	locked map[string]*sync.Mutex // per-thread-key serialization
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		model:       cfg.Model,
		retriever:   cfg.Retriever,
		checkpoints: cfg.Checkpoints,
		formatter:   cfg.Formatter,
		images:      cfg.Images,
		sink:        cfg.Sink,
		logger:      cfg.Logger,
		locked:      make(map[string]*sync.Mutex),
	}, nil
}

// Query runs one conversation turn for the given bot and user.
//
// A bot with no linked documents is rejected before any provider call. The
// thread's checkpoint is loaded, the graph executes, and the full turn list
// (including tool-call scaffolding) is checkpointed back under the same key.
func (e *Engine) Query(ctx context.Context, b Bot, userID uuid.UUID, question string) (*Answer, error) {
	if len(b.DocumentIDs) == 0 {
		return nil, ErrNoDocuments
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is empty")
	}

	key := ThreadKey(b.ID, userID)
	unlock := e.lockThread(key)
	defer unlock()

	history, _, err := e.checkpoints.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", key, err)
	}

	turns := append(history, Turn{Kind: KindUser, Content: question})

	turns, snippets, err := e.run(ctx, b, turns)
	if err != nil {
		return nil, err
	}

	raw, ok := extractAnswer(turns)
	if !ok {
		return nil, ErrGenerationFailed
	}

	if err := e.checkpoints.Put(ctx, key, turns); err != nil {
		return nil, fmt.Errorf("saving checkpoint %s: %w", key, err)
	}

	answer := &Answer{Text: raw, Snippets: snippets}

	if e.formatter != nil {
		formatted, err := e.formatter.Format(ctx, raw, question)
		if err != nil {
			return nil, fmt.Errorf("formatting answer: %w", err)
		}
		answer.Text = formatted.Text
		answer.ShouldGenerateImage = formatted.ShouldGenerateImage

		if formatted.ShouldGenerateImage && e.images != nil {
			// Empty string is the generator's failure sentinel; the answer
			// still goes out without an illustration.
			answer.ImageFile = e.images.GenerateImage(ctx, imagePrompt(question, formatted.Text))
		}
	}

	e.persistTurn(ctx, b, userID, question, answer)

	return answer, nil
}

// run executes the state machine over the turn list.
func (e *Engine) run(ctx context.Context, b Bot, turns []Turn) ([]Turn, []retrieval.Snippet, error) {
	var snippets []retrieval.Snippet

	st := stateDeciding
	for st != stateDone {
		switch st {
		case stateDeciding:
			reply, err := e.model.Decide(ctx, b.ModelName, b.SystemPrompt, turns)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: deciding: %v", ErrGenerationFailed, err)
			}
			turns = append(turns, reply)
			if reply.ToolCall != nil {
				st = stateTools
			} else {
				st = stateDone
			}

		case stateTools:
			call := turns[len(turns)-1].ToolCall
			results, err := e.retriever.Retrieve(ctx, call.Query, b.DocumentIDs)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: retrieving: %v", ErrGenerationFailed, err)
			}
			snippets = results
			turns = append(turns, Turn{Kind: KindTool, Content: retrieval.Render(results)})
			st = stateGenerating

		case stateGenerating:
			system := generationPrompt(b, snippets)
			reply, err := e.model.Generate(ctx, b.ModelName, system, generationHistory(b, turns))
			if err != nil {
				return nil, nil, fmt.Errorf("%w: generating: %v", ErrGenerationFailed, err)
			}
			turns = append(turns, reply)
			st = stateDone
		}
	}

	return turns, snippets, nil
}

// generationPrompt builds the system prompt for the generating state:
// bot prompt, fixed formatting directive, retrieved context.
func generationPrompt(b Bot, snippets []retrieval.Snippet) string {
	var sb strings.Builder
	sb.WriteString(b.SystemPrompt)
	sb.WriteString("\n\n")
	sb.WriteString(formattingDirective)
	if len(snippets) > 0 {
		sb.WriteString("\n\nUse the following retrieved context to answer:\n")
		sb.WriteString(retrieval.Render(snippets))
	}
	return sb.String()
}

// generationHistory filters the turn list for the generating call: user and
// system turns plus assistant turns without tool calls. Assistant turns that
// requested a tool and the tool results themselves are excluded so the model
// does not re-reason over its own scaffolding; retrieved context is already
// in the system prompt. The bot greeting is prepended as the first assistant
// turn.
func generationHistory(b Bot, turns []Turn) []Turn {
	filtered := make([]Turn, 0, len(turns)+1)
	if b.Greeting != "" {
		filtered = append(filtered, Turn{Kind: KindAssistant, Content: b.Greeting})
	}
	for _, t := range turns {
		switch t.Kind {
		case KindUser, KindSystem:
			filtered = append(filtered, t)
		case KindAssistant:
			if t.ToolCall == nil {
				filtered = append(filtered, t)
			}
		case KindTool:
			// excluded
		}
	}
	return filtered
}

// extractAnswer scans newest-first for the first assistant turn with no
// pending tool call.
func extractAnswer(turns []Turn) (string, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t.Kind == KindAssistant && t.ToolCall == nil && strings.TrimSpace(t.Content) != "" {
			return t.Content, true
		}
	}
	return "", false
}

// DeleteBot removes all conversation checkpoints belonging to a bot. Called
// when a bot configuration is deleted.
func (e *Engine) DeleteBot(ctx context.Context, botID uuid.UUID) error {
	n, err := e.checkpoints.DeleteByKeyPrefix(ctx, BotKeyPrefix(botID))
	if err != nil {
		return fmt.Errorf("purging checkpoints for bot %s: %w", botID, err)
	}
	e.logger.Info("purged bot threads", "bot_id", botID, "count", n)
	return nil
}

// persistTurn forwards the finished exchange to the external chat-history
// collaborator. Best-effort: failures are logged, never returned.
func (e *Engine) persistTurn(ctx context.Context, b Bot, userID uuid.UUID, question string, answer *Answer) {
	if e.sink == nil {
		return
	}
	if err := e.sink.AppendMessage(ctx, b.ID, userID, "user", question, ""); err != nil {
		e.logger.Warn("persisting user message", "error", err)
	}
	if err := e.sink.AppendMessage(ctx, b.ID, userID, "bot", answer.Text, answer.ImageFile); err != nil {
		e.logger.Warn("persisting bot message", "error", err)
	}
}

// lockThread serializes turns per thread key so concurrent sends cannot
// interleave checkpoint writes. Returns the unlock func.
func (e *Engine) lockThread(key string) func() {
	e.mu.Lock()
	m, ok := e.locked[key]
	if !ok {
		m = &sync.Mutex{}
		e.locked[key] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func imagePrompt(question, answer string) string {
	const maxAnswerChars = 500
	if len(answer) > maxAnswerChars {
		answer = answer[:maxAnswerChars]
	}
	return fmt.Sprintf("Create a clear educational illustration for a student. Question: %s\nAnswer summary: %s", question, answer)
}
