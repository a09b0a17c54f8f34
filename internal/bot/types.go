// Package bot implements the conversation orchestration engine for tutor
// bots: an explicit retrieve-then-generate state machine with per-thread
// checkpointed history.
package bot

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/brightclass/tutorcore/internal/retrieval"
)

// Kind tags a conversation turn.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindTool      Kind = "tool"
	KindSystem    Kind = "system"
)

// ToolCall is a retrieval request emitted by the model.
type ToolCall struct {
	Name  string `json:"name"`
	Query string `json:"query"`
}

// Turn is one entry in a conversation thread. The engine dispatches on Kind
// rather than on concrete message types.
type Turn struct {
	Kind     Kind      `json:"kind"`
	Content  string    `json:"content"`
	ToolCall *ToolCall `json:"tool_call,omitempty"` // set on assistant turns that request retrieval
}

// Bot is a named assistant configuration. Read-only for the engine.
type Bot struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Name         string
	SystemPrompt string
	ModelName    string
	Greeting     string
	DocumentIDs  []uuid.UUID
}

// ThreadKey builds the checkpoint key for a (bot, user) pair.
func ThreadKey(botID, userID uuid.UUID) string {
	return fmt.Sprintf("%s-%s", botID, userID)
}

// BotKeyPrefix is the checkpoint key prefix shared by all of a bot's threads.
func BotKeyPrefix(botID uuid.UUID) string {
	return botID.String() + "-"
}

// ChatModel produces conversation turns. Implemented by genai.Chat in
// production and by mocks in tests.
type ChatModel interface {
	// Decide shows the model the full history with the retrieval tool
	// available. The returned assistant turn carries either final text or a
	// ToolCall.
	Decide(ctx context.Context, modelName, system string, history []Turn) (Turn, error)

	// Generate produces the final answer with no tools offered.
	Generate(ctx context.Context, modelName, system string, history []Turn) (Turn, error)
}

// Retriever is the engine's view of the retrieval tool.
type Retriever interface {
	Retrieve(ctx context.Context, query string, allowedDocumentIDs []uuid.UUID) ([]retrieval.Snippet, error)
}

// CheckpointStore persists conversation threads keyed by "{botID}-{userID}".
type CheckpointStore interface {
	Get(ctx context.Context, key string) ([]Turn, bool, error)
	Put(ctx context.Context, key string, turns []Turn) error
	DeleteByKeyPrefix(ctx context.Context, prefix string) (int64, error)
}

// Formatter post-processes a raw answer into constrained structured output.
type Formatter interface {
	Format(ctx context.Context, rawAnswer, originalQuery string) (FormattedAnswer, error)
}

// FormattedAnswer is the post-processor's structured result.
type FormattedAnswer struct {
	Text                string
	ShouldGenerateImage bool
}

// ImageGenerator is the external illustration collaborator. Implementations
// return the stored filename, or "" when generation failed.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) string
}

// MessageSink receives finished chat turns for persistence. The engine
// writes to it best-effort; history of record is the checkpoint.
type MessageSink interface {
	AppendMessage(ctx context.Context, botID, userID uuid.UUID, sender, text, imageURL string) error
}

// Answer is the engine's result for one query.
type Answer struct {
	Text                string
	ShouldGenerateImage bool
	ImageFile           string // set when an ImageGenerator is configured and succeeded
	Snippets            []retrieval.Snippet
}
