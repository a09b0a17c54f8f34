package bot

import "errors"

var (
	// ErrNoDocuments indicates a query against a bot with no linked
	// documents. Checked before any provider call.
	ErrNoDocuments = errors.New("no files are attached to this bot")

	// ErrGenerationFailed indicates the graph terminated without an
	// assistant turn free of pending tool calls.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrBotNotFound indicates the bot configuration does not exist.
	ErrBotNotFound = errors.New("bot not found")
)
