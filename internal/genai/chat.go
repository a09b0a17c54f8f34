package genai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/brightclass/tutorcore/internal/bot"
)

// RetrieveToolName is the tool the deciding model may call to search the
// bot's attached documents.
const RetrieveToolName = "retrieve_documents"

// retrieveInput is the tool's declared parameter schema.
type retrieveInput struct {
	Query string `json:"query" jsonschema_description:"Search query over the bot's attached documents"`
}

// Chat implements bot.ChatModel over a tenant's genkit instance. Tool
// execution stays in the orchestration engine: Decide only surfaces the
// model's tool request, it never runs retrieval itself.
type Chat struct {
	g      *genkit.Genkit
	caller *Caller
	tool   ai.Tool
	logger *slog.Logger
}

// NewChat creates a Chat and registers the retrieval tool declaration on the
// client's genkit instance.
func NewChat(client *Client) *Chat {
	tool := genkit.DefineTool(client.g, RetrieveToolName,
		"Search the study material attached to this bot for passages relevant to the query.",
		func(_ *ai.ToolContext, in retrieveInput) (string, error) {
			// Requests are returned to the engine, never executed here.
			return "", fmt.Errorf("tool %s is executed by the conversation engine", RetrieveToolName)
		})

	return &Chat{
		g:      client.g,
		caller: client.caller,
		tool:   tool,
		logger: client.logger,
	}
}

// Decide shows the model the conversation with the retrieval tool available
// and returns either a final assistant turn or a tool request.
func (c *Chat) Decide(ctx context.Context, modelName, system string, history []bot.Turn) (bot.Turn, error) {
	msgs := toMessages(history)

	var resp *ai.ModelResponse
	err := c.caller.Do(ctx, "decide", func(ctx context.Context) error {
		var err error
		resp, err = genkit.Generate(ctx, c.g,
			ai.WithModelName(modelName),
			ai.WithSystem(system),
			ai.WithMessages(msgs...),
			ai.WithTools(c.tool),
			ai.WithReturnToolRequests(true),
		)
		return err
	})
	if err != nil {
		return bot.Turn{}, err
	}

	if req := firstToolRequest(resp); req != nil {
		return bot.Turn{
			Kind:     bot.KindAssistant,
			ToolCall: &bot.ToolCall{Name: req.Name, Query: toolQuery(req.Input)},
		}, nil
	}
	return bot.Turn{Kind: bot.KindAssistant, Content: resp.Text()}, nil
}

// Generate produces the final answer with no tools offered.
func (c *Chat) Generate(ctx context.Context, modelName, system string, history []bot.Turn) (bot.Turn, error) {
	msgs := toMessages(history)

	var resp *ai.ModelResponse
	err := c.caller.Do(ctx, "generate", func(ctx context.Context) error {
		var err error
		resp, err = genkit.Generate(ctx, c.g,
			ai.WithModelName(modelName),
			ai.WithSystem(system),
			ai.WithMessages(msgs...),
		)
		return err
	})
	if err != nil {
		return bot.Turn{}, err
	}
	return bot.Turn{Kind: bot.KindAssistant, Content: resp.Text()}, nil
}

// toMessages maps conversation turns onto provider messages, including the
// tool request/response scaffolding for threads that retrieved earlier.
func toMessages(history []bot.Turn) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(history))
	for _, t := range history {
		switch t.Kind {
		case bot.KindUser:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(t.Content)))
		case bot.KindSystem:
			msgs = append(msgs, &ai.Message{Role: ai.RoleSystem, Content: []*ai.Part{ai.NewTextPart(t.Content)}})
		case bot.KindAssistant:
			if t.ToolCall != nil {
				msgs = append(msgs, ai.NewModelMessage(ai.NewToolRequestPart(&ai.ToolRequest{
					Name:  t.ToolCall.Name,
					Input: map[string]any{"query": t.ToolCall.Query},
				})))
			} else {
				msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(t.Content)))
			}
		case bot.KindTool:
			msgs = append(msgs, &ai.Message{Role: ai.RoleTool, Content: []*ai.Part{
				ai.NewToolResponsePart(&ai.ToolResponse{
					Name:   RetrieveToolName,
					Output: t.Content,
				}),
			}})
		}
	}
	return msgs
}

// firstToolRequest returns the response's first tool request part, nil when
// the model answered directly.
func firstToolRequest(resp *ai.ModelResponse) *ai.ToolRequest {
	if resp == nil || resp.Message == nil {
		return nil
	}
	for _, part := range resp.Message.Content {
		if part.IsToolRequest() {
			return part.ToolRequest
		}
	}
	return nil
}

// toolQuery extracts the query argument from a tool request's input, which
// arrives as decoded JSON.
func toolQuery(input any) string {
	switch v := input.(type) {
	case map[string]any:
		if q, ok := v["query"].(string); ok {
			return q
		}
	case string:
		return v
	}
	return ""
}
