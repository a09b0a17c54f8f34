package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/brightclass/tutorcore/internal/bot"
)

// ChatModel is a scripted bot.ChatModel. Decide replies are matched against
// registered patterns in the user's latest message; Generate returns a
// canned answer that embeds the system prompt markers tests assert on.
//
// Thread-safe for concurrent use.
type ChatModel struct {
	mu sync.Mutex

	decideRules  []decideRule
	decideErr    error
	generateText string
	generateErr  error

	DecideCalls   []DecideCall
	GenerateCalls []GenerateCall
}

type decideRule struct {
	pattern string
	turn    bot.Turn
}

// DecideCall records one Decide invocation.
type DecideCall struct {
	ModelName string
	System    string
	History   []bot.Turn
}

// GenerateCall records one Generate invocation.
type GenerateCall struct {
	ModelName string
	System    string
	History   []bot.Turn
}

// NewChatModel creates a scripted model whose Generate returns generateText.
func NewChatModel(generateText string) *ChatModel {
	return &ChatModel{generateText: generateText}
}

// OnDecide registers a pattern: when the latest user turn contains pattern
// (case-insensitive), Decide returns turn. First match wins.
func (m *ChatModel) OnDecide(pattern string, turn bot.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decideRules = append(m.decideRules, decideRule{pattern: strings.ToLower(pattern), turn: turn})
}

// FailDecide makes every Decide call return err.
func (m *ChatModel) FailDecide(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decideErr = err
}

// FailGenerate makes every Generate call return err.
func (m *ChatModel) FailGenerate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateErr = err
}

// Decide implements bot.ChatModel.
func (m *ChatModel) Decide(_ context.Context, modelName, system string, history []bot.Turn) (bot.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DecideCalls = append(m.DecideCalls, DecideCall{ModelName: modelName, System: system, History: cloneTurns(history)})

	if m.decideErr != nil {
		return bot.Turn{}, m.decideErr
	}

	latest := latestUserTurn(history)
	for _, rule := range m.decideRules {
		if strings.Contains(strings.ToLower(latest), rule.pattern) {
			return rule.turn, nil
		}
	}
	return bot.Turn{}, errors.New("testutil: no decide rule matched " + latest)
}

// Generate implements bot.ChatModel.
func (m *ChatModel) Generate(_ context.Context, modelName, system string, history []bot.Turn) (bot.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GenerateCalls = append(m.GenerateCalls, GenerateCall{ModelName: modelName, System: system, History: cloneTurns(history)})

	if m.generateErr != nil {
		return bot.Turn{}, m.generateErr
	}
	return bot.Turn{Kind: bot.KindAssistant, Content: m.generateText}, nil
}

func latestUserTurn(history []bot.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == bot.KindUser {
			return history[i].Content
		}
	}
	return ""
}

func cloneTurns(turns []bot.Turn) []bot.Turn {
	out := make([]bot.Turn, len(turns))
	copy(out, turns)
	return out
}
