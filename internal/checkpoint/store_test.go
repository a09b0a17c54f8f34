package checkpoint

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brightclass/tutorcore/internal/bot"
	"github.com/brightclass/tutorcore/internal/log"
)

// mapQuerier implements Querier in memory.
type mapQuerier struct {
	states map[string][]byte
}

func newMapQuerier() *mapQuerier {
	return &mapQuerier{states: make(map[string][]byte)}
}

func (m *mapQuerier) GetCheckpoint(_ context.Context, key string) ([]byte, error) {
	state, ok := m.states[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return state, nil
}

func (m *mapQuerier) PutCheckpoint(_ context.Context, key string, state []byte) error {
	m.states[key] = state
	return nil
}

func (m *mapQuerier) DeleteCheckpointsByPrefix(_ context.Context, prefix string) (int64, error) {
	var n int64
	for k := range m.states {
		if strings.HasPrefix(k, prefix) {
			delete(m.states, k)
			n++
		}
	}
	return n, nil
}

func TestGet_MissingKey(t *testing.T) {
	t.Parallel()

	store := New(newMapQuerier(), log.NewNop())

	turns, ok, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing checkpoint")
	}
	if turns != nil {
		t.Errorf("expected nil turns, got %v", turns)
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	t.Parallel()

	store := New(newMapQuerier(), log.NewNop())
	ctx := context.Background()

	key := bot.ThreadKey(uuid.New(), uuid.New())
	turns := []bot.Turn{
		{Kind: bot.KindUser, Content: "explain photosynthesis"},
		{Kind: bot.KindAssistant, ToolCall: &bot.ToolCall{Name: "retrieve_documents", Query: "photosynthesis"}},
		{Kind: bot.KindTool, Content: "[source: x] chlorophyll absorbs light"},
		{Kind: bot.KindAssistant, Content: "Plants convert light into chemical energy."},
	}

	if err := store.Put(ctx, key, turns); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected checkpoint to exist")
	}
	if len(got) != len(turns) {
		t.Fatalf("got %d turns, want %d", len(got), len(turns))
	}
	if got[1].ToolCall == nil || got[1].ToolCall.Query != "photosynthesis" {
		t.Errorf("tool call not preserved: %+v", got[1])
	}
	if got[3].Content != turns[3].Content {
		t.Errorf("assistant content not preserved: %q", got[3].Content)
	}
}

func TestDeleteByKeyPrefix(t *testing.T) {
	t.Parallel()

	store := New(newMapQuerier(), log.NewNop())
	ctx := context.Background()

	botA, botB := uuid.New(), uuid.New()
	userX, userY := uuid.New(), uuid.New()

	for _, key := range []string{
		bot.ThreadKey(botA, userX),
		bot.ThreadKey(botA, userY),
		bot.ThreadKey(botB, userX),
	} {
		if err := store.Put(ctx, key, []bot.Turn{{Kind: bot.KindUser, Content: "hi"}}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	n, err := store.DeleteByKeyPrefix(ctx, bot.BotKeyPrefix(botA))
	if err != nil {
		t.Fatalf("DeleteByKeyPrefix failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d checkpoints, want 2", n)
	}

	// Bot B's thread must survive.
	_, ok, err := store.Get(ctx, bot.ThreadKey(botB, userX))
	if err != nil || !ok {
		t.Errorf("bot B thread lost: ok=%v err=%v", ok, err)
	}
}

func TestDeleteByKeyPrefix_EmptyPrefix(t *testing.T) {
	t.Parallel()

	store := New(newMapQuerier(), log.NewNop())

	if _, err := store.DeleteByKeyPrefix(context.Background(), ""); err == nil {
		t.Error("expected error for empty prefix")
	}
}
