package bot_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/brightclass/tutorcore/internal/bot"
	"github.com/brightclass/tutorcore/internal/log"
	"github.com/brightclass/tutorcore/internal/retrieval"
	"github.com/brightclass/tutorcore/internal/testutil"
)

type retrieveCall struct {
	query   string
	allowed []uuid.UUID
}

type mockRetriever struct {
	mu       sync.Mutex
	snippets []retrieval.Snippet
	err      error
	calls    []retrieveCall
}

func (r *mockRetriever) Retrieve(ctx context.Context, query string, allowed []uuid.UUID) ([]retrieval.Snippet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, retrieveCall{query: query, allowed: allowed})
	if r.err != nil {
		return nil, r.err
	}
	return r.snippets, nil
}

type memCheckpoints struct {
	mu    sync.Mutex
	state map[string][]bot.Turn
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{state: make(map[string][]bot.Turn)}
}

func (c *memCheckpoints) Get(ctx context.Context, key string) ([]bot.Turn, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns, ok := c.state[key]
	return turns, ok, nil
}

func (c *memCheckpoints) Put(ctx context.Context, key string, turns []bot.Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[key] = turns
	return nil
}

func (c *memCheckpoints) DeleteByKeyPrefix(ctx context.Context, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for k := range c.state {
		if strings.HasPrefix(k, prefix) {
			delete(c.state, k)
			n++
		}
	}
	return n, nil
}

type mockFormatter struct {
	result bot.FormattedAnswer
	err    error
	calls  int
}

func (f *mockFormatter) Format(ctx context.Context, rawAnswer, originalQuery string) (bot.FormattedAnswer, error) {
	f.calls++
	if f.err != nil {
		return bot.FormattedAnswer{}, f.err
	}
	return f.result, nil
}

type mockImages struct {
	file    string
	prompts []string
}

func (g *mockImages) GenerateImage(ctx context.Context, prompt string) string {
	g.prompts = append(g.prompts, prompt)
	return g.file
}

type sinkEntry struct {
	sender, text, imageURL string
}

type mockSink struct {
	entries []sinkEntry
}

func (s *mockSink) AppendMessage(ctx context.Context, botID, userID uuid.UUID, sender, text, imageURL string) error {
	s.entries = append(s.entries, sinkEntry{sender: sender, text: text, imageURL: imageURL})
	return nil
}

func testBot() bot.Bot {
	return bot.Bot{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		Name:         "algebra-tutor",
		SystemPrompt: "You are a patient algebra tutor.",
		ModelName:    "googleai/gemini-2.5-flash",
		Greeting:     "Hi! Ask me anything about algebra.",
		DocumentIDs:  []uuid.UUID{uuid.New(), uuid.New()},
	}
}

func newEngine(t *testing.T, cfg bot.Config) *bot.Engine {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	e, err := bot.NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestQueryNoDocuments(t *testing.T) {
	model := testutil.NewChatModel("unused")
	retriever := &mockRetriever{}
	e := newEngine(t, bot.Config{Model: model, Retriever: retriever, Checkpoints: newMemCheckpoints()})

	b := testBot()
	b.DocumentIDs = nil

	_, err := e.Query(context.Background(), b, uuid.New(), "what is a derivative?")
	if !errors.Is(err, bot.ErrNoDocuments) {
		t.Fatalf("got %v, want ErrNoDocuments", err)
	}
	if err.Error() != "no files are attached to this bot" {
		t.Errorf("message = %q", err.Error())
	}
	if len(model.DecideCalls)+len(model.GenerateCalls) != 0 {
		t.Error("model was called despite missing documents")
	}
	if len(retriever.calls) != 0 {
		t.Error("retriever was called despite missing documents")
	}
}

func TestQueryDirectAnswer(t *testing.T) {
	model := testutil.NewChatModel("unused")
	model.OnDecide("hello", bot.Turn{Kind: bot.KindAssistant, Content: "Hello! How can I help?"})
	checkpoints := newMemCheckpoints()
	e := newEngine(t, bot.Config{Model: model, Retriever: &mockRetriever{}, Checkpoints: checkpoints})

	b := testBot()
	userID := uuid.New()

	ans, err := e.Query(context.Background(), b, userID, "hello there")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.Text != "Hello! How can I help?" {
		t.Errorf("answer = %q", ans.Text)
	}
	if len(model.GenerateCalls) != 0 {
		t.Error("Generate called for a direct answer")
	}

	turns, ok, _ := checkpoints.Get(context.Background(), bot.ThreadKey(b.ID, userID))
	if !ok || len(turns) != 2 {
		t.Fatalf("checkpoint has %d turns, want 2", len(turns))
	}
	if turns[0].Kind != bot.KindUser || turns[1].Kind != bot.KindAssistant {
		t.Errorf("checkpoint kinds = %v, %v", turns[0].Kind, turns[1].Kind)
	}
}

func TestQueryWithRetrieval(t *testing.T) {
	b := testBot()
	docID := b.DocumentIDs[0]

	model := testutil.NewChatModel("A quadratic equation has the form $ax^2+bx+c=0$.")
	model.OnDecide("quadratic", bot.Turn{
		Kind:     bot.KindAssistant,
		ToolCall: &bot.ToolCall{Name: "retrieve_documents", Query: "quadratic equations"},
	})

	retriever := &mockRetriever{snippets: []retrieval.Snippet{
		{Text: "A quadratic equation is a second-degree polynomial equation.", DocumentID: docID, Similarity: 0.91},
	}}
	checkpoints := newMemCheckpoints()
	e := newEngine(t, bot.Config{Model: model, Retriever: retriever, Checkpoints: checkpoints})

	userID := uuid.New()
	ans, err := e.Query(context.Background(), b, userID, "what is a quadratic equation?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	// Exactly one scoped retrieval.
	if len(retriever.calls) != 1 {
		t.Fatalf("retriever called %d times, want 1", len(retriever.calls))
	}
	call := retriever.calls[0]
	if call.query != "quadratic equations" {
		t.Errorf("retrieval query = %q", call.query)
	}
	if len(call.allowed) != len(b.DocumentIDs) || call.allowed[0] != b.DocumentIDs[0] {
		t.Errorf("retrieval scope = %v, want %v", call.allowed, b.DocumentIDs)
	}

	// Exactly one generation, with retrieved context in the system prompt.
	if len(model.GenerateCalls) != 1 {
		t.Fatalf("Generate called %d times, want 1", len(model.GenerateCalls))
	}
	gen := model.GenerateCalls[0]
	if !strings.Contains(gen.System, b.SystemPrompt) {
		t.Error("system prompt lost the bot prompt")
	}
	if !strings.Contains(gen.System, "second-degree polynomial") {
		t.Error("system prompt missing retrieved context")
	}
	if !strings.Contains(gen.System, "LaTeX") {
		t.Error("system prompt missing formatting directive")
	}

	// Greeting prepended, tool scaffolding excluded from generation history.
	if gen.History[0].Kind != bot.KindAssistant || gen.History[0].Content != b.Greeting {
		t.Errorf("generation history does not start with greeting: %+v", gen.History[0])
	}
	for _, turn := range gen.History {
		if turn.Kind == bot.KindTool || turn.ToolCall != nil {
			t.Errorf("tool scaffolding leaked into generation history: %+v", turn)
		}
	}

	if len(ans.Snippets) != 1 || ans.Snippets[0].DocumentID != docID {
		t.Errorf("answer snippets = %+v", ans.Snippets)
	}

	// Checkpoint keeps the full scaffolding: user, tool request, tool
	// result, final answer.
	turns, _, _ := checkpoints.Get(context.Background(), bot.ThreadKey(b.ID, userID))
	if len(turns) != 4 {
		t.Fatalf("checkpoint has %d turns, want 4", len(turns))
	}
	if turns[1].ToolCall == nil || turns[2].Kind != bot.KindTool {
		t.Error("checkpoint missing tool scaffolding")
	}
}

func TestQuerySingleToolsVisit(t *testing.T) {
	// The model is scripted to request a tool on every Decide; the engine
	// must never call Decide again after retrieval.
	model := testutil.NewChatModel("final answer")
	model.OnDecide("", bot.Turn{
		Kind:     bot.KindAssistant,
		ToolCall: &bot.ToolCall{Name: "retrieve_documents", Query: "anything"},
	})
	retriever := &mockRetriever{}
	e := newEngine(t, bot.Config{Model: model, Retriever: retriever, Checkpoints: newMemCheckpoints()})

	_, err := e.Query(context.Background(), testBot(), uuid.New(), "tell me more")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(model.DecideCalls) != 1 {
		t.Errorf("Decide called %d times, want 1", len(model.DecideCalls))
	}
	if len(retriever.calls) != 1 {
		t.Errorf("retriever called %d times, want 1", len(retriever.calls))
	}
	if len(model.GenerateCalls) != 1 {
		t.Errorf("Generate called %d times, want 1", len(model.GenerateCalls))
	}
}

func TestQueryResumesThread(t *testing.T) {
	model := testutil.NewChatModel("unused")
	model.OnDecide("", bot.Turn{Kind: bot.KindAssistant, Content: "noted"})
	checkpoints := newMemCheckpoints()
	e := newEngine(t, bot.Config{Model: model, Retriever: &mockRetriever{}, Checkpoints: checkpoints})

	b := testBot()
	userID := uuid.New()

	for _, q := range []string{"first question", "second question"} {
		if _, err := e.Query(context.Background(), b, userID, q); err != nil {
			t.Fatalf("Query(%q): %v", q, err)
		}
	}

	// The second Decide sees the first exchange.
	second := model.DecideCalls[1]
	if len(second.History) != 3 {
		t.Fatalf("second decide saw %d turns, want 3", len(second.History))
	}
	if second.History[0].Content != "first question" {
		t.Errorf("history[0] = %+v", second.History[0])
	}

	turns, _, _ := checkpoints.Get(context.Background(), bot.ThreadKey(b.ID, userID))
	if len(turns) != 4 {
		t.Errorf("checkpoint has %d turns, want 4", len(turns))
	}
}

func TestQueryGenerationFailure(t *testing.T) {
	model := testutil.NewChatModel("unused")
	model.FailDecide(errors.New("provider unavailable"))
	e := newEngine(t, bot.Config{Model: model, Retriever: &mockRetriever{}, Checkpoints: newMemCheckpoints()})

	_, err := e.Query(context.Background(), testBot(), uuid.New(), "anything")
	if !errors.Is(err, bot.ErrGenerationFailed) {
		t.Fatalf("got %v, want ErrGenerationFailed", err)
	}
}

func TestQueryRetrievalFailure(t *testing.T) {
	model := testutil.NewChatModel("unused")
	model.OnDecide("", bot.Turn{
		Kind:     bot.KindAssistant,
		ToolCall: &bot.ToolCall{Name: "retrieve_documents", Query: "q"},
	})
	retriever := &mockRetriever{err: errors.New("store down")}
	e := newEngine(t, bot.Config{Model: model, Retriever: retriever, Checkpoints: newMemCheckpoints()})

	_, err := e.Query(context.Background(), testBot(), uuid.New(), "anything")
	if !errors.Is(err, bot.ErrGenerationFailed) {
		t.Fatalf("got %v, want ErrGenerationFailed", err)
	}
}

func TestQueryFormatterAndImage(t *testing.T) {
	model := testutil.NewChatModel("unused")
	model.OnDecide("", bot.Turn{Kind: bot.KindAssistant, Content: "raw answer"})
	formatter := &mockFormatter{result: bot.FormattedAnswer{Text: "**formatted**", ShouldGenerateImage: true}}
	images := &mockImages{file: "diagram-42.png"}
	sink := &mockSink{}
	e := newEngine(t, bot.Config{
		Model:       model,
		Retriever:   &mockRetriever{},
		Checkpoints: newMemCheckpoints(),
		Formatter:   formatter,
		Images:      images,
		Sink:        sink,
	})

	ans, err := e.Query(context.Background(), testBot(), uuid.New(), "draw me a diagram")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.Text != "**formatted**" {
		t.Errorf("answer = %q", ans.Text)
	}
	if !ans.ShouldGenerateImage || ans.ImageFile != "diagram-42.png" {
		t.Errorf("image result = %v %q", ans.ShouldGenerateImage, ans.ImageFile)
	}
	if formatter.calls != 1 {
		t.Errorf("formatter called %d times, want 1", formatter.calls)
	}
	if len(images.prompts) != 1 || !strings.Contains(images.prompts[0], "draw me a diagram") {
		t.Errorf("image prompts = %v", images.prompts)
	}

	if len(sink.entries) != 2 {
		t.Fatalf("sink has %d entries, want 2", len(sink.entries))
	}
	if sink.entries[0].sender != "user" || sink.entries[1].sender != "bot" {
		t.Errorf("sink senders = %+v", sink.entries)
	}
	if sink.entries[1].imageURL != "diagram-42.png" {
		t.Errorf("sink image = %q", sink.entries[1].imageURL)
	}
}

func TestQueryImageGenerationFailureSentinel(t *testing.T) {
	model := testutil.NewChatModel("unused")
	model.OnDecide("", bot.Turn{Kind: bot.KindAssistant, Content: "raw"})
	formatter := &mockFormatter{result: bot.FormattedAnswer{Text: "fine", ShouldGenerateImage: true}}
	images := &mockImages{file: ""} // generation failed
	e := newEngine(t, bot.Config{
		Model:       model,
		Retriever:   &mockRetriever{},
		Checkpoints: newMemCheckpoints(),
		Formatter:   formatter,
		Images:      images,
	})

	ans, err := e.Query(context.Background(), testBot(), uuid.New(), "illustrate this")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.ImageFile != "" {
		t.Errorf("image file = %q, want empty", ans.ImageFile)
	}
	if ans.Text != "fine" {
		t.Errorf("answer = %q", ans.Text)
	}
}

func TestDeleteBotPurgesThreads(t *testing.T) {
	checkpoints := newMemCheckpoints()
	e := newEngine(t, bot.Config{
		Model:       testutil.NewChatModel("unused"),
		Retriever:   &mockRetriever{},
		Checkpoints: checkpoints,
	})

	botID := uuid.New()
	otherBot := uuid.New()
	_ = checkpoints.Put(context.Background(), bot.ThreadKey(botID, uuid.New()), []bot.Turn{{Kind: bot.KindUser, Content: "a"}})
	_ = checkpoints.Put(context.Background(), bot.ThreadKey(botID, uuid.New()), []bot.Turn{{Kind: bot.KindUser, Content: "b"}})
	_ = checkpoints.Put(context.Background(), bot.ThreadKey(otherBot, uuid.New()), []bot.Turn{{Kind: bot.KindUser, Content: "c"}})

	if err := e.DeleteBot(context.Background(), botID); err != nil {
		t.Fatalf("DeleteBot: %v", err)
	}

	checkpoints.mu.Lock()
	defer checkpoints.mu.Unlock()
	if len(checkpoints.state) != 1 {
		t.Errorf("%d checkpoints remain, want 1", len(checkpoints.state))
	}
	for k := range checkpoints.state {
		if !strings.HasPrefix(k, otherBot.String()) {
			t.Errorf("wrong checkpoint survived: %s", k)
		}
	}
}

func TestQueryEmptyQuestion(t *testing.T) {
	e := newEngine(t, bot.Config{
		Model:       testutil.NewChatModel("unused"),
		Retriever:   &mockRetriever{},
		Checkpoints: newMemCheckpoints(),
	})

	if _, err := e.Query(context.Background(), testBot(), uuid.New(), "   "); err == nil {
		t.Fatal("expected error for empty question")
	}
}
