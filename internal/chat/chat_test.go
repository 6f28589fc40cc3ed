package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/taniishka21/KhavayyePeth/internal/dataset"
	"github.com/taniishka21/KhavayyePeth/internal/rag"
)

// fakeSearcher records the query it receives and returns a canned result.
type fakeSearcher struct {
	gotQuery string
	gotTopK  int
	result   rag.Result
}

func (f *fakeSearcher) Search(_ context.Context, query string, topK int) rag.Result {
	f.gotQuery = query
	f.gotTopK = topK
	return f.result
}

// fakeGenerator records the messages it receives and returns a canned reply.
type fakeGenerator struct {
	gotMsgs []*schema.Message
	reply   string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.gotMsgs = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func ptr[T any](v T) *T { return &v }

func sampleHits() []rag.Hit {
	return []rag.Hit{
		{
			Restaurant: &dataset.Restaurant{
				Name: "Cafe Goodluck", Type: "Casual Dining", Location: "Deccan",
				Cuisines: "Irani", Highlights: "Bun Maska",
				DineRating: ptr(4.5333), DeliveryRating: ptr(4.1), Cost: ptr(450),
			},
			Score: 0.93, Scored: true,
		},
		{
			Restaurant: &dataset.Restaurant{
				Name: "Fish & Co.", Type: "Quick Bites", Location: "Baner",
				Cuisines: "Seafood",
			},
			Score: 0.71, Scored: true,
		},
	}
}

func newTestAnswerer(t *testing.T, s *fakeSearcher, g *fakeGenerator) *Answerer {
	t.Helper()
	a, err := NewAnswerer(s, g, testLogger(), 0, 0)
	if err != nil {
		t.Fatalf("answerer: %v", err)
	}
	return a
}

func Test_FormatContext_Empty(t *testing.T) {
	t.Parallel()

	got, err := FormatContext(nil, 5)
	if err != nil || got != "[]" {
		t.Fatalf("empty hits: got %q, %v", got, err)
	}
}

func Test_FormatContext_RoundsAndNulls(t *testing.T) {
	t.Parallel()

	got, err := FormatContext(sampleHits(), 5)
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	var entries []map[string]any
	if err := json.Unmarshal([]byte(got), &entries); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, got)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}

	if r := entries[0]["dine_rating"].(float64); r != 4.5 {
		t.Errorf("dine rating must round to one decimal, got %v", r)
	}
	if entries[1]["dine_rating"] != nil || entries[1]["cost"] != nil {
		t.Errorf("missing numerics must be null: %v", entries[1])
	}
	if c := entries[0]["cost"].(float64); c != 450 {
		t.Errorf("cost: %v", c)
	}
	if strings.Contains(got, "score") {
		t.Error("similarity scores must not leak into the context")
	}
}

func Test_FormatContext_LimitAndEscaping(t *testing.T) {
	t.Parallel()

	hits := sampleHits()
	got, err := FormatContext(hits, 1)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	var entries []map[string]any
	if err := json.Unmarshal([]byte(got), &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("limit 1 must keep one entry, got %d", len(entries))
	}

	got, err = FormatContext(hits, 5)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if !strings.Contains(got, "Fish & Co.") {
		t.Errorf("ampersand must not be HTML-escaped:\n%s", got)
	}
}

func Test_Answer_JoinsUserTurnsForSearch(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{}
	g := &fakeGenerator{reply: "ok"}
	a := newTestAnswerer(t, s, g)

	history := []Turn{
		{Role: RoleUser, Text: "good misal places"},
		{Role: RoleAssistant, Text: "Try Bedekar Misal."},
		{Role: RoleUser, Text: "anything cheaper?"},
	}
	if _, err := a.Answer(context.Background(), "what about Kothrud", history); err != nil {
		t.Fatalf("answer: %v", err)
	}

	want := "good misal places anything cheaper? what about Kothrud"
	if s.gotQuery != want {
		t.Errorf("search query:\n got %q\nwant %q", s.gotQuery, want)
	}
	if s.gotTopK != DefaultTopK {
		t.Errorf("topK: got %d, want %d", s.gotTopK, DefaultTopK)
	}
}

func Test_Answer_PromptShape(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{result: rag.Result{Hits: sampleHits()}}
	g := &fakeGenerator{reply: "- Cafe Goodluck"}
	a := newTestAnswerer(t, s, g)

	if _, err := a.Answer(context.Background(), "irani cafes near Deccan", nil); err != nil {
		t.Fatalf("answer: %v", err)
	}

	if len(g.gotMsgs) != 2 {
		t.Fatalf("want system+user messages, got %d", len(g.gotMsgs))
	}
	if g.gotMsgs[0].Role != schema.System || !strings.Contains(g.gotMsgs[0].Content, "Khavayye AI") {
		t.Errorf("system message wrong: %+v", g.gotMsgs[0])
	}

	user := g.gotMsgs[1].Content
	for _, want := range []string{
		"User query: irani cafes near Deccan",
		"dataset_context (JSON array of restaurants):",
		`"name": "Cafe Goodluck"`,
		"Write the answer ONLY based on dataset_context.",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q:\n%s", want, user)
		}
	}
}

func Test_Answer_TrimsModelOutput(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{}
	g := &fakeGenerator{reply: "  - Vaishali \n\n"}
	a := newTestAnswerer(t, s, g)

	got, err := a.Answer(context.Background(), "dosa", nil)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if got != "- Vaishali" {
		t.Errorf("output not trimmed: %q", got)
	}
}

func Test_Answer_DegradedRetrievalUsesEmptyContext(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{result: rag.Result{Degraded: true, Cause: errors.New("provider down")}}
	g := &fakeGenerator{reply: "Which area are you in?"}
	a := newTestAnswerer(t, s, g)

	got, err := a.Answer(context.Background(), "thali", nil)
	if err != nil {
		t.Fatalf("degraded retrieval must not fail the answer: %v", err)
	}
	if got != "Which area are you in?" {
		t.Errorf("answer: %q", got)
	}
	if !strings.Contains(g.gotMsgs[1].Content, "restaurants):\n[]") {
		t.Errorf("degraded retrieval must pass empty context:\n%s", g.gotMsgs[1].Content)
	}
}

func Test_Reply_Passthrough(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{}
	g := &fakeGenerator{reply: "- Shabree"}
	a := newTestAnswerer(t, s, g)

	if got := a.Reply(context.Background(), "thali", nil); got != "- Shabree" {
		t.Errorf("reply: %q", got)
	}
}

func Test_Reply_ApologyTruncatesDetail(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{}
	g := &fakeGenerator{err: errors.New(strings.Repeat("x", 300))}
	a := newTestAnswerer(t, s, g)

	got := a.Reply(context.Background(), "thali", nil)
	if !strings.HasPrefix(got, "Sorry, I hit an error. Please try again. (details: ") {
		t.Fatalf("apology shape: %q", got)
	}
	detail := strings.TrimSuffix(strings.TrimPrefix(got, "Sorry, I hit an error. Please try again. (details: "), ")")
	if len([]rune(detail)) != apologyDetailLimit {
		t.Errorf("detail length: got %d, want %d", len([]rune(detail)), apologyDetailLimit)
	}
}
