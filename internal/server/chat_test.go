package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/taniishka21/KhavayyePeth/internal/chat"
	"github.com/taniishka21/KhavayyePeth/internal/store"
)

// ---------------------------------------------------------------------------
// Fake answerer for chat handler tests
// ---------------------------------------------------------------------------

// fakeAnswerer implements the answerer interface for tests. It records the
// query and history it was called with and returns configurable values.
type fakeAnswerer struct {
	// reply is returned verbatim on each Answer call.
	reply string
	// err is returned as the error value.
	err error

	// gotQuery and gotHistory capture the last call's arguments.
	gotQuery   string
	gotHistory []chat.Turn
}

func (f *fakeAnswerer) Answer(_ context.Context, query string, history []chat.Turn) (string, error) {
	f.gotQuery = query
	f.gotHistory = history
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// newChatTestServer builds a *Server wired with the given answerer fake and
// an optional history store.
func newChatTestServer(t *testing.T, ans answerer, history store.ConversationStore) *Server {
	t.Helper()
	s, err := New(ans, history, &Config{Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func postChat(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleChat(w, req)
	return w
}

func decodeReply(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, w.Body.String())
	}
	return resp.Reply
}

// ---------------------------------------------------------------------------
// POST /api/chat — validation error paths (no pipeline needed)
// ---------------------------------------------------------------------------

func TestHandleChat_MissingMessage(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(t, &fakeAnswerer{}, nil)
	w := postChat(s, `{"session_id":"s-1"}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(t, &fakeAnswerer{}, nil)
	w := postChat(s, `not-json`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/chat — happy path
// ---------------------------------------------------------------------------

func TestHandleChat_Success(t *testing.T) {
	t.Parallel()

	ans := &fakeAnswerer{reply: "- Cafe Goodluck, cafe, Deccan Gymkhana"}
	s := newChatTestServer(t, ans, nil)

	w := postChat(s, `{"message":"best bun maska in Deccan?"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decodeReply(t, w); got != ans.reply {
		t.Errorf("expected reply %q, got %q", ans.reply, got)
	}
	if ans.gotQuery != "best bun maska in Deccan?" {
		t.Errorf("answerer saw query %q", ans.gotQuery)
	}
}

// TestHandleChat_ClientHistoryTakesPrecedence verifies that turns supplied in
// the request body are passed through to the answerer as-is, without touching
// the store.
func TestHandleChat_ClientHistoryTakesPrecedence(t *testing.T) {
	t.Parallel()

	ans := &fakeAnswerer{reply: "ok"}
	s := newChatTestServer(t, ans, nil)

	w := postChat(s, `{
		"message": "anything cheaper?",
		"history": [
			{"role": "user", "text": "good misal places"},
			{"role": "assistant", "text": "- Shabree, Deccan"}
		]
	}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	want := []chat.Turn{
		{Role: chat.RoleUser, Text: "good misal places"},
		{Role: chat.RoleAssistant, Text: "- Shabree, Deccan"},
	}
	if len(ans.gotHistory) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(ans.gotHistory))
	}
	for i, turn := range want {
		if ans.gotHistory[i] != turn {
			t.Errorf("turn %d: expected %+v, got %+v", i, turn, ans.gotHistory[i])
		}
	}
}

// TestHandleChat_SessionHistoryLoadedAndPersisted verifies that with a
// session_id and no client history, stored turns are replayed to the answerer
// and the new exchange is appended to the same session.
func TestHandleChat_SessionHistoryLoadedAndPersisted(t *testing.T) {
	t.Parallel()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	if err := st.Append(ctx, "session-42", store.RoleUser, "good misal places"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := st.Append(ctx, "session-42", store.RoleAssistant, "- Shabree, Deccan"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	ans := &fakeAnswerer{reply: "- Bedekar Tea Stall, Narayan Peth"}
	s := newChatTestServer(t, ans, st)

	w := postChat(s, `{"message":"anything spicier?","session_id":"session-42"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if len(ans.gotHistory) != 2 {
		t.Fatalf("expected 2 replayed turns, got %d", len(ans.gotHistory))
	}
	if ans.gotHistory[0].Role != chat.RoleUser || ans.gotHistory[0].Text != "good misal places" {
		t.Errorf("unexpected first turn: %+v", ans.gotHistory[0])
	}

	msgs, err := st.Recent(ctx, "session-42", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 stored messages after exchange, got %d", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.Role != store.RoleAssistant || last.Content != ans.reply {
		t.Errorf("unexpected last stored message: %+v", last)
	}
}

// ---------------------------------------------------------------------------
// POST /api/chat — pipeline failure
// ---------------------------------------------------------------------------

// TestHandleChat_PipelineError verifies that an answerer failure still yields
// a 200 with an apology reply, so clients keep a single rendering path.
func TestHandleChat_PipelineError(t *testing.T) {
	t.Parallel()

	ans := &fakeAnswerer{err: fmt.Errorf("generate: model unavailable")}
	s := newChatTestServer(t, ans, nil)

	w := postChat(s, `{"message":"best vada pav?"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got := decodeReply(t, w)
	if !strings.HasPrefix(got, "Sorry, I hit an error.") {
		t.Errorf("expected apology reply, got %q", got)
	}
	if !strings.Contains(got, "model unavailable") {
		t.Errorf("expected error detail in apology, got %q", got)
	}
}
