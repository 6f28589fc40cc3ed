package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/taniishka21/KhavayyePeth/internal/rag"
)

func Test_Ollama_PrefixesByIntent(t *testing.T) {
	t.Parallel()

	var gotInput []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotInput = req.Input

		resp := ollamaEmbedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = []float32{1, 0}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})

	if _, err := e.Embed(context.Background(), []string{"Vaishali"}, rag.IntentDocument); err != nil {
		t.Fatalf("embed document: %v", err)
	}
	if gotInput[0] != "search_document: Vaishali" {
		t.Errorf("document prefix: %q", gotInput[0])
	}

	if _, err := e.Embed(context.Background(), []string{"best misal"}, rag.IntentQuery); err != nil {
		t.Fatalf("embed query: %v", err)
	}
	if gotInput[0] != "search_query: best misal" {
		t.Errorf("query prefix: %q", gotInput[0])
	}
}

func Test_Ollama_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Error: "model not found"})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "missing"})
	_, err := e.Embed(context.Background(), []string{"x"}, rag.IntentQuery)
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("want server error surfaced, got %v", err)
	}
}

func Test_Ollama_CountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	_, err := e.Embed(context.Background(), []string{"a", "b"}, rag.IntentDocument)
	if err == nil || !strings.Contains(err.Error(), "expected 2 embeddings") {
		t.Fatalf("want count mismatch error, got %v", err)
	}
}

func Test_NewFromEnv_OllamaBackend(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("OLLAMA_HOST", "http://ollama.internal:11434")

	e, err := NewFromEnv(context.Background())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	oe, ok := e.(*OllamaEmbedder)
	if !ok {
		t.Fatalf("want *OllamaEmbedder, got %T", e)
	}
	if oe.host != "http://ollama.internal:11434" || oe.model != defaultOllamaModel {
		t.Errorf("config not applied: host=%q model=%q", oe.host, oe.model)
	}
}

func Test_NewFromEnv_GeminiNeedsKey(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "gemini")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("EMBEDDING_API_KEY", "")

	if _, err := NewFromEnv(context.Background()); err == nil {
		t.Fatal("want error when gemini has no API key")
	}
}

func Test_NewFromEnv_UnknownBackend(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "tarot")

	if _, err := NewFromEnv(context.Background()); err == nil {
		t.Fatal("want error for unknown backend")
	}
}

func Test_NewFromEnv_InheritsModelProvider(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "ollama")

	e, err := NewFromEnv(context.Background())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, ok := e.(*OllamaEmbedder); !ok {
		t.Fatalf("want ollama backend inherited from MODEL_PROVIDER, got %T", e)
	}
}
