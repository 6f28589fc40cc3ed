// Package chat turns a user message plus conversation history into a
// grounded answer: retrieve matching restaurants, format them as JSON
// context, and ask the chat model to answer from that context alone.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/taniishka21/KhavayyePeth/internal/rag"
)

// systemPrompt pins the assistant persona and the grounding contract. The
// model may only use dataset_context; an empty context turns the answer into
// a clarifying question instead of a hallucinated list.
const systemPrompt = "You are Khavayye AI, a helpful Pune food guide.\n" +
	"You MUST only use the provided 'dataset_context' to answer.\n" +
	"If the context is empty, ask the user a clarifying question (area, cuisine, budget).\n" +
	"Answer in short, helpful bullet points with: name, type, area, cuisine, dine rating, delivery rating, approx cost, and highlights.\n" +
	"Do not hallucinate restaurants not in the context."

// Default retrieval and display depths. More rows are retrieved than shown:
// the extra candidates absorb near-duplicate outlets before the display cut.
const (
	DefaultTopK         = 12
	DefaultDisplayLimit = 5
)

// Role labels a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the person chatting.
	RoleUser Role = "user"
	// RoleAssistant marks a turn written by the model.
	RoleAssistant Role = "assistant"
)

// Turn is one prior message in the conversation.
type Turn struct {
	Role Role
	Text string
}

// Searcher is the retrieval dependency; satisfied by rag.Retriever.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) rag.Result
}

// Generator is the minimal chat-model surface the answerer needs; satisfied
// by every eino chat model.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Answerer produces grounded answers for the restaurant dataset.
type Answerer struct {
	searcher     Searcher
	generator    Generator
	log          *slog.Logger
	topK         int
	displayLimit int
}

// NewAnswerer wires a retriever and a chat model into an Answerer. Non
// positive depths fall back to the defaults.
func NewAnswerer(searcher Searcher, generator Generator, log *slog.Logger, topK, displayLimit int) (*Answerer, error) {
	if searcher == nil {
		return nil, fmt.Errorf("chat: searcher must not be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("chat: generator must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if displayLimit <= 0 {
		displayLimit = DefaultDisplayLimit
	}
	return &Answerer{
		searcher:     searcher,
		generator:    generator,
		log:          log,
		topK:         topK,
		displayLimit: displayLimit,
	}, nil
}

// searchQuery joins every user turn plus the current message into one
// retrieval query, so follow-ups like "what about in Baner?" still carry the
// cuisine from earlier turns.
func searchQuery(query string, history []Turn) string {
	parts := make([]string, 0, len(history)+1)
	for _, turn := range history {
		if turn.Role == RoleUser && strings.TrimSpace(turn.Text) != "" {
			parts = append(parts, turn.Text)
		}
	}
	if strings.TrimSpace(query) != "" {
		parts = append(parts, query)
	}
	return strings.Join(parts, " ")
}

// Answer retrieves context for the conversation and generates a grounded
// reply in a single model call. A degraded retrieval is logged and answered
// with empty context rather than failed outright.
func (a *Answerer) Answer(ctx context.Context, query string, history []Turn) (string, error) {
	res := a.searcher.Search(ctx, searchQuery(query, history), a.topK)
	if res.Degraded {
		a.log.Warn("retrieval degraded, answering without context", slog.Any("error", res.Cause))
	}

	contextJSON, err := FormatContext(res.Hits, a.displayLimit)
	if err != nil {
		return "", err
	}

	user := fmt.Sprintf(
		"User query: %s\n\ndataset_context (JSON array of restaurants):\n%s\n\nWrite the answer ONLY based on dataset_context.",
		query, contextJSON,
	)
	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(user),
	}

	resp, err := a.generator.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("chat: generate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("chat: model returned nil response")
	}
	return strings.TrimSpace(resp.Content), nil
}
