package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taniishka21/KhavayyePeth/internal/chat"
	"github.com/taniishka21/KhavayyePeth/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// HistoryDepth is how many stored messages are replayed per session on a
	// chat request. Defaults to 20 if zero.
	HistoryDepth int
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil a private registry is created, which keeps tests hermetic.
	Registry *prometheus.Registry
}

// answerer is the interface handleChat calls to produce a grounded reply.
// *chat.Answerer satisfies it; tests inject a fake.
type answerer interface {
	// Answer returns the grounded reply for query given the conversation so far.
	Answer(ctx context.Context, query string, history []chat.Turn) (string, error)
}

// Server is the HTTP server that exposes the chatbot.
type Server struct {
	// answerer produces the grounded replies for /api/chat.
	answerer answerer
	// history persists per-session conversation turns. Nil disables persistence.
	history store.ConversationStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatTurn is one prior conversation message in a chat request.
type chatTurn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Text is the message text.
	Text string `json:"text"`
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Message is the user's natural language query.
	Message string `json:"message"`
	// SessionID selects the stored conversation thread. Optional; without it
	// no history is loaded or persisted server-side.
	SessionID string `json:"session_id"`
	// History is the client-supplied conversation so far. When present it
	// takes precedence over the stored session history.
	History []chatTurn `json:"history"`
}

// chatResponse is the JSON body for POST /api/chat responses.
type chatResponse struct {
	// Reply is the assistant's answer, or an apology when the pipeline failed.
	Reply string `json:"reply"`
}
