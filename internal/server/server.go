// Package server implements the HTTP server that exposes the chatbot via a
// small JSON API with bearer auth, per-IP rate limiting, Prometheus metrics,
// and dependency-aware readiness probes.
// The server is started by the `khavayye serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taniishka21/KhavayyePeth/internal/chat"
	"github.com/taniishka21/KhavayyePeth/internal/logging"
	"github.com/taniishka21/KhavayyePeth/internal/store"
)

// New constructs a Server from the provided answerer, optional history store,
// and config.
func New(ans answerer, history store.ConversationStore, cfg *Config) (*Server, error) {
	if ans == nil {
		return nil, fmt.Errorf("server: answerer must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Generation is single-shot but can still take a while on slow models.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.HistoryDepth == 0 {
		cfg.HistoryDepth = 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: KHAVAYYE_API_KEY not set, API authentication disabled")
	}

	s := &Server{
		answerer: ans,
		history:  history,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.Registry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat",
		authMiddleware(cfg.APIKey, rl.middleware(s.instrument("chat", http.HandlerFunc(s.handleChat)))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/chat. It resolves the conversation history,
// produces a grounded reply, persists the exchange, and responds with JSON.
// Pipeline failures still yield 200 with an apology so clients keep a single
// rendering path; the failure is visible in logs and metrics.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	history := s.resolveHistory(r.Context(), &req)

	s.metrics.chatInFlight.Inc()
	defer s.metrics.chatInFlight.Dec()

	start := time.Now()
	reply, err := s.answerer.Answer(r.Context(), req.Message, history)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		log.Error("chat failed", slog.Any("error", err))
		reply = chat.Apology(err)
	}
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	s.persistExchange(r.Context(), req.SessionID, req.Message, reply)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(chatResponse{Reply: reply}); err != nil {
		log.Error("chat encode error", slog.Any("error", err))
	}
}

// resolveHistory returns the conversation so far: the client-supplied turns
// when present, otherwise the stored tail of the named session.
func (s *Server) resolveHistory(ctx context.Context, req *chatRequest) []chat.Turn {
	if len(req.History) > 0 {
		turns := make([]chat.Turn, 0, len(req.History))
		for _, t := range req.History {
			turns = append(turns, chat.Turn{Role: chat.Role(t.Role), Text: t.Text})
		}
		return turns
	}

	if s.history == nil || req.SessionID == "" {
		return nil
	}
	msgs, err := s.history.Recent(ctx, req.SessionID, s.cfg.HistoryDepth)
	if err != nil {
		logging.FromContext(ctx).Warn("history load failed", slog.Any("error", err))
		return nil
	}
	turns := make([]chat.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, chat.Turn{Role: chat.Role(m.Role), Text: m.Content})
	}
	return turns
}

// persistExchange appends the user message and the reply to the session
// thread. Persistence failures are logged, never surfaced to the client.
func (s *Server) persistExchange(ctx context.Context, sessionID, message, reply string) {
	if s.history == nil || sessionID == "" {
		return
	}
	log := logging.FromContext(ctx)
	if err := s.history.Append(ctx, sessionID, store.RoleUser, message); err != nil {
		log.Warn("history append failed", slog.Any("error", err))
		return
	}
	if err := s.history.Append(ctx, sessionID, store.RoleAssistant, reply); err != nil {
		log.Warn("history append failed", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
