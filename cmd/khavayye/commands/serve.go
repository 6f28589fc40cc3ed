package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/taniishka21/KhavayyePeth/internal/logging"
	"github.com/taniishka21/KhavayyePeth/internal/rag"
	"github.com/taniishka21/KhavayyePeth/internal/server"
	"github.com/taniishka21/KhavayyePeth/internal/store"
	"github.com/taniishka21/KhavayyePeth/internal/tracing"
)

// NewServeCmd constructs the `khavayye serve` command, which starts the HTTP
// chat server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Khavayye AI HTTP chat server",
		Long: `Start the Khavayye AI HTTP server on localhost.

The server exposes POST /api/chat for grounded restaurant questions, plus
health, readiness, and Prometheus metrics endpoints. Conversation history is
persisted per session ID unless disabled.

Examples:
  khavayye serve
  khavayye serve --port 9090
  MODEL_PROVIDER=ollama khavayye serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing, opt-in and a no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			pipe, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer pipe.Close()

			// Open conversation history store. KHAVAYYE_HISTORY_DB overrides the
			// default path (~/.khavayye/history.db). Set to "disabled" to disable.
			var historyStore store.ConversationStore
			dbPath := os.Getenv("KHAVAYYE_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via KHAVAYYE_HISTORY_DB=disabled")
			}

			pingers := []server.Pinger{
				server.NewChatModelPinger(pipe.ChatModel, getEnvOrDefault("MODEL_PROVIDER", "gemini")),
			}
			if qx, isQdrant := pipe.Index.(*rag.QdrantIndex); isQdrant {
				pingers = append(pingers, server.NewPingerFunc("qdrant", qx.Ping))
			}

			// Explicit flags win over SERVER_HOST / SERVER_PORT from the
			// environment or config file.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("SERVER_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("SERVER_PORT", port)
			}

			srv, err := server.New(pipe.Answerer, historyStore, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("KHAVAYYE_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
