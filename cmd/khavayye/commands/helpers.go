package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"

	"github.com/taniishka21/KhavayyePeth/internal/chat"
	"github.com/taniishka21/KhavayyePeth/internal/dataset"
	"github.com/taniishka21/KhavayyePeth/internal/embedder"
	"github.com/taniishka21/KhavayyePeth/internal/provider"
	"github.com/taniishka21/KhavayyePeth/internal/rag"
)

// Default locations for the dataset and its embedding matrix, overridable via
// DATASET_PATH and EMBEDDINGS_PATH.
const (
	defaultDatasetPath    = "data/outlets.csv"
	defaultEmbeddingsPath = "data/embeddings.bin"
)

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func datasetPath() string    { return getEnvOrDefault("DATASET_PATH", defaultDatasetPath) }
func embeddingsPath() string { return getEnvOrDefault("EMBEDDINGS_PATH", defaultEmbeddingsPath) }

// buildIndex loads the dataset and its embedding matrix and wires the vector
// index: the local matrix by default, Qdrant when QDRANT_HOST is set. The
// Qdrant collection is rebuilt from the validated matrix on every start so
// point IDs always line up with dataset row order.
func buildIndex(ctx context.Context, log *slog.Logger) (*dataset.Dataset, rag.VectorIndex, error) {
	ds, err := dataset.Load(datasetPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load dataset: %w", err)
	}

	m, err := rag.LoadMatrix(embeddingsPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load embeddings from %s (run 'khavayye index' first): %w", embeddingsPath(), err)
	}

	if host := os.Getenv("QDRANT_HOST"); host != "" {
		ix, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "restaurants"),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		}, m)
		if err != nil {
			return nil, nil, fmt.Errorf("qdrant index: %w", err)
		}
		log.Info("vector index ready",
			slog.String("backend", "qdrant"),
			slog.String("host", host),
			slog.Int("rows", ix.Size()),
		)
		return ds, ix, nil
	}

	ix, err := rag.NewMatrixIndex(m, ds)
	if err != nil {
		return nil, nil, fmt.Errorf("matrix index: %w", err)
	}
	log.Info("vector index ready",
		slog.String("backend", "matrix"),
		slog.Int("rows", ix.Size()),
	)
	return ds, ix, nil
}

// pipeline bundles the wired retrieval and generation components so commands
// can attach extras (readiness probes) without re-plumbing.
type pipeline struct {
	// Answerer produces grounded replies.
	Answerer *chat.Answerer
	// ChatModel is the underlying generation backend, exposed for probing.
	ChatModel model.ToolCallingChatModel
	// Index is the vector index backing retrieval, exposed for probing.
	Index rag.VectorIndex
}

// Close releases the vector index.
func (p *pipeline) Close() { _ = p.Index.Close() }

// buildPipeline assembles the full retrieval and generation pipeline from the
// environment.
func buildPipeline(ctx context.Context, log *slog.Logger) (*pipeline, error) {
	ds, index, err := buildIndex(ctx, log)
	if err != nil {
		return nil, err
	}

	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}

	retriever, err := rag.NewRetriever(ds, emb, index, log)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("retriever: %w", err)
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("model provider: %w", err)
	}

	topK := getEnvInt("RETRIEVAL_TOP_K", chat.DefaultTopK)
	displayLimit := getEnvInt("CONTEXT_DISPLAY_LIMIT", chat.DefaultDisplayLimit)

	answerer, err := chat.NewAnswerer(retriever, chatModel, log, topK, displayLimit)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("answerer: %w", err)
	}

	return &pipeline{Answerer: answerer, ChatModel: chatModel, Index: index}, nil
}
