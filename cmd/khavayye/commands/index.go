package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/taniishka21/KhavayyePeth/internal/dataset"
	"github.com/taniishka21/KhavayyePeth/internal/embedder"
	"github.com/taniishka21/KhavayyePeth/internal/logging"
	"github.com/taniishka21/KhavayyePeth/internal/rag"
)

// NewIndexCmd constructs the `khavayye index` command, which embeds the
// restaurant dataset into the binary matrix used for retrieval.
func NewIndexCmd() *cobra.Command {
	var dsPath string
	var outPath string
	var refresh bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed the restaurant dataset into the retrieval matrix",
		Long: `Embed every restaurant in the CSV dataset and write the embedding matrix.

Each row's fields are joined into a single description and embedded in batches.
The matrix records a checksum of the dataset it was built from; 'khavayye
serve' and 'khavayye ask' refuse a stale matrix, so re-run this command after
editing the dataset.

Required environment variables:
  GOOGLE_API_KEY       Gemini API key (default embedding backend)
  EMBEDDING_PROVIDER   Embedding backend: gemini, ollama (default: gemini)
  EMBEDDING_MODEL      Optional model override
  DATASET_PATH         Dataset CSV path (default: data/outlets.csv)
  EMBEDDINGS_PATH      Output matrix path (default: data/embeddings.bin)

An existing matrix that already matches the dataset is left untouched;
pass --refresh to recompute it anyway.

Examples:
  khavayye index
  khavayye index --refresh
  khavayye index --dataset data/outlets.csv --out data/embeddings.bin
  EMBEDDING_PROVIDER=ollama khavayye index`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if dsPath == "" {
				dsPath = datasetPath()
			}
			if outPath == "" {
				outPath = embeddingsPath()
			}

			ds, err := dataset.Load(dsPath)
			if err != nil {
				return fmt.Errorf("index: load dataset: %w", err)
			}
			log.Info("dataset loaded", slog.String("path", dsPath), slog.Int("rows", ds.Len()))

			if !refresh {
				if m, loadErr := rag.LoadMatrix(outPath); loadErr == nil &&
					m.Rows() == ds.Len() && m.Checksum() == ds.Checksum() {
					log.Info("matrix already matches dataset, nothing to do",
						slog.String("path", outPath))
					return nil
				}
			}

			emb, err := embedder.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("index: embedder: %w", err)
			}

			m, err := rag.BuildMatrix(ctx, ds, emb)
			if err != nil {
				return fmt.Errorf("index: build matrix: %w", err)
			}
			log.Info("embeddings built", slog.Int("rows", m.Rows()), slog.Int("dims", m.Dims()))

			if err := m.Save(outPath); err != nil {
				return fmt.Errorf("index: save matrix: %w", err)
			}
			log.Info("matrix written", slog.String("path", outPath))
			return nil
		},
	}

	cmd.Flags().StringVar(&dsPath, "dataset", "", "Dataset CSV path (default: $DATASET_PATH or data/outlets.csv)")
	cmd.Flags().StringVar(&outPath, "out", "", "Output matrix path (default: $EMBEDDINGS_PATH or data/embeddings.bin)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Recompute the matrix even if it already matches the dataset")

	return cmd
}
