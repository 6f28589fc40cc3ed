package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector index backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex is a VectorIndex backed by a remote Qdrant collection. Points
// are keyed by dataset row index, which keeps row position as the join key
// exactly like the in-memory MatrixIndex. The collection is rebuilt from the
// validated matrix on startup, so remote state can never drift from the
// dataset currently being served.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// collection is the target collection name.
	collection string

	// size is the number of rows synced into the collection.
	size int
}

// NewQdrantIndex connects to Qdrant, recreates the target collection sized
// for the matrix, and uploads every row vector keyed by row index. The
// matrix must already be validated against the dataset via NewMatrixIndex
// alignment rules; callers pass the same matrix used locally.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig, m *Matrix) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "restaurants"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	ix := &QdrantIndex{client: client, collection: cfg.Collection, size: m.Rows()}
	if err := ix.recreateCollection(ctx, uint64(m.Dims())); err != nil { //nolint:gosec // dims are bounded by the embedding model
		_ = client.Close()
		return nil, err
	}
	if err := ix.upload(ctx, m); err != nil {
		_ = client.Close()
		return nil, err
	}

	return ix, nil
}

// recreateCollection drops any existing collection and creates a fresh one
// with the matrix dimensionality. Dropping first avoids serving stale points
// from a previous dataset revision.
func (ix *QdrantIndex) recreateCollection(ctx context.Context, dims uint64) error {
	exists, err := ix.client.CollectionExists(ctx, ix.collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		if err := ix.client.DeleteCollection(ctx, ix.collection); err != nil {
			return fmt.Errorf("qdrant: failed to drop collection %q: %w", ix.collection, err)
		}
	}

	err = ix.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: ix.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dims,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", ix.collection, err)
	}
	return nil
}

// upload upserts every matrix row as a point whose numeric ID is the dataset
// row index, in batches matching the embedding batch size.
func (ix *QdrantIndex) upload(ctx context.Context, m *Matrix) error {
	for start := 0; start < m.Rows(); start += BatchSize {
		end := start + BatchSize
		if end > m.Rows() {
			end = m.Rows()
		}

		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(i)), //nolint:gosec // row index is non-negative
				Vectors: qdrant.NewVectors(m.Row(i)...),
			})
		}

		_, err := ix.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: ix.collection,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// Size returns the number of rows synced into the collection.
func (ix *QdrantIndex) Size() int { return ix.size }

// Close closes the underlying Qdrant gRPC connection.
func (ix *QdrantIndex) Close() error { return ix.client.Close() }

// Search performs a cosine similarity query and maps point IDs back to
// dataset row indices.
func (ix *QdrantIndex) Search(ctx context.Context, query []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	limit := uint64(topK) //nolint:gosec // topK is validated positive above

	results, err := ix.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: ix.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			Index: int(r.Id.GetNum()), //nolint:gosec // IDs were written from row indices
			Score: float64(r.Score),
		})
	}
	return matches, nil
}

// Ping verifies the Qdrant connection by listing collections. Used by the
// server readiness probe when the remote backend is enabled.
func (ix *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := ix.client.ListCollections(ctx); err != nil {
		return fmt.Errorf("qdrant: ping failed: %w", err)
	}
	return nil
}

// Ensure both backends satisfy VectorIndex.
var (
	_ VectorIndex = (*MatrixIndex)(nil)
	_ VectorIndex = (*QdrantIndex)(nil)
)
