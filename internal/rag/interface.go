// Package rag implements semantic retrieval over the restaurant dataset:
// embedding interfaces, the row-aligned embedding matrix with its on-disk
// format, vector index backends, and the retriever that ranks dataset rows
// for a free-text query.
package rag

import (
	"context"

	"github.com/taniishka21/KhavayyePeth/internal/dataset"
)

// Intent distinguishes document embeddings (computed once per dataset row)
// from query embeddings (computed per search). Providers may produce
// asymmetric vectors for the two, so the flag must be passed explicitly.
type Intent string

const (
	// IntentDocument marks texts embedded for storage in the index.
	IntentDocument Intent = "document"
	// IntentQuery marks texts embedded at search time.
	IntentQuery Intent = "query"
)

// Embedder converts texts into dense vector embeddings under a given intent.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed returns one embedding per input text, parallel to the input slice.
	Embed(ctx context.Context, texts []string, intent Intent) ([][]float32, error)
}

// Match is a single similarity-search result: a dataset row index and its
// similarity score against the query vector.
type Match struct {
	// Index is the row index into the dataset.
	Index int
	// Score is the similarity score. Embeddings are unit-normalised by the
	// provider, so the dot product approximates cosine similarity.
	Score float64
}

// VectorIndex answers nearest-neighbour queries over the row embeddings.
// Row index position is the sole join key back to the dataset.
// Implementations must be safe for concurrent readers.
type VectorIndex interface {
	// Search returns the topK most similar rows for the query vector,
	// sorted by score descending. topK larger than Size is clamped.
	Search(ctx context.Context, query []float32, topK int) ([]Match, error)

	// Size returns the number of rows in the index.
	Size() int

	// Close releases any resources held by the index.
	Close() error
}

// Hit pairs a retrieved restaurant with its similarity score. Scored is
// false for rating-fallback results, which carry no similarity score.
type Hit struct {
	// Restaurant points into the loaded dataset; callers must not mutate it.
	Restaurant *dataset.Restaurant
	// Score is the similarity score when Scored is true.
	Score float64
	// Scored reports whether Score is meaningful.
	Scored bool
}

// Result is the outcome of a retrieval. An empty Hits slice with Degraded
// set means the embedding provider failed and the caller is proceeding
// ungrounded; an empty Hits slice without Degraded means nothing matched.
// Search never returns an error; the worst outcome is a degraded Result.
type Result struct {
	// Hits is the ranked result set, length at most the requested topK.
	Hits []Hit
	// Degraded is true when the result is empty because of a provider or
	// index failure rather than a genuine miss.
	Degraded bool
	// Cause holds the underlying error when Degraded is true.
	Cause error
}
