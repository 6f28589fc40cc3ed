package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/taniishka21/KhavayyePeth/internal/dataset"
)

// Retriever ranks dataset rows for a free-text query by combining an
// Embedder and a VectorIndex. A blank query falls back to the dine-rating
// ranking so the chatbot has something to show on a cold start.
type Retriever struct {
	// ds is the loaded dataset; rows are referenced by index, never copied.
	ds *dataset.Dataset
	// embedder converts the query text to a vector at search time.
	embedder Embedder
	// index answers nearest-neighbour queries over the row embeddings.
	index VectorIndex
	// log is the structured logger for degraded searches.
	log *slog.Logger
	// byRating caches the dine-rating fallback ordering, computed once.
	byRating []int
}

// NewRetriever constructs a Retriever and verifies that the index covers
// exactly one vector per dataset row. A mismatch is a construction error so
// misaligned similarity scores are impossible at search time.
func NewRetriever(ds *dataset.Dataset, embedder Embedder, index VectorIndex, log *slog.Logger) (*Retriever, error) {
	if ds == nil {
		return nil, fmt.Errorf("rag: dataset must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if index.Size() != ds.Len() {
		return nil, fmt.Errorf("rag: index has %d vectors but dataset has %d rows", index.Size(), ds.Len())
	}
	if log == nil {
		log = slog.Default()
	}

	return &Retriever{
		ds:       ds,
		embedder: embedder,
		index:    index,
		log:      log,
		byRating: ratingOrder(ds),
	}, nil
}

// Search returns the topK rows ranked for query. A blank query yields the
// dine-rating fallback with no scores. Provider or index failures degrade to
// an empty Result rather than an error: the caller proceeds ungrounded.
func (r *Retriever) Search(ctx context.Context, query string, topK int) Result {
	if topK <= 0 {
		return Result{}
	}
	if topK > r.ds.Len() {
		topK = r.ds.Len()
	}

	if strings.TrimSpace(query) == "" {
		return r.fallback(topK)
	}

	vecs, err := r.embedder.Embed(ctx, []string{query}, IntentQuery)
	if err != nil {
		r.log.Warn("search degraded: query embedding failed", slog.Any("error", err))
		return Result{Degraded: true, Cause: err}
	}
	if len(vecs) == 0 {
		err := fmt.Errorf("rag: embedder returned no vector for query")
		r.log.Warn("search degraded", slog.Any("error", err))
		return Result{Degraded: true, Cause: err}
	}

	matches, err := r.index.Search(ctx, vecs[0], topK)
	if err != nil {
		r.log.Warn("search degraded: index search failed", slog.Any("error", err))
		return Result{Degraded: true, Cause: err}
	}

	hits := make([]Hit, len(matches))
	for i, m := range matches {
		hits[i] = Hit{
			Restaurant: &r.ds.Rows[m.Index],
			Score:      m.Score,
			Scored:     true,
		}
	}
	return Result{Hits: hits}
}

// fallback returns the topK rows by dine rating descending with no scores.
func (r *Retriever) fallback(topK int) Result {
	hits := make([]Hit, 0, topK)
	for _, idx := range r.byRating[:topK] {
		hits = append(hits, Hit{Restaurant: &r.ds.Rows[idx]})
	}
	return Result{Hits: hits}
}

// ratingOrder computes the fallback ordering once at construction: dine
// rating descending, rows with no rating after all rated rows, ties keeping
// original dataset order.
func ratingOrder(ds *dataset.Dataset) []int {
	order := make([]int, ds.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := ds.Rows[order[a]].DineRating, ds.Rows[order[b]].DineRating
		switch {
		case ra == nil:
			return false
		case rb == nil:
			return true
		default:
			return *ra > *rb
		}
	})
	return order
}
