package rag

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/taniishka21/KhavayyePeth/internal/dataset"
)

// matrixMagic identifies a persisted embedding matrix file.
var matrixMagic = [4]byte{'K', 'H', 'V', 'Y'}

// matrixVersion is the current on-disk format version.
const matrixVersion uint32 = 1

// BatchSize is the number of texts sent per embedding request when building
// the matrix. Kept at 100 to respect provider request-size limits.
const BatchSize = 100

// Matrix is the dense row-major embedding matrix, one row per dataset row,
// aligned by index. It is immutable after construction.
type Matrix struct {
	// rows is the number of embedded dataset rows.
	rows int
	// dims is the embedding vector length.
	dims int
	// data holds the vectors row-major: row i is data[i*dims : (i+1)*dims].
	data []float32
	// checksum is the dataset content digest the matrix was built from.
	checksum [32]byte
}

// Rows returns the number of embedding rows.
func (m *Matrix) Rows() int { return m.rows }

// Dims returns the embedding vector length.
func (m *Matrix) Dims() int { return m.dims }

// Checksum returns the dataset content digest recorded at build time.
func (m *Matrix) Checksum() [32]byte { return m.checksum }

// Row returns the embedding vector for dataset row i. The returned slice
// aliases the matrix storage and must not be modified.
func (m *Matrix) Row(i int) []float32 {
	return m.data[i*m.dims : (i+1)*m.dims]
}

// BuildMatrix embeds every row's embedding text under document intent and
// assembles the matrix. Texts are sent in batches of BatchSize; results are
// concatenated in original row order. Any provider error aborts the build,
// which is acceptable because building happens once before serving traffic.
func BuildMatrix(ctx context.Context, ds *dataset.Dataset, embedder Embedder) (*Matrix, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("rag: refusing to build matrix for empty dataset")
	}

	texts := make([]string, ds.Len())
	for i := range ds.Rows {
		texts[i] = ds.Rows[i].EmbeddingText()
	}

	var vectors [][]float32
	for start := 0; start < len(texts); start += BatchSize {
		end := start + BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := embedder.Embed(ctx, texts[start:end], IntentDocument)
		if err != nil {
			return nil, fmt.Errorf("rag: embedding batch %d-%d: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("rag: embedding batch %d-%d: expected %d vectors, got %d", start, end, end-start, len(batch))
		}
		vectors = append(vectors, batch...)
	}

	dims := len(vectors[0])
	if dims == 0 {
		return nil, fmt.Errorf("rag: embedder returned zero-length vectors")
	}

	m := &Matrix{
		rows:     len(vectors),
		dims:     dims,
		data:     make([]float32, len(vectors)*dims),
		checksum: ds.Checksum(),
	}
	for i, vec := range vectors {
		if len(vec) != dims {
			return nil, fmt.Errorf("rag: vector %d has %d dims, expected %d", i, len(vec), dims)
		}
		copy(m.data[i*dims:], vec)
	}
	return m, nil
}

// Save writes the matrix to path in the binary format:
// magic, version, rows, dims (uint32 little-endian), 32-byte dataset
// checksum, then rows*dims float32 values row-major. The write goes through
// a temp file and rename so a crash never leaves a truncated matrix behind.
func (m *Matrix) Save(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("rag: create %s: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	werr := writeAll(w,
		matrixMagic[:],
		matrixVersion,
		uint32(m.rows), //nolint:gosec // row count is bounded by dataset size
		uint32(m.dims), //nolint:gosec // dims are bounded by the embedding model
		m.checksum[:],
		m.data,
	)
	if werr == nil {
		werr = w.Flush()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rag: write %s: %w", tmp, werr)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rag: rename %s: %w", tmp, err)
	}
	return nil
}

// writeAll writes each value with binary.Write in little-endian order,
// stopping at the first error.
func writeAll(w *bufio.Writer, values ...any) error {
	for _, v := range values {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

// LoadMatrix reads a matrix previously written by Save. It validates the
// header but not dataset alignment; use NewMatrixIndex for that.
func LoadMatrix(path string) (*Matrix, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rag: read %s: %w", path, err)
	}

	r := bytes.NewReader(raw)
	var (
		magic   [4]byte
		version uint32
		rows    uint32
		dims    uint32
		sum     [32]byte
	)
	for _, v := range []any{&magic, &version, &rows, &dims, &sum} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("rag: %s: truncated header: %w", path, err)
		}
	}
	if magic != matrixMagic {
		return nil, fmt.Errorf("rag: %s is not an embedding matrix file", path)
	}
	if version != matrixVersion {
		return nil, fmt.Errorf("rag: %s: unsupported matrix version %d", path, version)
	}

	data := make([]float32, int(rows)*int(dims))
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("rag: %s: truncated matrix data: %w", path, err)
	}

	return &Matrix{
		rows:     int(rows),
		dims:     int(dims),
		data:     data,
		checksum: sum,
	}, nil
}

// MatrixIndex is the default VectorIndex: a full scan over the in-memory
// matrix. At a few thousand rows a scan beats any index structure and needs
// no external service.
type MatrixIndex struct {
	matrix *Matrix
}

// NewMatrixIndex validates the matrix against the dataset and wraps it in a
// searchable index. Row-count or checksum mismatch means the persisted
// matrix no longer describes this dataset; the caller gets a descriptive
// error instead of silently misaligned similarity scores.
func NewMatrixIndex(m *Matrix, ds *dataset.Dataset) (*MatrixIndex, error) {
	if m.rows != ds.Len() {
		return nil, fmt.Errorf("rag: matrix has %d rows but dataset has %d; re-run the index command", m.rows, ds.Len())
	}
	if m.checksum != ds.Checksum() {
		return nil, fmt.Errorf("rag: matrix checksum does not match dataset content; re-run the index command")
	}
	return &MatrixIndex{matrix: m}, nil
}

// Size returns the number of rows in the index.
func (ix *MatrixIndex) Size() int { return ix.matrix.rows }

// Close is a no-op; the matrix is plain memory.
func (ix *MatrixIndex) Close() error { return nil }

// Search scores every row by dot product against the query vector, partial-
// selects the topK highest, and returns only that subset sorted by score
// descending. topK larger than the index is clamped.
func (ix *MatrixIndex) Search(ctx context.Context, query []float32, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rag: search cancelled: %w", err)
	}
	if len(query) != ix.matrix.dims {
		return nil, fmt.Errorf("rag: query vector has %d dims, index has %d", len(query), ix.matrix.dims)
	}
	if topK <= 0 {
		return nil, nil
	}
	if topK > ix.matrix.rows {
		topK = ix.matrix.rows
	}

	scores := make([]float64, ix.matrix.rows)
	for i := 0; i < ix.matrix.rows; i++ {
		scores[i] = dot(ix.matrix.Row(i), query)
	}

	selected := selectTopK(scores, topK)
	sort.Slice(selected, func(a, b int) bool {
		return scores[selected[a]] > scores[selected[b]]
	})

	matches := make([]Match, len(selected))
	for i, idx := range selected {
		matches[i] = Match{Index: idx, Score: scores[idx]}
	}
	return matches, nil
}

// dot computes the dot product of two equal-length vectors, accumulating in
// float64 to limit rounding drift.
func dot(a []float32, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// selectTopK returns the indices of the k highest scores using quickselect.
// The returned order is unspecified; callers sort the selected subset.
func selectTopK(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	if k >= len(idx) {
		return idx
	}

	lo, hi := 0, len(idx)-1
	for lo < hi {
		p := partitionDesc(scores, idx, lo, hi)
		switch {
		case p == k-1:
			return idx[:k]
		case p < k-1:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
	return idx[:k]
}

// partitionDesc partitions idx[lo..hi] so that indices with scores higher
// than the pivot land left of the returned pivot position. Descending
// Lomuto scheme with a median-of-three pivot so pre-sorted score arrays do
// not degrade to quadratic time.
func partitionDesc(scores []float64, idx []int, lo, hi int) int {
	mid := lo + (hi-lo)/2
	if scores[idx[mid]] > scores[idx[lo]] {
		idx[lo], idx[mid] = idx[mid], idx[lo]
	}
	if scores[idx[hi]] > scores[idx[lo]] {
		idx[lo], idx[hi] = idx[hi], idx[lo]
	}
	if scores[idx[mid]] > scores[idx[hi]] {
		idx[mid], idx[hi] = idx[hi], idx[mid]
	}
	pivot := scores[idx[hi]]

	i := lo
	for j := lo; j < hi; j++ {
		if scores[idx[j]] > pivot {
			idx[i], idx[j] = idx[j], idx[i]
			i++
		}
	}
	idx[i], idx[hi] = idx[hi], idx[i]
	return i
}
