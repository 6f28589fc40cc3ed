// Package dataset loads the restaurant outlet dataset from CSV and derives
// the per-row text used as embedding input. The dataset is loaded once at
// startup and treated as read-only for the lifetime of the process; ranking
// always produces a new view, never a mutation of row order.
package dataset

import (
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrNotFound is returned by Load when the dataset file does not exist.
var ErrNotFound = errors.New("dataset: file not found")

// columnRenames maps raw source column names (already lower-cased) to their
// canonical names. Columns not listed here keep their lower-cased name.
var columnRenames = map[string]string{
	"rest_name":       "name",
	"rest_type":       "type",
	"loc":             "location",
	"cuisine":         "cuisines",
	"dine_rating":     "rating_dine",
	"delivery_rating": "rating_delivery",
	"cost":            "cost",
	"liked":           "highlights",
}

// textColumns are the canonical string columns, in the order they appear in
// the derived embedding text.
var textColumns = []string{"name", "type", "location", "cuisines", "highlights"}

// numericColumns are the canonical numeric columns. Unparseable or absent
// values are missing (nil), never zero. The distinction matters because the
// embedding text substitutes "0" for missing values while formatted output
// substitutes null.
var numericColumns = []string{"rating_dine", "rating_delivery", "cost"}

// Restaurant is one row of the dataset. Numeric fields are pointers so that
// a missing value is representable distinctly from zero and marshals as
// JSON null.
type Restaurant struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Location       string   `json:"location"`
	Cuisines       string   `json:"cuisines"`
	DineRating     *float64 `json:"dine_rating"`
	DeliveryRating *float64 `json:"delivery_rating"`
	Cost           *int     `json:"cost"`
	Highlights     string   `json:"highlights"`
}

// EmbeddingText returns the pipe-delimited text blob embedded for this row.
// Missing numeric values render as "0". The output is deterministic given
// the other fields.
func (r *Restaurant) EmbeddingText() string {
	dine := "0"
	if r.DineRating != nil {
		dine = strconv.FormatFloat(*r.DineRating, 'g', -1, 64)
	}
	delivery := "0"
	if r.DeliveryRating != nil {
		delivery = strconv.FormatFloat(*r.DeliveryRating, 'g', -1, 64)
	}
	cost := "0"
	if r.Cost != nil {
		cost = strconv.Itoa(*r.Cost)
	}
	return strings.Join([]string{
		r.Name, r.Type, r.Location, r.Cuisines, r.Highlights,
		dine, delivery, cost,
	}, " | ")
}

// Dataset is the ordered, immutable collection of restaurants. Row order is
// fixed at load time; index position is the sole join key to the embedding
// matrix.
type Dataset struct {
	// Rows holds the restaurants in original file order.
	Rows []Restaurant
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// Checksum returns a SHA-256 digest over every row's embedding text, in row
// order. It identifies the dataset content for embedding-matrix versioning:
// any change to a field that feeds the embedding changes the checksum.
func (d *Dataset) Checksum() [32]byte {
	h := sha256.New()
	for i := range d.Rows {
		h.Write([]byte(d.Rows[i].EmbeddingText()))
		h.Write([]byte{0})
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// Load reads the dataset CSV at path. It returns ErrNotFound when the file
// is missing. Column headers are lower-cased and renamed to the canonical
// set; canonical columns absent from the file default to empty (text) or
// missing (numeric). Load never mutates the source file.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	ds, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("dataset: parse %s: %w", path, err)
	}
	return ds, nil
}

// Parse reads CSV dataset content from r. Exposed separately from Load so
// tests can feed fixture data without touching the filesystem.
func Parse(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	// Ragged rows in scraped data are tolerated; short rows are padded below.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return &Dataset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	// Map each canonical column name to its field index in the file, -1 when
	// absent. The rename table is applied after lower-casing.
	index := make(map[string]int, len(header))
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		if canonical, ok := columnRenames[name]; ok {
			name = canonical
		}
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	field := func(record []string, col string) (string, bool) {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return "", false
		}
		return record[i], true
	}

	var rows []Restaurant
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}

		var r Restaurant
		for _, col := range textColumns {
			raw, _ := field(record, col)
			val := strings.TrimSpace(raw)
			switch col {
			case "name":
				r.Name = val
			case "type":
				r.Type = val
			case "location":
				r.Location = val
			case "cuisines":
				r.Cuisines = val
			case "highlights":
				r.Highlights = val
			}
		}
		for _, col := range numericColumns {
			raw, ok := field(record, col)
			if !ok {
				continue
			}
			switch col {
			case "rating_dine":
				r.DineRating = parseFloat(raw)
			case "rating_delivery":
				r.DeliveryRating = parseFloat(raw)
			case "cost":
				r.Cost = parseInt(raw)
			}
		}
		rows = append(rows, r)
	}

	return &Dataset{Rows: rows}, nil
}

// parseFloat coerces a raw CSV value to a float, returning nil for empty or
// unparseable input.
func parseFloat(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseInt coerces a raw CSV value to an int, accepting float-formatted
// input ("450.0") since scraped cost columns mix both. Returns nil for empty
// or unparseable input.
func parseInt(raw string) *int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return &v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	v := int(f)
	return &v
}
