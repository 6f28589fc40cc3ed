package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/taniishka21/KhavayyePeth/internal/rag"
)

// contextEntry is the JSON shape of one restaurant inside dataset_context.
// Ratings are rounded to one decimal; missing numerics marshal as null so
// the model can tell "unrated" apart from "rated zero".
type contextEntry struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Location       string   `json:"location"`
	Cuisines       string   `json:"cuisines"`
	DineRating     *float64 `json:"dine_rating"`
	DeliveryRating *float64 `json:"delivery_rating"`
	Cost           *int     `json:"cost"`
	Highlights     string   `json:"highlights"`
}

// FormatContext renders at most limit hits as the indented JSON array handed
// to the model. No hits renders as "[]", which the system prompt treats as
// "ask a clarifying question". Similarity scores never appear in the output;
// they exist to rank, not to ground.
func FormatContext(hits []rag.Hit, limit int) (string, error) {
	if len(hits) == 0 || limit <= 0 {
		return "[]", nil
	}
	if limit < len(hits) {
		hits = hits[:limit]
	}

	entries := make([]contextEntry, 0, len(hits))
	for _, h := range hits {
		r := h.Restaurant
		entries = append(entries, contextEntry{
			Name:           r.Name,
			Type:           r.Type,
			Location:       r.Location,
			Cuisines:       r.Cuisines,
			DineRating:     round1(r.DineRating),
			DeliveryRating: round1(r.DeliveryRating),
			Cost:           r.Cost,
			Highlights:     r.Highlights,
		})
	}

	// Restaurant names and highlights carry Devanagari and the odd ampersand;
	// keep them readable rather than \u-escaped.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return "", fmt.Errorf("chat: marshal context: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// round1 rounds a rating to one decimal place, passing missing values through.
func round1(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*10) / 10
	return &r
}
