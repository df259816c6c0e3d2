// Package vectorstore provides nearest-neighbour lookup over embedded
// documents.
//
// Distances follow pgvector's negative inner product operator (<#>):
// smaller is closer, so results are ordered by ascending Distance.
package vectorstore

import (
	"context"
	"errors"

	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

// Store finds and saves embedded documents.
type Store interface {
	// Nearest returns at most topK documents ordered by ascending distance.
	Nearest(ctx context.Context, vector []float32, topK int) ([]state.Document, error)

	// Upsert saves vector under id, replacing any existing row. The
	// metadata "content" entry, when a string, becomes the document text.
	Upsert(ctx context.Context, id string, metadata map[string]any, vector []float32) error
}

// Sentinel errors.
var (
	ErrInvalidTable      = errors.New("vectorstore: invalid table name")
	ErrEmptyVector       = errors.New("vectorstore: empty vector")
	ErrDimensionMismatch = errors.New("vectorstore: vector dimension mismatch")
)

// contentOf returns the document text carried in metadata.
func contentOf(metadata map[string]any) string {
	if s, ok := metadata["content"].(string); ok {
		return s
	}
	return ""
}
