package vectorstore

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

// MemoryStore is a brute-force in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]memoryRow
	dims int
}

type memoryRow struct {
	content  string
	metadata map[string]any
	vector   []float32
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store. The first upserted vector fixes
// the dimension.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]memoryRow)}
}

// Len returns the number of stored documents.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Upsert implements Store.
func (m *MemoryStore) Upsert(ctx context.Context, id string, metadata map[string]any, vector []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(vector) == 0 {
		return ErrEmptyVector
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dims == 0 {
		m.dims = len(vector)
	} else if len(vector) != m.dims {
		return ErrDimensionMismatch
	}
	m.rows[id] = memoryRow{
		content:  contentOf(metadata),
		metadata: maps.Clone(metadata),
		vector:   append([]float32(nil), vector...),
	}
	return nil
}

// Nearest implements Store. Ties are broken by id.
func (m *MemoryStore) Nearest(ctx context.Context, vector []float32, topK int) ([]state.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dims != 0 && len(vector) != m.dims {
		return nil, ErrDimensionMismatch
	}

	docs := make([]state.Document, 0, len(m.rows))
	for id, row := range m.rows {
		docs = append(docs, state.Document{
			ID:       id,
			Content:  row.content,
			Metadata: maps.Clone(row.metadata),
			Distance: -dot(vector, row.vector),
		})
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Distance != docs[j].Distance {
			return docs[i].Distance < docs[j].Distance
		}
		return docs[i].ID < docs[j].ID
	})
	if len(docs) > topK {
		docs = docs[:topK]
	}
	return docs, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
