package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same key, index and expiry
// semantics as RedisStore. Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	values  map[string]memoryValue         // key -> value
	indexes map[string]map[string]float64  // index key -> checkpoint id -> score
	writes  map[string]map[string]struct{} // thread id -> write ids
	cfg     storeConfig
	closed  bool
}

// memoryValue holds an encoded blob and its expiry (zero = never).
type memoryValue struct {
	data    []byte
	expires time.Time
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		values:  make(map[string]memoryValue),
		indexes: make(map[string]map[string]float64),
		writes:  make(map[string]map[string]struct{}),
		cfg:     newStoreConfig(opts),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, threadID, checkpointID string, payload any, metadata map[string]any) error {
	now := m.cfg.now()
	data, err := encodeCheckpoint(payload, metadata, now)
	if err != nil {
		return fmt.Errorf("put checkpoint %s: %w", checkpointID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.setLocked(m.cfg.keys.Checkpoint(threadID, checkpointID), data, now)

	indexKey := m.cfg.keys.Index(threadID)
	if m.indexes[indexKey] == nil {
		m.indexes[indexKey] = make(map[string]float64)
	}
	m.indexes[indexKey][checkpointID] = score(now)

	m.cfg.metrics.RecordCheckpoint(ctx, int64(len(data)))
	return nil
}

// PutWrites implements Store.
func (m *MemoryStore) PutWrites(_ context.Context, threadID, writeID string, payload any) error {
	now := m.cfg.now()
	data, err := encodeWrite(payload, now)
	if err != nil {
		return fmt.Errorf("put write %s: %w", writeID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.setLocked(m.cfg.keys.Write(threadID, writeID), data, now)
	if m.writes[threadID] == nil {
		m.writes[threadID] = make(map[string]struct{})
	}
	m.writes[threadID][writeID] = struct{}{}
	return nil
}

// GetTuple implements Store.
func (m *MemoryStore) GetTuple(ctx context.Context, threadID, checkpointID string) (Tuple, bool, error) {
	data, ok, err := m.get(m.cfg.keys.Checkpoint(threadID, checkpointID))
	if err != nil || !ok {
		return Tuple{}, false, err
	}
	tuple, ok := m.cfg.decoder().tuple(ctx, threadID, checkpointID, data)
	return tuple, ok, nil
}

// GetWrite implements Store.
func (m *MemoryStore) GetWrite(ctx context.Context, threadID, writeID string) (Write, bool, error) {
	data, ok, err := m.get(m.cfg.keys.Write(threadID, writeID))
	if err != nil || !ok {
		return Write{}, false, err
	}
	w, ok := m.cfg.decoder().write(ctx, threadID, writeID, data)
	return w, ok, nil
}

// ListCheckpoints implements Store.
func (m *MemoryStore) ListCheckpoints(_ context.Context, threadID string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	ids := m.orderedLocked(threadID)
	lo, hi, ok := rankRange(len(ids), start, stop)
	if !ok {
		return []string{}, nil
	}
	out := make([]string, hi-lo+1)
	copy(out, ids[lo:hi+1])
	return out, nil
}

// LatestCheckpoint implements Store.
func (m *MemoryStore) LatestCheckpoint(ctx context.Context, threadID string) (Tuple, bool, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return Tuple{}, false, ErrStoreClosed
	}
	ids := m.orderedLocked(threadID)
	m.mu.RUnlock()

	if len(ids) == 0 {
		return Tuple{}, false, nil
	}
	return m.GetTuple(ctx, threadID, ids[len(ids)-1])
}

// DeleteThread implements Store.
func (m *MemoryStore) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	indexKey := m.cfg.keys.Index(threadID)
	for id := range m.indexes[indexKey] {
		delete(m.values, m.cfg.keys.Checkpoint(threadID, id))
	}
	delete(m.indexes, indexKey)

	for id := range m.writes[threadID] {
		delete(m.values, m.cfg.keys.Write(threadID, id))
	}
	delete(m.writes, threadID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.values = nil
	m.indexes = nil
	m.writes = nil
	return nil
}

// Len returns the number of live checkpoint and write values.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.cfg.now()
	count := 0
	for _, v := range m.values {
		if !v.expired(now) {
			count++
		}
	}
	return count
}

func (m *MemoryStore) setLocked(key string, data []byte, now time.Time) {
	stored := make([]byte, len(data))
	copy(stored, data)

	v := memoryValue{data: stored}
	if m.cfg.ttl > 0 {
		v.expires = now.Add(m.cfg.ttl)
	}
	m.values[key] = v
}

func (m *MemoryStore) get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, ErrStoreClosed
	}

	v, ok := m.values[key]
	if !ok || v.expired(m.cfg.now()) {
		return nil, false, nil
	}
	return v.data, true, nil
}

// orderedLocked returns the thread's checkpoint ids sorted by score, ties
// broken by id.
func (m *MemoryStore) orderedLocked(threadID string) []string {
	index := m.indexes[m.cfg.keys.Index(threadID)]
	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := index[ids[i]], index[ids[j]]
		if si != sj {
			return si < sj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (v memoryValue) expired(now time.Time) bool {
	return !v.expires.IsZero() && !now.Before(v.expires)
}
