// Package checkpoint provides durable, thread-scoped checkpoint storage.
//
// A checkpoint is an opaque payload plus metadata saved under a thread id
// and a checkpoint id. Each thread keeps an insertion-ordered index of its
// checkpoint ids so the latest one can be found without scanning. Writes
// are auxiliary blobs recorded for side effects within a thread.
//
// Implementations:
//   - RedisStore: shared, networked storage (string keys plus a sorted-set index)
//   - SQLiteStore: single-process file storage
//   - MemoryStore: in-process storage for tests and local runs
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store persists checkpoints and writes.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put saves a checkpoint and appends its id to the thread index.
	// Re-putting an existing id overwrites the value and moves the id to
	// the end of the index.
	Put(ctx context.Context, threadID, checkpointID string, payload any, metadata map[string]any) error

	// PutWrites saves an auxiliary blob under its own key.
	PutWrites(ctx context.Context, threadID, writeID string, payload any) error

	// GetTuple loads a checkpoint. The boolean is false when the checkpoint
	// is absent, expired, or cannot be decoded.
	GetTuple(ctx context.Context, threadID, checkpointID string) (Tuple, bool, error)

	// GetWrite loads a write. The boolean is false when the write is absent,
	// expired, or cannot be decoded.
	GetWrite(ctx context.Context, threadID, writeID string) (Write, bool, error)

	// ListCheckpoints returns checkpoint ids in insertion order for the
	// inclusive rank range [start, stop]. Negative ranks count from the
	// end, so (0, -1) lists everything and (-1, -1) the newest id.
	ListCheckpoints(ctx context.Context, threadID string, start, stop int64) ([]string, error)

	// LatestCheckpoint loads the most recently inserted checkpoint.
	LatestCheckpoint(ctx context.Context, threadID string) (Tuple, bool, error)

	// DeleteThread removes every checkpoint, write and index entry of a thread.
	DeleteThread(ctx context.Context, threadID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Tuple is a decoded checkpoint.
type Tuple struct {
	CheckpointID string
	Payload      any
	Metadata     map[string]any
	CreatedAt    time.Time
}

// Write is a decoded auxiliary blob.
type Write struct {
	WriteID   string
	Payload   any
	CreatedAt time.Time
}

// Sentinel errors for checkpoint operations.
var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrConnection is matched by every *ConnectionError.
	ErrConnection = errors.New("checkpoint store unreachable")
)

// ConnectionError reports a store that could not be reached at construction.
type ConnectionError struct {
	// Addr is the server address, without credentials.
	Addr string
	Err  error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("connect checkpoint store: %v", e.Err)
	}
	return fmt.Sprintf("connect checkpoint store at %s: %v", e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConnection.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// rankRange resolves an inclusive sorted-set rank range against n members.
// ok is false when the range selects nothing.
func rankRange(n int, start, stop int64) (lo, hi int, ok bool) {
	size := int64(n)
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if start > stop || start >= size {
		return 0, 0, false
	}
	if stop >= size {
		stop = size - 1
	}
	return int(start), int(stop), true
}
