package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists checkpoints to SQLite.
// It is suitable for single-process production use.
//
// Values live in one table keyed exactly like RedisStore keys and tagged
// with their thread id; the thread index is a second table of
// (index key, checkpoint id, score) rows.
type SQLiteStore struct {
	db     *sql.DB
	cfg    storeConfig
	mu     sync.RWMutex
	closed bool
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite checkpoint store.
// The path should be a file path (e.g., "./checkpoints.db") or ":memory:" for testing.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoint_values (
			key TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			data BLOB NOT NULL,
			expires_at INTEGER
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create values table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_checkpoint_values_thread
		ON checkpoint_values(thread_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create thread index: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoint_index (
			index_key TEXT NOT NULL,
			checkpoint_id TEXT NOT NULL,
			score REAL NOT NULL,
			PRIMARY KEY (index_key, checkpoint_id)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_checkpoint_index_score
		ON checkpoint_index(index_key, score)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db, cfg: newStoreConfig(opts)}, nil
}

// Put implements Store. The value and the index row are written in one transaction.
func (s *SQLiteStore) Put(ctx context.Context, threadID, checkpointID string, payload any, metadata map[string]any) error {
	now := s.cfg.now()
	data, err := encodeCheckpoint(payload, metadata, now)
	if err != nil {
		return fmt.Errorf("put checkpoint %s: %w", checkpointID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put checkpoint %s: begin: %w", checkpointID, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := s.setValue(ctx, tx, threadID, s.cfg.keys.Checkpoint(threadID, checkpointID), data, now); err != nil {
		return fmt.Errorf("put checkpoint %s: %w", checkpointID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoint_index (index_key, checkpoint_id, score)
		VALUES (?, ?, ?)
		ON CONFLICT(index_key, checkpoint_id) DO UPDATE SET score = excluded.score
	`, s.cfg.keys.Index(threadID), checkpointID, score(now)); err != nil {
		return fmt.Errorf("put checkpoint %s: index: %w", checkpointID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put checkpoint %s: commit: %w", checkpointID, err)
	}

	s.cfg.metrics.RecordCheckpoint(ctx, int64(len(data)))
	return nil
}

// PutWrites implements Store.
func (s *SQLiteStore) PutWrites(ctx context.Context, threadID, writeID string, payload any) error {
	now := s.cfg.now()
	data, err := encodeWrite(payload, now)
	if err != nil {
		return fmt.Errorf("put write %s: %w", writeID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if err := s.setValue(ctx, s.db, threadID, s.cfg.keys.Write(threadID, writeID), data, now); err != nil {
		return fmt.Errorf("put write %s: %w", writeID, err)
	}
	return nil
}

// GetTuple implements Store.
func (s *SQLiteStore) GetTuple(ctx context.Context, threadID, checkpointID string) (Tuple, bool, error) {
	data, ok, err := s.getValue(ctx, s.cfg.keys.Checkpoint(threadID, checkpointID))
	if err != nil {
		return Tuple{}, false, fmt.Errorf("get checkpoint %s: %w", checkpointID, err)
	}
	if !ok {
		return Tuple{}, false, nil
	}
	tuple, ok := s.cfg.decoder().tuple(ctx, threadID, checkpointID, data)
	return tuple, ok, nil
}

// GetWrite implements Store.
func (s *SQLiteStore) GetWrite(ctx context.Context, threadID, writeID string) (Write, bool, error) {
	data, ok, err := s.getValue(ctx, s.cfg.keys.Write(threadID, writeID))
	if err != nil {
		return Write{}, false, fmt.Errorf("get write %s: %w", writeID, err)
	}
	if !ok {
		return Write{}, false, nil
	}
	w, ok := s.cfg.decoder().write(ctx, threadID, writeID, data)
	return w, ok, nil
}

// ListCheckpoints implements Store.
func (s *SQLiteStore) ListCheckpoints(ctx context.Context, threadID string, start, stop int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT checkpoint_id FROM checkpoint_index
		WHERE index_key = ?
		ORDER BY score, checkpoint_id
	`, s.cfg.keys.Index(threadID))
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan checkpoint id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}

	lo, hi, ok := rankRange(len(ids), start, stop)
	if !ok {
		return []string{}, nil
	}
	return ids[lo : hi+1], nil
}

// LatestCheckpoint implements Store.
func (s *SQLiteStore) LatestCheckpoint(ctx context.Context, threadID string) (Tuple, bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return Tuple{}, false, ErrStoreClosed
	}
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT checkpoint_id FROM checkpoint_index
		WHERE index_key = ?
		ORDER BY score DESC, checkpoint_id DESC
		LIMIT 1
	`, s.cfg.keys.Index(threadID)).Scan(&id)
	s.mu.RUnlock()

	if errors.Is(err, sql.ErrNoRows) {
		return Tuple{}, false, nil
	}
	if err != nil {
		return Tuple{}, false, fmt.Errorf("latest checkpoint: %w", err)
	}
	return s.GetTuple(ctx, threadID, id)
}

// DeleteThread implements Store.
func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete thread: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM checkpoint_values WHERE thread_id = ?
	`, threadID); err != nil {
		return fmt.Errorf("delete thread: values: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM checkpoint_index WHERE index_key = ?
	`, s.cfg.keys.Index(threadID)); err != nil {
		return fmt.Errorf("delete thread: index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete thread: commit: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) setValue(ctx context.Context, db execer, threadID, key string, data []byte, now time.Time) error {
	var expires sql.NullInt64
	if s.cfg.ttl > 0 {
		expires = sql.NullInt64{Int64: now.Add(s.cfg.ttl).UnixMicro(), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO checkpoint_values (key, thread_id, data, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at
	`, key, threadID, data, expires)
	return err
}

func (s *SQLiteStore) getValue(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrStoreClosed
	}

	var data []byte
	var expires sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT data, expires_at FROM checkpoint_values WHERE key = ?
	`, key).Scan(&data, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expires.Valid && s.cfg.now().UnixMicro() >= expires.Int64 {
		return nil, false, nil
	}
	return data, true, nil
}
