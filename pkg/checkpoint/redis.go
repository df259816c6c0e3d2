package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps checkpoints in Redis.
//
// Checkpoint and write values are plain string keys (with an optional TTL);
// each thread's index is a sorted set scored by insertion time in
// microseconds. Write ids are also collected in a per-thread set that
// DeleteThread reads. The store does not retry failed commands.
type RedisStore struct {
	client *redis.Client
	cfg    storeConfig
	closed atomic.Bool
}

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to the server at url (redis:// or rediss://) and
// verifies it with PING. Failure to parse or reach the server returns a
// *ConnectionError.
func NewRedisStore(ctx context.Context, url string, opts ...Option) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("parse url: %w", err)}
	}

	client := redis.NewClient(redisOpts)
	store, err := NewRedisStoreFromClient(ctx, client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// NewRedisStoreFromClient wraps an existing client and verifies it with PING.
func NewRedisStoreFromClient(ctx context.Context, client *redis.Client, opts ...Option) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &ConnectionError{Addr: client.Options().Addr, Err: err}
	}
	return &RedisStore{client: client, cfg: newStoreConfig(opts)}, nil
}

// Put implements Store. The value write and the index update are sent in
// one MULTI/EXEC transaction.
func (s *RedisStore) Put(ctx context.Context, threadID, checkpointID string, payload any, metadata map[string]any) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	now := s.cfg.now()
	data, err := encodeCheckpoint(payload, metadata, now)
	if err != nil {
		return fmt.Errorf("put checkpoint %s: %w", checkpointID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.cfg.keys.Checkpoint(threadID, checkpointID), data, s.cfg.ttl)
	pipe.ZAdd(ctx, s.cfg.keys.Index(threadID), redis.Z{Score: score(now), Member: checkpointID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put checkpoint %s: %w", checkpointID, err)
	}

	s.cfg.metrics.RecordCheckpoint(ctx, int64(len(data)))
	return nil
}

// PutWrites implements Store. The id set shares the TTL of the newest
// write so it outlives every write it names.
func (s *RedisStore) PutWrites(ctx context.Context, threadID, writeID string, payload any) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	data, err := encodeWrite(payload, s.cfg.now())
	if err != nil {
		return fmt.Errorf("put write %s: %w", writeID, err)
	}

	ids := s.cfg.keys.WriteIDs(threadID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.cfg.keys.Write(threadID, writeID), data, s.cfg.ttl)
	pipe.SAdd(ctx, ids, writeID)
	if s.cfg.ttl > 0 {
		pipe.Expire(ctx, ids, s.cfg.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put write %s: %w", writeID, err)
	}
	return nil
}

// GetTuple implements Store.
func (s *RedisStore) GetTuple(ctx context.Context, threadID, checkpointID string) (Tuple, bool, error) {
	if s.closed.Load() {
		return Tuple{}, false, ErrStoreClosed
	}
	data, err := s.client.Get(ctx, s.cfg.keys.Checkpoint(threadID, checkpointID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Tuple{}, false, nil
	}
	if err != nil {
		return Tuple{}, false, fmt.Errorf("get checkpoint %s: %w", checkpointID, err)
	}
	tuple, ok := s.cfg.decoder().tuple(ctx, threadID, checkpointID, data)
	return tuple, ok, nil
}

// GetWrite implements Store.
func (s *RedisStore) GetWrite(ctx context.Context, threadID, writeID string) (Write, bool, error) {
	if s.closed.Load() {
		return Write{}, false, ErrStoreClosed
	}
	data, err := s.client.Get(ctx, s.cfg.keys.Write(threadID, writeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Write{}, false, nil
	}
	if err != nil {
		return Write{}, false, fmt.Errorf("get write %s: %w", writeID, err)
	}
	w, ok := s.cfg.decoder().write(ctx, threadID, writeID, data)
	return w, ok, nil
}

// ListCheckpoints implements Store.
func (s *RedisStore) ListCheckpoints(ctx context.Context, threadID string, start, stop int64) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	ids, err := s.client.ZRange(ctx, s.cfg.keys.Index(threadID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return ids, nil
}

// LatestCheckpoint implements Store.
func (s *RedisStore) LatestCheckpoint(ctx context.Context, threadID string) (Tuple, bool, error) {
	if s.closed.Load() {
		return Tuple{}, false, ErrStoreClosed
	}
	ids, err := s.client.ZRevRange(ctx, s.cfg.keys.Index(threadID), 0, 0).Result()
	if err != nil {
		return Tuple{}, false, fmt.Errorf("latest checkpoint: %w", err)
	}
	if len(ids) == 0 {
		return Tuple{}, false, nil
	}
	return s.GetTuple(ctx, threadID, ids[0])
}

// DeleteThread implements Store.
func (s *RedisStore) DeleteThread(ctx context.Context, threadID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	index := s.cfg.keys.Index(threadID)
	ids, err := s.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	writeSet := s.cfg.keys.WriteIDs(threadID)
	writeIDs, err := s.client.SMembers(ctx, writeSet).Result()
	if err != nil {
		return fmt.Errorf("delete thread: write ids: %w", err)
	}

	keys := make([]string, 0, len(ids)+len(writeIDs)+2)
	for _, id := range ids {
		keys = append(keys, s.cfg.keys.Checkpoint(threadID, id))
	}
	for _, id := range writeIDs {
		keys = append(keys, s.cfg.keys.Write(threadID, id))
	}
	keys = append(keys, index, writeSet)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// Close implements Store. Closing twice is a no-op.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}
