package checkpoint_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/randalmurphal/portfolio-agent/pkg/checkpoint"
	"github.com/randalmurphal/portfolio-agent/pkg/observability"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeCounter records decode failures and ignores everything else.
type decodeCounter struct {
	observability.NoopMetrics
	mu   sync.Mutex
	tags []string
}

func (d *decodeCounter) RecordDecodeFailure(_ context.Context, tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tags = append(d.tags, tag)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := checkpoint.NewRedisStore(ctx, "redis://"+addr+"/0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, checkpoint.ErrConnection))

	var connErr *checkpoint.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, addr, connErr.Addr)
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := checkpoint.NewRedisStore(context.Background(), "http://not-redis")
	require.Error(t, err)
	assert.True(t, errors.Is(err, checkpoint.ErrConnection))
}

func TestRedisStore_KeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store, err := checkpoint.NewRedisStore(ctx, "redis://"+mr.Addr(),
		checkpoint.WithPrefix("custom::"),
		checkpoint.WithTTL(time.Hour),
		checkpoint.WithClock(func() time.Time { return time.UnixMicro(1_700_000_000_000_000) }),
	)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, "t1", "c1", "payload", nil))
	require.NoError(t, store.PutWrites(ctx, "t1", "w1", "write"))

	assert.True(t, mr.Exists("custom:checkpoint:t1:c1"))
	assert.True(t, mr.Exists("custom:checkpoints:t1"))
	assert.True(t, mr.Exists("custom:writes:t1:w1"))

	members, err := mr.ZMembers("custom:checkpoints:t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, members)

	score, err := mr.ZScore("custom:checkpoints:t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, float64(1_700_000_000_000_000), score)

	assert.Equal(t, time.Hour, mr.TTL("custom:checkpoint:t1:c1"))
	assert.Equal(t, time.Hour, mr.TTL("custom:writes:t1:w1"))
	assert.Zero(t, mr.TTL("custom:checkpoints:t1"))

	writeIDs, err := mr.SMembers("custom:writeids:t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, writeIDs)
	assert.Equal(t, time.Hour, mr.TTL("custom:writeids:t1"))
}

func TestRedisStore_DefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store, err := checkpoint.NewRedisStore(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, "t1", "c1", "payload", nil))
	assert.True(t, mr.Exists("portfolio_agent:checkpoint:t1:c1"))
}

func TestRedisStore_CorruptValueIsAbsent(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	var logs bytes.Buffer
	metrics := &decodeCounter{}
	store, err := checkpoint.NewRedisStore(ctx, "redis://"+mr.Addr(),
		checkpoint.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		checkpoint.WithMetrics(metrics),
	)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, "t1", "c1", "good", nil))
	require.NoError(t, mr.Set("portfolio_agent:checkpoint:t1:c1", "MP\xc1\xc1"))

	_, ok, err := store.GetTuple(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.LatestCheckpoint(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Contains(t, logs.String(), "checkpoint decode failed")
	assert.Contains(t, logs.String(), "checkpoint_id=c1")
	assert.Equal(t, []string{"MP", "MP"}, metrics.tags)
}

func TestRedisStore_ReadsUntaggedLegacyValue(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store, err := checkpoint.NewRedisStore(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, mr.Set("portfolio_agent:checkpoint:t1:legacy", `{"payload":{"n":1},"metadata":{},"ts":1700000000.25}`))

	tuple, ok, err := store.GetTuple(ctx, "t1", "legacy")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"n": float64(1)}, tuple.Payload)
	assert.Equal(t, time.UnixMicro(1_700_000_000_250_000), tuple.CreatedAt)
}

func TestRedisStore_IOErrorIsReturned(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store, err := checkpoint.NewRedisStoreFromClient(ctx, client)
	require.NoError(t, err)
	defer store.Close()

	mr.SetError("LOADING server is loading")

	err = store.Put(ctx, "t1", "c1", "payload", nil)
	assert.Error(t, err)

	_, _, err = store.GetTuple(ctx, "t1", "c1")
	assert.Error(t, err)

	_, err = store.ListCheckpoints(ctx, "t1", 0, -1)
	assert.Error(t, err)
}
