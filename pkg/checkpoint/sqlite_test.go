package checkpoint_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/randalmurphal/portfolio-agent/pkg/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	store1, err := checkpoint.NewSQLiteStore(path, checkpoint.WithPrefix("app"))
	require.NoError(t, err)
	require.NoError(t, store1.Put(ctx, "t1", "c1", map[string]any{"n": int64(1)}, nil))
	require.NoError(t, store1.Close())

	store2, err := checkpoint.NewSQLiteStore(path, checkpoint.WithPrefix("app"))
	require.NoError(t, err)
	defer store2.Close()

	tuple, ok, err := store2.LatestCheckpoint(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"n": int64(1)}, tuple.Payload)

	// A different prefix sees a different namespace.
	store3, err := checkpoint.NewSQLiteStore(path, checkpoint.WithPrefix("other"))
	require.NoError(t, err)
	defer store3.Close()

	_, ok, err = store3.LatestCheckpoint(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := checkpoint.NewSQLiteStore("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestSQLiteStore_CloseIdempotent(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())

	err = store.Put(context.Background(), "t1", "c1", "x", nil)
	assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
}

func TestSQLiteStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			thread := fmt.Sprintf("t%d", n%3)
			for j := 0; j < 5; j++ {
				assert.NoError(t, store.Put(ctx, thread, fmt.Sprintf("c%d-%d", n, j), n, nil))
				_, _, err := store.LatestCheckpoint(ctx, thread)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 3; i++ {
		ids, err := store.ListCheckpoints(ctx, fmt.Sprintf("t%d", i), 0, -1)
		require.NoError(t, err)
		total += len(ids)
	}
	assert.Equal(t, 50, total)
}

func TestSQLiteStore_ThreadIDWithWildcards(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, "a_%", "c1", "x", nil))
	require.NoError(t, store.Put(ctx, "ab%", "c1", "y", nil))

	require.NoError(t, store.DeleteThread(ctx, "a_%"))

	_, ok, err := store.GetTuple(ctx, "ab%", "c1")
	require.NoError(t, err)
	assert.True(t, ok)
}
