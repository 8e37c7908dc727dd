package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only against a real server: MEDREF_TEST_REDIS_ADDR=127.0.0.1:6379
func TestRedisBucketIntegration(t *testing.T) {
	addr := os.Getenv("MEDREF_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MEDREF_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	store, err := NewRedisStore(ctx, addr, "", 0)
	require.NoError(t, err)
	defer store.Close()

	name := "test-" + uuid.NewString()
	defer store.Drop(ctx, name)

	bucket, err := store.Open(ctx, name, Limits{MaxEntries: 2})
	require.NoError(t, err)

	require.NoError(t, bucket.Put(ctx, "a", response("a")))
	require.NoError(t, bucket.Put(ctx, "b", response("b")))
	require.NoError(t, bucket.Put(ctx, "c", response("c")))

	_, err = bucket.Match(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := bucket.Match(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "c", string(got.Body))

	keys, err := bucket.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, keys)

	names, err := store.Names(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, name)

	deleted, err := bucket.Delete(ctx, "b")
	require.NoError(t, err)
	assert.True(t, deleted)
}
