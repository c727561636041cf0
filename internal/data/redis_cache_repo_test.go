package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatwire/threatwire/internal/testutil"
)

func TestRedisCacheRepo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	defer func() { _ = client.Close() }()

	repo := NewRedisCacheRepo(client)
	ctx := context.Background()

	t.Run("set and get round trip", func(t *testing.T) {
		key := "dedup:test:1"
		err := repo.Set(ctx, key, []byte("queued"), 5*time.Minute)
		require.NoError(t, err)

		got, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("queued"), got)
	})

	t.Run("get missing key returns nil", func(t *testing.T) {
		got, err := repo.Get(ctx, "dedup:missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete", func(t *testing.T) {
		key := "dedup:test:2"
		require.NoError(t, repo.Set(ctx, key, []byte("x"), time.Minute))

		removed, err := repo.Delete(ctx, key)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = repo.Delete(ctx, key)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("set if not exists wins once", func(t *testing.T) {
		key := "dedup:test:3"

		set, err := repo.SetIfNotExists(ctx, key, []byte("first"), time.Minute)
		require.NoError(t, err)
		assert.True(t, set)

		set, err = repo.SetIfNotExists(ctx, key, []byte("second"), time.Minute)
		require.NoError(t, err)
		assert.False(t, set)

		got, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), got)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		require.Error(t, repo.Set(ctx, "", nil, time.Minute))
		_, err := repo.Get(ctx, "")
		require.Error(t, err)
		_, err = repo.SetIfNotExists(ctx, "", nil, time.Minute)
		require.Error(t, err)
	})
}
