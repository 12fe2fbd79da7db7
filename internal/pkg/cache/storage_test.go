package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withClient(t *testing.T, c *redis.Client) {
	prev := client
	t.Cleanup(func() { client = prev })
	client = c
}

func TestNewFiberStorageWithoutClient(t *testing.T) {
	withClient(t, nil)
	assert.Nil(t, NewFiberStorage(3))
}

func TestNewFiberStorageOnRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	withClient(t, redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	storage := NewFiberStorage(0)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })

	require.NoError(t, storage.Set("limiter:key", []byte("3"), time.Minute))
	got, err := storage.Get("limiter:key")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), got)
}
