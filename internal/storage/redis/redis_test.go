package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/apparel-catalog/internal/cache"
)

func setup(t *testing.T) (*miniredis.Miniredis, *Backend) {
	t.Helper()
	srv := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Options{Addr: srv.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return srv, NewBackend(client)
}

func TestBackend_GetSet(t *testing.T) {
	ctx := context.Background()
	srv, b := setup(t)

	_, err := b.Get(ctx, "list:page:1:limit:10")
	require.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, b.Set(ctx, "list:page:1:limit:10", []byte(`{"total":1}`), 300*time.Second))

	got, err := b.Get(ctx, "list:page:1:limit:10")
	require.NoError(t, err)
	assert.Equal(t, `{"total":1}`, string(got))
	assert.Equal(t, 300*time.Second, srv.TTL("list:page:1:limit:10"))

	srv.FastForward(301 * time.Second)
	_, err = b.Get(ctx, "list:page:1:limit:10")
	require.ErrorIs(t, err, cache.ErrMiss)
}

func TestBackend_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	srv, b := setup(t)

	for i := range 1200 {
		require.NoError(t, srv.Set(fmt.Sprintf("list:page:%d:limit:10", i+1), "x"))
	}
	require.NoError(t, srv.Set("session:abc", "keep"))

	require.NoError(t, b.DeletePrefix(ctx, cache.ListPrefix))

	assert.Equal(t, []string{"session:abc"}, srv.Keys())
}

func TestBackend_Unreachable(t *testing.T) {
	ctx := context.Background()
	srv, b := setup(t)
	srv.Close()

	_, err := b.Get(ctx, "list:page:1:limit:10")
	require.Error(t, err)
	assert.NotErrorIs(t, err, cache.ErrMiss)
}

func TestNewClient_PingFails(t *testing.T) {
	_, err := NewClient(context.Background(), Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
}

func TestBackend_ThroughCache(t *testing.T) {
	ctx := context.Background()
	srv, b := setup(t)

	c, err := cache.New(b, cache.Config{TTL: time.Minute}, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	key := cache.ListKey(cache.KeyParams{Size: "L", Page: 1, Limit: 10})
	c.Set(ctx, key, []byte("page"), c.Epoch())
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "page", string(got))

	c.InvalidateAll(ctx)
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)

	// Backend gone: the cache keeps answering with misses.
	srv.Close()
	c.Set(ctx, key, []byte("page"), c.Epoch())
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
}
