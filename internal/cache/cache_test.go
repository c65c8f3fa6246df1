package cache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func price(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestListKey(t *testing.T) {
	tests := []struct {
		name   string
		params KeyParams
		want   string
	}{
		{
			name:   "no filters",
			params: KeyParams{Page: 1, Limit: 10},
			want:   "list:page:1:limit:10",
		},
		{
			name:   "size type and min price",
			params: KeyParams{Size: "L", Type: "Formal", MinPrice: price("1000"), Page: 1, Limit: 10},
			want:   "list:size:L:type:Formal:minPrice:1000:page:1:limit:10",
		},
		{
			name:   "all dimensions",
			params: KeyParams{Size: "M", Type: "Sport", MinPrice: price("10.5"), MaxPrice: price("99.99"), Page: 3, Limit: 25},
			want:   "list:size:M:type:Sport:minPrice:10.5:maxPrice:99.99:page:3:limit:25",
		},
		{
			name:   "max price only",
			params: KeyParams{MaxPrice: price("500"), Page: 2, Limit: 10},
			want:   "list:maxPrice:500:page:2:limit:10",
		},
		{
			name:   "trailing zeros collapse",
			params: KeyParams{MinPrice: price("1000.00"), Page: 1, Limit: 10},
			want:   "list:minPrice:1000:page:1:limit:10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ListKey(tt.params)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasPrefix(got, ListPrefix))
		})
	}
}

func TestListKey_AbsentEqualsNoFilter(t *testing.T) {
	a := ListKey(KeyParams{Page: 1, Limit: 10})
	b := ListKey(KeyParams{Size: "", Type: "", Page: 1, Limit: 10})
	assert.Equal(t, a, b)
}

// fakeBackend is an in-memory Backend with failure and latency injection.
type fakeBackend struct {
	mu    sync.Mutex
	data  map[string][]byte
	err   error
	delay time.Duration
}

func newFake() *fakeBackend {
	return &fakeBackend{data: make(map[string][]byte)}
}

func (f *fakeBackend) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (f *fakeBackend) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.data[key] = value
	return nil
}

func (f *fakeBackend) DeletePrefix(ctx context.Context, prefix string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			delete(f.data, k)
		}
	}
	return nil
}

func newCache(t *testing.T, b Backend, cfg Config) *Cache {
	t.Helper()
	c, err := New(b, cfg, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return c
}

func TestCache_GetSetInvalidate(t *testing.T) {
	ctx := context.Background()
	b := newFake()
	c := newCache(t, b, Config{})

	_, ok := c.Get(ctx, "list:page:1:limit:10")
	assert.False(t, ok)

	c.Set(ctx, "list:page:1:limit:10", []byte("page1"), c.Epoch())
	c.Set(ctx, "list:size:M:page:1:limit:10", []byte("sizeM"), c.Epoch())
	b.data["other:key"] = []byte("kept")

	got, ok := c.Get(ctx, "list:page:1:limit:10")
	require.True(t, ok)
	assert.Equal(t, []byte("page1"), got)

	c.InvalidateAll(ctx)

	_, ok = c.Get(ctx, "list:page:1:limit:10")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "list:size:M:page:1:limit:10")
	assert.False(t, ok)
	assert.Contains(t, b.data, "other:key")
}

func TestCache_SetAfterInvalidationIsDropped(t *testing.T) {
	ctx := context.Background()
	b := newFake()
	c := newCache(t, b, Config{})

	// A reader captures the epoch, a writer invalidates, then the reader
	// stores what it read before the write.
	stale := c.Epoch()
	c.InvalidateAll(ctx)
	c.Set(ctx, "list:page:1:limit:10", []byte("stale"), stale)
	assert.NotContains(t, b.data, "list:page:1:limit:10")

	c.Set(ctx, "list:page:1:limit:10", []byte("fresh"), c.Epoch())
	got, ok := c.Get(ctx, "list:page:1:limit:10")
	require.True(t, ok)
	assert.Equal(t, []byte("fresh"), got)
}

func TestCache_InvalidationWaitsForInFlightSet(t *testing.T) {
	ctx := context.Background()
	b := newFake()
	b.delay = 50 * time.Millisecond
	c := newCache(t, b, Config{Timeout: time.Second})

	epoch := c.Epoch()
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		c.Set(ctx, "list:page:1:limit:10", []byte("page"), epoch)
	}()
	<-started
	time.Sleep(10 * time.Millisecond)
	c.InvalidateAll(ctx)
	<-done

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.NotContains(t, b.data, "list:page:1:limit:10")
}

func TestCache_BackendErrorsAreAbsorbed(t *testing.T) {
	ctx := context.Background()
	b := newFake()
	b.err = errors.New("connection refused")
	c := newCache(t, b, Config{})

	_, ok := c.Get(ctx, "list:page:1:limit:10")
	assert.False(t, ok)

	assert.NotPanics(t, func() {
		c.Set(ctx, "list:page:1:limit:10", []byte("x"), c.Epoch())
		c.InvalidateAll(ctx)
	})
}

func TestCache_TimeoutFailsClosed(t *testing.T) {
	b := newFake()
	b.delay = time.Second
	c := newCache(t, b, Config{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, ok := c.Get(context.Background(), "list:page:1:limit:10")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestCache_Disabled(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, nil, Config{})

	c.Set(ctx, "list:page:1:limit:10", []byte("x"), c.Epoch())
	_, ok := c.Get(ctx, "list:page:1:limit:10")
	assert.False(t, ok)
	c.InvalidateAll(ctx)
}

func TestNew_Defaults(t *testing.T) {
	c := newCache(t, newFake(), Config{})
	assert.Equal(t, DefaultTTL, c.cfg.TTL)
	assert.Equal(t, DefaultTimeout, c.cfg.Timeout)
}
