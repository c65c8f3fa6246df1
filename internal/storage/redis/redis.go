// Package redis implements the listing cache backend on Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/apparel-catalog/internal/cache"
)

var _ cache.Backend = (*Backend)(nil)

// scanBatch is the COUNT hint used while walking keys for invalidation.
const scanBatch = 500

// Options configures the client. Timeouts are kept short: the cache must
// never stall a request.
type Options struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// NewClient creates a client and pings it once.
func NewClient(ctx context.Context, opts Options) (*goredis.Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 2 * time.Second
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = 2 * time.Second
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.IOTimeout,
		WriteTimeout: opts.IOTimeout,
		MaxRetries:   1,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", opts.Addr)
	}
	return client, nil
}

// Backend implements cache.Backend with GET, SET EX and SCAN+UNLINK.
type Backend struct {
	client goredis.UniversalClient
}

// NewBackend wraps a client.
func NewBackend(client goredis.UniversalClient) *Backend {
	return &Backend{client: client}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, cache.ErrMiss
		}
		return nil, errors.Wrapf(err, "get %s", key)
	}
	return v, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix. Keys written while
// the scan runs may survive; they expire with their TTL.
func (b *Backend) DeletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return errors.Wrapf(err, "scan %s*", prefix)
		}
		if len(keys) > 0 {
			if err := b.client.Unlink(ctx, keys...).Err(); err != nil {
				return errors.Wrap(err, "unlink keys")
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
