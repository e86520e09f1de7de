// Package redisstore provides a storage.Backend on Redis, for hosts where several processes
// share one set of credentials.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-stitch-auth/storage"
	"github.com/redis/go-redis/v9"
)

var _ storage.Backend = (*Backend)(nil)

// Backend stores each key as a plain Redis string.
type Backend struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix prepends prefix to every Redis key.
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		b.prefix = prefix
	}
}

// WithTTL expires keys after ttl. Zero keeps keys forever.
func WithTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.ttl = ttl
	}
}

func New(rdb redis.UniversalClient, options ...Option) *Backend {
	b := &Backend{rdb: rdb}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// NewFromAddr connects to a single Redis node and verifies the connection.
func NewFromAddr(ctx context.Context, addr string, options ...Option) (*Backend, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(rdb, options...), nil
}

func (b *Backend) key(key string) string {
	return b.prefix + key
}

func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := b.rdb.Get(ctx, b.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	return b.rdb.Set(ctx, b.key(key), value, b.ttl).Err()
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	return b.rdb.Del(ctx, b.key(key)).Err()
}

// Close closes the underlying Redis client.
func (b *Backend) Close() error {
	return b.rdb.Close()
}
