// Package cache defines the response store behind the query client.
package cache

import (
	"context"
	"time"
)

// Store keeps whole query responses keyed by keys.Key. A miss is reported
// with ok=false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Close() error
}

// Pinger is implemented by stores backed by a remote server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PrefixDeleter removes every key sharing a prefix, for operation-wide
// eviction.
type PrefixDeleter interface {
	DelPrefix(ctx context.Context, prefix string) (int, error)
}
