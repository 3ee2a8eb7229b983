// Package memstore is the in-process response store.
package memstore

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/dogquery/internal/cache"
	"github.com/mohammed-shakir/dogquery/internal/core/observability"
)

const driver = "memory"

type entry struct {
	val []byte
	exp time.Time // zero means the LRU ttl alone applies
}

type Store struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

var (
	_ cache.Store         = (*Store)(nil)
	_ cache.PrefixDeleter = (*Store)(nil)
)

// New holds at most size entries; maxTTL bounds every entry's lifetime
// (zero keeps entries until evicted by size).
func New(size int, maxTTL time.Duration) *Store {
	if size <= 0 {
		size = 1024
	}
	return &Store{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		observability.ObserveCacheOp("get", driver, err, time.Since(start).Seconds())
		return nil, false, err
	}
	e, ok := s.lru.Get(key)
	if ok && !e.exp.IsZero() && !s.now().Before(e.exp) {
		s.lru.Remove(key)
		ok = false
	}
	observability.ObserveCacheOp("get", driver, nil, time.Since(start).Seconds())
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, true, nil
}

func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		observability.ObserveCacheOp("set", driver, err, time.Since(start).Seconds())
		return err
	}
	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = s.now().Add(ttl)
	}
	s.lru.Add(key, e)
	observability.ObserveCacheOp("set", driver, nil, time.Since(start).Seconds())
	return nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		observability.ObserveCacheOp("del", driver, err, time.Since(start).Seconds())
		return err
	}
	for _, k := range keys {
		s.lru.Remove(k)
	}
	observability.ObserveCacheOp("del", driver, nil, time.Since(start).Seconds())
	return nil
}

// DelPrefix removes every key starting with prefix.
func (s *Store) DelPrefix(ctx context.Context, prefix string) (int, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		observability.ObserveCacheOp("del_prefix", driver, err, time.Since(start).Seconds())
		return 0, err
	}
	removed := 0
	for _, k := range s.lru.Keys() {
		if strings.HasPrefix(k, prefix) && s.lru.Remove(k) {
			removed++
		}
	}
	observability.ObserveCacheOp("del_prefix", driver, nil, time.Since(start).Seconds())
	return removed, nil
}

func (s *Store) Len() int { return s.lru.Len() }

func (s *Store) Close() error {
	s.lru.Purge()
	return nil
}
