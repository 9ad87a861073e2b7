// Package lock defines the distributed mutual-exclusion abstraction used by
// the coordinator. The interface is deliberately small so the backing
// primitive can change (atomic KV add today, a dedicated lock service later)
// without touching callers.
package lock

import (
	"context"
	"time"

	"github.com/tbourn/go-astro-bot/internal/cache"
)

// Lock is a distributed mutex with at-most-one-winner semantics per key
// within a TTL window.
type Lock interface {
	// Acquire attempts to take key for ttl. It returns true iff this caller
	// won; losing is an expected steady-state outcome, not an error.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops key so it can be won again. Releasing an unheld key is a
	// no-op.
	Release(ctx context.Context, keys ...string) error

	// Extend pushes the expiry of a held key further out by ttl.
	Extend(ctx context.Context, key string, ttl time.Duration) error
}

// CacheLock implements Lock on top of the shared cache store's atomic
// add-if-absent primitive.
type CacheLock struct {
	Store *cache.Store
}

// NewCacheLock returns a Lock backed by store.
func NewCacheLock(store *cache.Store) *CacheLock {
	return &CacheLock{Store: store}
}

// Acquire wins key iff the underlying add-if-absent set it.
func (l *CacheLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.Store.Add(ctx, key, "1", ttl)
}

// Release deletes the keys; delete-if-exists keeps concurrent releases safe.
func (l *CacheLock) Release(ctx context.Context, keys ...string) error {
	return l.Store.Delete(ctx, keys...)
}

// Extend refreshes the expiry via an unconditional upsert. Only the holder
// should call this; the interface does not fence against misuse.
func (l *CacheLock) Extend(ctx context.Context, key string, ttl time.Duration) error {
	return l.Store.Set(ctx, key, "1", ttl)
}
