// Package cache implements the shared key-value coordination store every
// worker process relies on. It is the sole cross-worker coordination medium:
// distributed gate flags, the config-changed stamp, and startup idempotency
// markers all live here.
//
// The store rides the same database all workers already share. Atomicity of
// Add comes from the primary-key constraint on the key column — the first
// INSERT wins and everyone else observes a unique violation. A read-then-write
// check would race between workers and is deliberately absent from this API.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-astro-bot/internal/domain"
)

// Store is a TTL-bounded key-value store with an atomic add-if-absent
// primitive. Safe for concurrent use across goroutines and processes.
type Store struct {
	// DB is the GORM handle shared with the rest of the application.
	DB *gorm.DB

	// Now is a clock seam for tests; defaults to time.Now.
	Now func() time.Time
}

// New returns a Store bound to db with the real clock.
func New(db *gorm.DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// isUniqueViolation reports whether err is a primary-key/unique-index
// violation. glebarez/sqlite often returns plain-text errors for these.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// Add atomically sets key if absent (or expired), with expiry ttl. It returns
// true iff this call set it — i.e. this process won the key. Exactly one of N
// concurrent callers for the same live key observes true.
func (s *Store) Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := s.now()
	rec := &domain.CacheEntry{Key: key, Value: value, ExpiresAt: now.Add(ttl)}

	err := s.DB.WithContext(ctx).Create(rec).Error
	if err == nil {
		return true, nil
	}
	if !isUniqueViolation(err) {
		return false, err
	}

	// The key exists. It may still be claimable if its TTL has lapsed: a
	// conditional UPDATE keyed on expires_at is atomic, so only one of the
	// contenders flips the expired row.
	res := s.DB.WithContext(ctx).Model(&domain.CacheEntry{}).
		Where("key = ? AND expires_at <= ?", key, now).
		Updates(map[string]any{"value": value, "expires_at": now.Add(ttl)})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Get returns the live value for key. The second result is false when the key
// is absent or expired.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var rec domain.CacheEntry
	err := s.DB.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, s.now()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.Value, true, nil
}

// Set unconditionally upserts key with expiry ttl.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	rec := &domain.CacheEntry{Key: key, Value: value, ExpiresAt: s.now().Add(ttl)}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
		}).
		Create(rec).Error
}

// Delete removes the given keys. Missing keys are not an error — flag
// clearing during reload must stay idempotent across racing workers.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).
		Where("key IN ?", keys).
		Delete(&domain.CacheEntry{}).Error
}
