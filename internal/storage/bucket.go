package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mla-quiz/medref/internal/models"
)

var (
	// ErrNotFound is returned when a bucket holds no live entry for a key
	ErrNotFound = errors.New("entry not found")
	// ErrUnavailable is returned by stores that cannot persist anything
	ErrUnavailable = errors.New("cache storage unavailable")
)

// Limits bounds a bucket. Zero values mean unbounded.
type Limits struct {
	MaxEntries int
	TTL        time.Duration
}

// Bucket is a named durable key to response store
type Bucket interface {
	Name() string
	// Match returns the live entry for key or ErrNotFound.
	Match(ctx context.Context, key string) (*models.CachedResponse, error)
	// Put inserts or overwrites key; an overwrite counts as the newest insertion.
	Put(ctx context.Context, key string, resp *models.CachedResponse) error
	// Delete reports whether an entry was removed.
	Delete(ctx context.Context, key string) (bool, error)
	// Keys lists live keys oldest first.
	Keys(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// Store opens buckets and manages the set of bucket names
type Store interface {
	Open(ctx context.Context, name string, limits Limits) (Bucket, error)
	Names(ctx context.Context) ([]string, error)
	Drop(ctx context.Context, name string) error
	Close() error
}

func expired(storedAt time.Time, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(storedAt) > ttl
}
