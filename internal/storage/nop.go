package storage

import (
	"context"

	"github.com/mla-quiz/medref/internal/models"
)

// NopStore stands in when no cache storage could be opened.
// Reads always miss and writes fail with ErrUnavailable, so callers degrade to network-only.
type NopStore struct{}

func (NopStore) Open(_ context.Context, name string, _ Limits) (Bucket, error) {
	return nopBucket(name), nil
}

func (NopStore) Names(context.Context) ([]string, error) { return nil, nil }

func (NopStore) Drop(context.Context, string) error { return nil }

func (NopStore) Close() error { return nil }

type nopBucket string

func (b nopBucket) Name() string { return string(b) }

func (nopBucket) Match(context.Context, string) (*models.CachedResponse, error) {
	return nil, ErrNotFound
}

func (nopBucket) Put(context.Context, string, *models.CachedResponse) error {
	return ErrUnavailable
}

func (nopBucket) Delete(context.Context, string) (bool, error) { return false, nil }

func (nopBucket) Keys(context.Context) ([]string, error) { return nil, nil }

func (nopBucket) Count(context.Context) (int, error) { return 0, nil }
