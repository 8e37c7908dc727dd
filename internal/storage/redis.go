package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mla-quiz/medref/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps buckets in Redis.
//
// Layout per bucket:
//
//	bucket:<name>:entry:<key>  JSON models.CachedResponse, expiring after the bucket TTL
//	bucket:<name>:order        sorted set of keys scored by insertion sequence
//	bucket:<name>:seq          insertion counter
//
// The set "buckets" holds every open bucket name.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

const redisBucketSet = "buckets"

func (s *RedisStore) Open(ctx context.Context, name string, limits Limits) (Bucket, error) {
	if err := s.rdb.SAdd(ctx, redisBucketSet, name).Err(); err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", name, err)
	}
	return &redisBucket{rdb: s.rdb, name: name, limits: limits}, nil
}

func (s *RedisStore) Names(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, redisBucketSet).Result()
}

func (s *RedisStore) Drop(ctx context.Context, name string) error {
	pattern := fmt.Sprintf("bucket:%s:*", name)

	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan bucket %s: %w", name, err)
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to drop bucket %s: %w", name, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return s.rdb.SRem(ctx, redisBucketSet, name).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

type redisBucket struct {
	rdb    *redis.Client
	name   string
	limits Limits
}

func (b *redisBucket) Name() string { return b.name }

func (b *redisBucket) entryKey(key string) string {
	return fmt.Sprintf("bucket:%s:entry:%s", b.name, key)
}

func (b *redisBucket) orderKey() string { return fmt.Sprintf("bucket:%s:order", b.name) }

func (b *redisBucket) seqKey() string { return fmt.Sprintf("bucket:%s:seq", b.name) }

func (b *redisBucket) Match(ctx context.Context, key string) (*models.CachedResponse, error) {
	raw, err := b.rdb.Get(ctx, b.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired by TTL; keep the order set in step
		b.rdb.ZRem(ctx, b.orderKey(), key)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}

	var resp models.CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	return &resp, nil
}

func (b *redisBucket) Put(ctx context.Context, key string, resp *models.CachedResponse) error {
	if resp.StoredAt.IsZero() {
		resp.StoredAt = time.Now()
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	seq, err := b.rdb.Incr(ctx, b.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate sequence: %w", err)
	}

	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, b.entryKey(key), data, b.limits.TTL)
	pipe.ZAdd(ctx, b.orderKey(), redis.Z{Score: float64(seq), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}

	if b.limits.MaxEntries > 0 {
		return b.evict(ctx)
	}
	return nil
}

func (b *redisBucket) evict(ctx context.Context) error {
	size, err := b.rdb.ZCard(ctx, b.orderKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to size bucket: %w", err)
	}
	excess := size - int64(b.limits.MaxEntries)
	if excess <= 0 {
		return nil
	}

	oldest, err := b.rdb.ZPopMin(ctx, b.orderKey(), excess).Result()
	if err != nil {
		return fmt.Errorf("failed to evict entries: %w", err)
	}
	keys := make([]string, 0, len(oldest))
	for _, z := range oldest {
		keys = append(keys, b.entryKey(z.Member.(string)))
	}
	return b.rdb.Del(ctx, keys...).Err()
}

func (b *redisBucket) Delete(ctx context.Context, key string) (bool, error) {
	n, err := b.rdb.Del(ctx, b.entryKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete entry: %w", err)
	}
	b.rdb.ZRem(ctx, b.orderKey(), key)
	return n > 0, nil
}

func (b *redisBucket) Keys(ctx context.Context) ([]string, error) {
	members, err := b.rdb.ZRange(ctx, b.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	keys := make([]string, 0, len(members))
	for _, key := range members {
		exists, err := b.rdb.Exists(ctx, b.entryKey(key)).Result()
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			b.rdb.ZRem(ctx, b.orderKey(), key)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (b *redisBucket) Count(ctx context.Context) (int, error) {
	keys, err := b.Keys(ctx)
	return len(keys), err
}
