package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mla-quiz/medref/internal/models"
)

// SQLiteStore keeps every bucket in one SQLite table keyed by (bucket, key)
type SQLiteStore struct {
	db  *DB
	now func() time.Time
}

// NewSQLiteStore creates a bucket store on an already migrated database
func NewSQLiteStore(db *DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Open registers the bucket name and returns a handle to it
func (s *SQLiteStore) Open(ctx context.Context, name string, limits Limits) (Bucket, error) {
	_, err := s.db.Conn.ExecContext(ctx,
		"INSERT INTO buckets (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		name, s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", name, err)
	}
	return &sqliteBucket{store: s, name: name, limits: limits}, nil
}

// Names lists every bucket ever opened and not dropped
func (s *SQLiteStore) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.Conn.QueryContext(ctx, "SELECT name FROM buckets ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Drop deletes a bucket and all of its entries
func (s *SQLiteStore) Drop(ctx context.Context, name string) error {
	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cache_entries WHERE bucket = ?", name); err != nil {
		return fmt.Errorf("failed to drop bucket entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM buckets WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to drop bucket: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteBucket struct {
	store  *SQLiteStore
	name   string
	limits Limits
}

func (b *sqliteBucket) Name() string { return b.name }

func (b *sqliteBucket) conn() *sql.DB { return b.store.db.Conn }

// cutoff is the oldest stored_at still considered live
func (b *sqliteBucket) cutoff() int64 {
	if b.limits.TTL <= 0 {
		return 0
	}
	return b.store.now().Add(-b.limits.TTL).UnixNano()
}

func (b *sqliteBucket) Match(ctx context.Context, key string) (*models.CachedResponse, error) {
	var (
		status   int
		header   string
		body     []byte
		storedAt int64
	)
	err := b.conn().QueryRowContext(ctx,
		"SELECT status, header, body, stored_at FROM cache_entries WHERE bucket = ? AND key = ?",
		b.name, key).Scan(&status, &header, &body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}

	stored := time.Unix(0, storedAt)
	if expired(stored, b.limits.TTL, b.store.now()) {
		if _, err := b.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	resp := &models.CachedResponse{Status: status, Body: body, StoredAt: stored}
	if err := json.Unmarshal([]byte(header), &resp.Header); err != nil {
		resp.Header = http.Header{}
	}
	return resp, nil
}

func (b *sqliteBucket) Put(ctx context.Context, key string, resp *models.CachedResponse) error {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = b.store.now()
	}

	tx, err := b.conn().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cache_entries (bucket, key, seq, status, header, body, stored_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM cache_entries), ?, ?, ?, ?)
		 ON CONFLICT(bucket, key) DO UPDATE SET
		   seq = excluded.seq,
		   status = excluded.status,
		   header = excluded.header,
		   body = excluded.body,
		   stored_at = excluded.stored_at`,
		b.name, key, resp.Status, string(header), resp.Body, storedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}

	if b.limits.MaxEntries > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE bucket = ? AND key NOT IN (
			   SELECT key FROM cache_entries WHERE bucket = ? ORDER BY seq DESC LIMIT ?)`,
			b.name, b.name, b.limits.MaxEntries)
		if err != nil {
			return fmt.Errorf("failed to evict entries: %w", err)
		}
	}

	return tx.Commit()
}

func (b *sqliteBucket) Delete(ctx context.Context, key string) (bool, error) {
	res, err := b.conn().ExecContext(ctx,
		"DELETE FROM cache_entries WHERE bucket = ? AND key = ?", b.name, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (b *sqliteBucket) Keys(ctx context.Context) ([]string, error) {
	rows, err := b.conn().QueryContext(ctx,
		"SELECT key FROM cache_entries WHERE bucket = ? AND stored_at >= ? ORDER BY seq",
		b.name, b.cutoff())
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (b *sqliteBucket) Count(ctx context.Context) (int, error) {
	var count int
	err := b.conn().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cache_entries WHERE bucket = ? AND stored_at >= ?",
		b.name, b.cutoff()).Scan(&count)
	return count, err
}
