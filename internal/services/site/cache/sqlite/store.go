// Package sqlite persists the content cache in a local SQLite file so a
// restart keeps warm entries.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/vitrine/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/vitrine/internal/services/site/cache"
	"github.com/louisbranch/vitrine/internal/services/site/cache/sqlite/migrations"
)

// Store is a SQLite-backed cache.Store.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens and migrates the cache database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get loads an entry and its tags.
func (s *Store) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	key = strings.TrimSpace(key)
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT cache_key, path, payload, stale, stored_at, expires_at
		 FROM cache_entries
		 WHERE cache_key = ?`,
		key,
	)
	var entry cache.Entry
	var staleInt, storedAt, expiresAt int64
	if err := row.Scan(&entry.Key, &entry.Path, &entry.Payload, &staleInt, &storedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("get cache entry: %w", err)
	}
	entry.Stale = staleInt != 0
	entry.StoredAt = unixMillisToTime(storedAt)
	entry.ExpiresAt = unixMillisToTime(expiresAt)

	tags, err := s.tags(ctx, key)
	if err != nil {
		return cache.Entry{}, false, err
	}
	entry.Tags = tags
	return entry, true, nil
}

// Put upserts an entry and replaces its tag set.
func (s *Store) Put(ctx context.Context, entry cache.Entry) error {
	entry, err := cache.Normalize(entry, s.now().UTC())
	if err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cache_entries (cache_key, path, payload, stale, stored_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		    path = excluded.path,
		    payload = excluded.payload,
		    stale = excluded.stale,
		    stored_at = excluded.stored_at,
		    expires_at = excluded.expires_at`,
		entry.Key,
		entry.Path,
		entry.Payload,
		boolToInt(entry.Stale),
		timeToUnixMillis(entry.StoredAt),
		timeToUnixMillis(entry.ExpiresAt),
	); err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entry_tags WHERE cache_key = ?`, entry.Key); err != nil {
		return fmt.Errorf("clear cache tags: %w", err)
	}
	for _, tag := range entry.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cache_entry_tags (cache_key, tag) VALUES (?, ?)`,
			entry.Key, tag,
		); err != nil {
			return fmt.Errorf("put cache tag: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put: %w", err)
	}
	return nil
}

// Delete removes an entry and its tags.
func (s *Store) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("cache key is required")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entry_tags WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("delete cache tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return tx.Commit()
}

// InvalidateTag marks every entry carrying tag stale.
func (s *Store) InvalidateTag(ctx context.Context, tag string) (int, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return 0, fmt.Errorf("cache tag is required")
	}
	return s.markStale(ctx,
		`UPDATE cache_entries SET stale = 1
		 WHERE cache_key IN (SELECT cache_key FROM cache_entry_tags WHERE tag = ?)`,
		tag,
	)
}

// InvalidatePath marks every entry for path stale.
func (s *Store) InvalidatePath(ctx context.Context, path string) (int, error) {
	path = cache.NormalizePath(path)
	if path == "" {
		return 0, fmt.Errorf("cache path is required")
	}
	return s.markStale(ctx, `UPDATE cache_entries SET stale = 1 WHERE path = ?`, path)
}

// PurgeStale deletes stale entries and entries expired before the cutoff.
func (s *Store) PurgeStale(ctx context.Context, before time.Time) (int, error) {
	cutoff := timeToUnixMillis(before)
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	const purgeable = `stale = 1 OR (expires_at > 0 AND expires_at < ?)`
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cache_entry_tags
		 WHERE cache_key IN (SELECT cache_key FROM cache_entries WHERE `+purgeable+`)`,
		cutoff,
	); err != nil {
		return 0, fmt.Errorf("purge cache tags: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE `+purgeable, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge cache entries: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return int(removed), nil
}

func (s *Store) markStale(ctx context.Context, query string, arg string) (int, error) {
	result, err := s.sqlDB.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, fmt.Errorf("mark cache stale: %w", err)
	}
	matched, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark cache stale rows affected: %w", err)
	}
	return int(matched), nil
}

func (s *Store) tags(ctx context.Context, key string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT tag FROM cache_entry_tags WHERE cache_key = ? ORDER BY rowid`,
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("list cache tags: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	tags := make([]string, 0)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan cache tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache tags: %w", err)
	}
	return tags, nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

func timeToUnixMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func unixMillisToTime(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

var _ cache.Store = (*Store)(nil)
