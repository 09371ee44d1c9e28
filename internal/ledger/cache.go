package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CacheGet returns the cached payload for key when it has not expired.
func (s *Store) CacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	ctx = ensureContext(ctx)
	var (
		payload   []byte
		expiresAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, expires_at FROM response_cache WHERE cache_key = ?", key,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache %s: %w", key, err)
	}
	expiry, err := parseTimeString(expiresAt)
	if err != nil || !s.now().Before(expiry) {
		return nil, false, nil
	}
	return payload, true, nil
}

// CachePut stores payload under key for ttl. A non-positive ttl is ignored.
func (s *Store) CachePut(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := s.now()
	_, err := s.execWithRetry(ctx,
		`INSERT INTO response_cache (cache_key, payload, stored_at, expires_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(cache_key) DO UPDATE SET
            payload = excluded.payload,
            stored_at = excluded.stored_at,
            expires_at = excluded.expires_at`,
		key, payload, formatTime(now), formatTime(now.Add(ttl)))
	if err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	return nil
}

// CacheClear deletes cached entries whose key starts with prefix, or every
// entry when prefix is empty. It returns the number of entries removed.
func (s *Store) CacheClear(ctx context.Context, prefix string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		res, err = s.execWithRetry(ctx, "DELETE FROM response_cache")
	} else {
		res, err = s.execWithRetry(ctx,
			"DELETE FROM response_cache WHERE substr(cache_key, 1, ?) = ?", len(prefix), prefix)
	}
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return res.RowsAffected()
}

// CacheStats summarizes the response cache.
func (s *Store) CacheStats(ctx context.Context) (CacheStats, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT length(payload), stored_at, expires_at FROM response_cache")
	if err != nil {
		return CacheStats{}, fmt.Errorf("query cache stats: %w", err)
	}
	defer rows.Close()

	now := s.now()
	var stats CacheStats
	for rows.Next() {
		var (
			size              int64
			stored, expiresAt string
		)
		if err := rows.Scan(&size, &stored, &expiresAt); err != nil {
			return CacheStats{}, fmt.Errorf("scan cache stats: %w", err)
		}
		stats.Entries++
		stats.Bytes += size
		if expiry, err := parseTimeString(expiresAt); err != nil || !now.Before(expiry) {
			stats.Expired++
		}
		if storedAt, err := parseTimeString(stored); err == nil {
			if stats.OldestAt == nil || storedAt.Before(*stats.OldestAt) {
				stats.OldestAt = &storedAt
			}
		}
	}
	return stats, rows.Err()
}
