package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Watchlist returns the local watchlist ordered by insertion time.
func (s *Store) Watchlist(ctx context.Context) ([]WatchEntry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT owner, repo, slug, added_at FROM watchlist ORDER BY added_at, slug")
	if err != nil {
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer rows.Close()

	var entries []WatchEntry
	for rows.Next() {
		var (
			entry   WatchEntry
			addedAt string
		)
		if err := rows.Scan(&entry.Owner, &entry.Repo, &entry.Slug, &addedAt); err != nil {
			return nil, fmt.Errorf("scan watchlist row: %w", err)
		}
		entry.AddedAt = mustParseTime(addedAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// AddWatch records owner/repo on the local watchlist. Adding an existing
// entry is a no-op and reports false.
func (s *Store) AddWatch(ctx context.Context, owner, repo string) (bool, error) {
	owner = strings.TrimSpace(owner)
	repo = strings.TrimSpace(repo)
	if owner == "" || repo == "" {
		return false, errors.New("add watch: owner and repo are required")
	}
	res, err := s.execWithRetry(ctx,
		"INSERT OR IGNORE INTO watchlist (slug, owner, repo, added_at) VALUES (?, ?, ?, ?)",
		owner+"-"+repo, owner, repo, s.timestamp())
	if err != nil {
		return false, fmt.Errorf("add watch %s/%s: %w", owner, repo, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// RemoveWatch deletes owner/repo from the local watchlist. Removing a
// missing entry is a no-op and reports false.
func (s *Store) RemoveWatch(ctx context.Context, owner, repo string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		"DELETE FROM watchlist WHERE owner = ? AND repo = ?",
		strings.TrimSpace(owner), strings.TrimSpace(repo))
	if err != nil {
		return false, fmt.Errorf("remove watch %s/%s: %w", owner, repo, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// FindWatchBySlug resolves a hyphenated slug to its entry.
func (s *Store) FindWatchBySlug(ctx context.Context, slug string) (*WatchEntry, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT owner, repo, slug, added_at FROM watchlist WHERE slug = ?", strings.TrimSpace(slug))
	var (
		entry   WatchEntry
		addedAt string
	)
	if err := row.Scan(&entry.Owner, &entry.Repo, &entry.Slug, &addedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find watch %s: %w", slug, err)
	}
	entry.AddedAt = mustParseTime(addedAt)
	return &entry, nil
}
