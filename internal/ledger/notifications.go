package ledger

import (
	"context"
	"fmt"
	"strings"
)

// MarkNotified records key as sent. It reports true the first time a key is
// seen and false for repeats, so callers can dedupe notifications.
func (s *Store) MarkNotified(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("mark notified: key is required")
	}
	res, err := s.execWithRetry(ctx,
		"INSERT OR IGNORE INTO notifications_sent (dedup_key, sent_at) VALUES (?, ?)", key, s.timestamp())
	if err != nil {
		return false, fmt.Errorf("mark notified %s: %w", key, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ForgetNotified removes key so the notification can be sent again.
func (s *Store) ForgetNotified(ctx context.Context, key string) error {
	if _, err := s.execWithRetry(ctx, "DELETE FROM notifications_sent WHERE dedup_key = ?", key); err != nil {
		return fmt.Errorf("forget notified %s: %w", key, err)
	}
	return nil
}
