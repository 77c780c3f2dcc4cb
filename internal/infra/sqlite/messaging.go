package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// ─── Messaging Schema ───────────────────────────────────────────────────────

// MessagingMigrations returns the notification and newsletter tables.
func MessagingMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			kind       TEXT NOT NULL,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			shown      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications(user_id, shown, created_at)`,

		`CREATE TABLE IF NOT EXISTS newsletter_subscriptions (
			email           TEXT PRIMARY KEY,
			token           TEXT NOT NULL UNIQUE,
			created_at      TEXT NOT NULL,
			unsubscribed_at TEXT
		)`,
	}
}

// ─── Notification Operations ────────────────────────────────────────────────

// InsertNotification queues a notification and returns its ID.
func (db *DB) InsertNotification(ctx context.Context, n domain.Notification) (int64, error) {
	res, err := db.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, kind, title, body, created_at, shown)
		VALUES (?, ?, ?, ?, ?, 0)
	`, n.UserID, string(n.Kind), n.Title, n.Body, formatTime(n.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	return res.LastInsertId()
}

// PendingNotifications returns unshown notifications, oldest first.
func (db *DB) PendingNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, user_id, kind, title, body, created_at, shown
		FROM notifications
		WHERE user_id = ? AND shown = 0
		ORDER BY created_at, id
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var kind string
		var created sql.NullString
		var shown int
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Body, &created, &shown); err != nil {
			return nil, err
		}
		n.Kind = domain.NotificationKind(kind)
		n.CreatedAt = parseTime(created)
		n.Shown = shown == 1
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationShown flags one of the user's notifications as shown.
func (db *DB) MarkNotificationShown(ctx context.Context, userID string, id int64) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE notifications SET shown = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountNotificationsSince counts notifications created at or after since.
func (db *DB) CountNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND created_at >= ?`,
		userID, formatTime(since)).Scan(&n)
	return n, err
}

// ─── Newsletter Operations ──────────────────────────────────────────────────

// Subscribe creates the subscription or reactivates a cancelled one. An
// already active subscription keeps its token.
func (db *DB) Subscribe(ctx context.Context, email, token string, at time.Time) (string, error) {
	var stored string
	err := db.db.QueryRowContext(ctx, `
		INSERT INTO newsletter_subscriptions (email, token, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			token = CASE WHEN unsubscribed_at IS NULL THEN token ELSE excluded.token END,
			unsubscribed_at = NULL
		RETURNING token
	`, email, token, formatTime(at)).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("subscribe: %w", err)
	}
	return stored, nil
}

// Unsubscribe cancels the subscription owning token.
func (db *DB) Unsubscribe(ctx context.Context, token string, at time.Time) (bool, error) {
	res, err := db.db.ExecContext(ctx, `
		UPDATE newsletter_subscriptions SET unsubscribed_at = ?
		WHERE token = ? AND unsubscribed_at IS NULL
	`, formatTime(at), token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ActiveSubscribers counts subscriptions that were not cancelled.
func (db *DB) ActiveSubscribers(ctx context.Context) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM newsletter_subscriptions WHERE unsubscribed_at IS NULL`).Scan(&n)
	return n, err
}
