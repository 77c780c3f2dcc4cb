package gamification

import (
	"context"
	"log"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// ─── Notifications ──────────────────────────────────────────────────────────

// notify queues an in-app notification. Failures are logged: the reward that
// triggered it is already committed.
func (s *Service) notify(ctx context.Context, userID string, kind domain.NotificationKind, title, body string) {
	n := domain.Notification{UserID: userID, Kind: kind, Title: title, Body: body, CreatedAt: s.now()}
	id, err := s.store.InsertNotification(ctx, n)
	if err != nil {
		log.Printf("[gamification] notify %s (%s): %v", userID, kind, err)
		return
	}
	n.ID = id
	s.publish(userID, "notification", n)
}

// PendingNotifications returns up to limit unshown notifications, oldest first.
func (s *Service) PendingNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	out, err := s.store.PendingNotifications(ctx, userID, limit)
	if out == nil {
		out = []domain.Notification{}
	}
	return out, err
}

// MarkNotificationShown flags a notification as seen.
func (s *Service) MarkNotificationShown(ctx context.Context, userID string, id int64) error {
	if err := validUser(userID); err != nil {
		return err
	}
	return s.store.MarkNotificationShown(ctx, userID, id)
}
