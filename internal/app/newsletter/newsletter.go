// Package newsletter manages newsletter opt-ins. Delivery is handled by an
// external mailer that reads the subscription table.
package newsletter

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// Service manages subscriptions.
type Service struct {
	store domain.NewsletterStore
	now   func() time.Time
}

// New creates a newsletter service.
func New(store domain.NewsletterStore) *Service {
	return &Service{store: store, now: time.Now}
}

// NormalizeEmail lowercases and validates an address.
func NormalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("email %q: %w", email, domain.ErrInvalidInput)
	}
	return strings.ToLower(addr.Address), nil
}

// Subscribe opts email in and returns its unsubscribe token. An address that
// is already active stays subscribed and yields an empty token; its token is
// never handed out again.
func (s *Service) Subscribe(ctx context.Context, email string) (string, error) {
	addr, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	fresh := uuid.NewString()
	stored, err := s.store.Subscribe(ctx, addr, fresh, s.now().UTC())
	if err != nil {
		return "", err
	}
	if stored != fresh {
		log.Printf("[newsletter] subscribe request for an active address")
		return "", nil
	}
	log.Printf("[newsletter] new subscription")
	return fresh, nil
}

// Unsubscribe cancels the subscription owning token.
func (s *Service) Unsubscribe(ctx context.Context, token string) error {
	if _, err := uuid.Parse(token); err != nil {
		return fmt.Errorf("token: %w", domain.ErrInvalidInput)
	}
	ok, err := s.store.Unsubscribe(ctx, token, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

// ActiveSubscribers counts current subscribers.
func (s *Service) ActiveSubscribers(ctx context.Context) (int, error) {
	return s.store.ActiveSubscribers(ctx)
}
