// Package gamification owns the XP, level, streak, achievement, weekly
// challenge, notification and leaderboard rules.
//
// Every state change goes through the store as a single atomic statement or
// transaction; this package sequences the follow-ups (bonus XP, achievement
// unlocks, challenge progress, notifications, leaderboard cache, live events).
// Reward chains terminate because achievements and challenges complete once.
package gamification

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// Config controls gamification behavior.
type Config struct {
	Location             *time.Location // calendar used for streak days and weeks
	StreakProtectionDays int            // missed days premium users may skip
	StreakRetries        int            // compare-and-swap attempts per streak update
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Location:             time.UTC,
		StreakProtectionDays: 3,
		StreakRetries:        5,
	}
}

// BoardCache mirrors leaderboards outside the database.
// The cache package's Redis leaderboard implements it.
type BoardCache interface {
	// SetXP writes absolute board totals; stale lower totals are ignored.
	SetXP(ctx context.Context, userID string, weekly, lifetime int64) error
	SetStreak(ctx context.Context, userID string, longest int) error
	ResetWeekly(ctx context.Context) error
	Seed(ctx context.Context, board domain.Board, entries []domain.LeaderboardEntry) error
	Top(ctx context.Context, board domain.Board, limit int) ([]domain.LeaderboardEntry, error)
	Rank(ctx context.Context, board domain.Board, userID string) (int64, error)
}

// Event is a live update pushed to a user's open event streams.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

// Event types.
const (
	EventXP          = "xp"
	EventLevelUp     = "level_up"
	EventStreak      = "streak"
	EventAchievement = "achievement"
	EventChallenge   = "challenge_completed"
)

// Publisher delivers events to connected clients.
type Publisher interface {
	Publish(userID string, ev Event)
}

// Service implements the gamification rules on top of a domain.Store.
type Service struct {
	cfg    Config
	store  domain.Store
	cache  BoardCache
	events Publisher
	now    func() time.Time
}

// New creates a gamification service.
func New(cfg Config, store domain.Store) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.StreakRetries <= 0 {
		cfg.StreakRetries = DefaultConfig().StreakRetries
	}
	return &Service{cfg: cfg, store: store, now: time.Now}
}

// SetCache mirrors leaderboards into c.
func (s *Service) SetCache(c BoardCache) { s.cache = c }

// SetPublisher streams events to p.
func (s *Service) SetPublisher(p Publisher) { s.events = p }

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Location returns the calendar location.
func (s *Service) Location() *time.Location { return s.cfg.Location }

// Now returns the current time in the service location.
func (s *Service) Now() time.Time { return s.now().In(s.cfg.Location) }

// Today returns midnight of the current calendar day.
func (s *Service) Today() time.Time { return domain.Date(s.Now()) }

func (s *Service) publish(userID, typ string, data any) {
	if s.events == nil {
		return
	}
	s.events.Publish(userID, Event{Type: typ, Data: data, At: s.now()})
}

func validUser(userID string) error {
	if userID == "" {
		return domain.ErrUnauthenticated
	}
	return nil
}

// ─── Summary ────────────────────────────────────────────────────────────────

// Summary is everything the dashboard shows in one read.
type Summary struct {
	Profile       domain.UserGamification `json:"profile"`
	Level         LevelStatus             `json:"level"`
	Challenge     *ChallengeStatus        `json:"challenge,omitempty"`
	WeeklyRank    int64                   `json:"weekly_rank"`
	Notifications []domain.Notification   `json:"notifications"`
}

// Summary assembles the user's dashboard.
func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	var out Summary
	if err := validUser(userID); err != nil {
		return out, err
	}
	u, err := s.store.Profile(ctx, userID)
	if err != nil {
		return out, err
	}
	out.Profile = u
	out.Level = levelStatus(u.XP)

	cs, err := s.ChallengeStatus(ctx, userID)
	switch {
	case err == nil:
		out.Challenge = &cs
		out.Profile.WeeklyChallenge = &cs.Progress
	case !errors.Is(err, domain.ErrNoActiveChallenge):
		return out, err
	}

	out.WeeklyRank, err = s.Rank(ctx, domain.BoardWeeklyXP, userID)
	if err != nil {
		log.Printf("[gamification] summary rank for %s: %v", userID, err)
	}
	out.Notifications, err = s.PendingNotifications(ctx, userID, 10)
	if err != nil {
		return out, err
	}
	return out, nil
}
