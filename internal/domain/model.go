// Package domain contains pure business types with ZERO infrastructure imports.
// It is the innermost ring and depends on nothing else in the module.
package domain

import "time"

// ─── Gamification Profile ───────────────────────────────────────────────────

// UserGamification is the per-user gamification record.
// Level is always LevelFor(XP); XP never decreases.
type UserGamification struct {
	UserID           string                `json:"user_id"`
	XP               int64                 `json:"xp"`
	Level            int                   `json:"level"`
	StreakDays       int                   `json:"streak_days"`
	LongestStreak    int                   `json:"longest_streak"`
	LastActivityDate time.Time             `json:"last_activity_date,omitempty"` // date only; zero = absent
	ProtectionUsedAt time.Time             `json:"protection_used_at,omitempty"`
	LastXPAt         time.Time             `json:"last_xp_at,omitempty"`
	WeeklyXP         int64                 `json:"weekly_xp"`
	LifetimeXP       int64                 `json:"lifetime_xp"`
	Achievements     []AchievementProgress `json:"achievements,omitempty"`
	WeeklyChallenge  *ChallengeProgress    `json:"weekly_challenge,omitempty"`
}

// NewUserGamification returns the record a user starts with.
func NewUserGamification(userID string) UserGamification {
	return UserGamification{UserID: userID, Level: 1}
}

// Streak extracts the streak portion of the record.
func (u UserGamification) Streak() StreakState {
	return StreakState{
		Days:             u.StreakDays,
		Longest:          u.LongestStreak,
		LastActivityDate: u.LastActivityDate,
		ProtectionUsedAt: u.ProtectionUsedAt,
	}
}

// XPChange is the outcome of a single XP award.
type XPChange struct {
	Points   int64 `json:"points"`
	OldXP    int64 `json:"old_xp"`
	NewXP    int64 `json:"new_xp"`
	OldLevel int   `json:"old_level"`
	NewLevel int   `json:"new_level"`

	// Board totals after the award.
	WeeklyXP   int64 `json:"weekly_xp"`
	LifetimeXP int64 `json:"lifetime_xp"`
}

// LeveledUp reports whether the award crossed at least one level boundary.
func (c XPChange) LeveledUp() bool { return c.NewLevel > c.OldLevel }

// XPEvent is one row of the append-only XP ledger.
type XPEvent struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Points    int64     `json:"points"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Common XP reasons written to the ledger.
const (
	ReasonCorrectAnswer   = "CORRECT_ANSWER"
	ReasonIncorrectAnswer = "INCORRECT_ANSWER"
	ReasonStreakBonus     = "STREAK_BONUS"
	ReasonAchievement     = "ACHIEVEMENT"
	ReasonChallenge       = "WEEKLY_CHALLENGE"
	ReasonManual          = "MANUAL"
)

// ─── Leaderboards ───────────────────────────────────────────────────────────

// Board names a leaderboard.
type Board string

const (
	BoardWeeklyXP   Board = "weekly_xp"
	BoardLifetimeXP Board = "lifetime_xp"
	BoardStreak     Board = "streak"
)

// ParseBoard validates a board name. Empty selects the weekly board.
func ParseBoard(s string) (Board, error) {
	switch Board(s) {
	case "":
		return BoardWeeklyXP, nil
	case BoardWeeklyXP, BoardLifetimeXP, BoardStreak:
		return Board(s), nil
	}
	return "", ErrInvalidInput
}

// LeaderboardEntry is a user's position on a board.
type LeaderboardEntry struct {
	Rank   int64  `json:"rank"`
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
}

// ─── Notifications ──────────────────────────────────────────────────────────

// NotificationKind classifies an in-app notification.
type NotificationKind string

const (
	NotifyLevelUp     NotificationKind = "level_up"
	NotifyAchievement NotificationKind = "achievement"
	NotifyMilestone   NotificationKind = "streak_milestone"
	NotifyChallenge   NotificationKind = "challenge_completed"
)

// Notification is a message queued for the user's next visit.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	CreatedAt time.Time        `json:"created_at"`
	Shown     bool             `json:"shown"`
}

// ─── Newsletter ─────────────────────────────────────────────────────────────

// NewsletterSubscription is an email opted into the newsletter.
type NewsletterSubscription struct {
	Email          string    `json:"email"`
	Token          string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UnsubscribedAt time.Time `json:"unsubscribed_at,omitempty"`
}

// Active reports whether the subscription has not been cancelled.
func (s NewsletterSubscription) Active() bool { return s.UnsubscribedAt.IsZero() }
