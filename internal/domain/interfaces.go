package domain

import (
	"context"
	"time"
)

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them (sqlite for local use and tests, postgres in
// production); the application layer depends on them.
//
// Every read-modify-write on a user row is a single conditional statement or
// transaction inside the store, so concurrent requests for the same user
// cannot double-count.

// ProfileStore persists UserGamification rows and the XP ledger.
type ProfileStore interface {
	// Profile returns the user's record, or NewUserGamification if none exists.
	Profile(ctx context.Context, userID string) (UserGamification, error)

	// AddXP atomically adds points to xp, weekly and lifetime XP, recomputes
	// the level with LevelFor, stamps LastXPAt and appends a ledger row.
	AddXP(ctx context.Context, userID string, points int64, reason string, at time.Time) (XPChange, error)

	// CompareAndSwapStreak writes next only if the stored last activity date
	// still equals prevDate ("" when absent). Returns false when another
	// writer got there first.
	CompareAndSwapStreak(ctx context.Context, userID string, prevDate string, next StreakState) (bool, error)

	// ResetWeeklyXP zeroes weekly XP for every user and returns rows touched.
	ResetWeeklyXP(ctx context.Context) (int64, error)

	// TopProfiles ranks users on a board straight from the database.
	TopProfiles(ctx context.Context, board Board, limit int) ([]LeaderboardEntry, error)

	// XPEvents returns the user's most recent ledger rows.
	XPEvents(ctx context.Context, userID string, limit int) ([]XPEvent, error)
}

// AchievementStore persists achievement progress.
type AchievementStore interface {
	AchievementProgress(ctx context.Context, userID string) ([]AchievementProgress, error)

	// RaiseAchievementProgress stores max(stored, progress) and, if the stored
	// value reaches required while EarnedAt is unset, stamps EarnedAt = at.
	// earned is true only for the call that stamped it.
	RaiseAchievementProgress(ctx context.Context, userID, achievementID string, progress, required float64, at time.Time) (p AchievementProgress, earned bool, err error)

	// CountEarned returns how many achievements the user has unlocked.
	CountEarned(ctx context.Context, userID string) (int, error)
}

// ChallengeStore persists weekly challenges and per-user progress.
type ChallengeStore interface {
	UpsertChallenge(ctx context.Context, c WeeklyChallenge) error
	ActiveChallenge(ctx context.Context, at time.Time) (WeeklyChallenge, error) // ErrNoActiveChallenge

	// AddChallengeProgress adds delta and, the first time progress reaches
	// target, marks the row completed. completed is true only for that call.
	AddChallengeProgress(ctx context.Context, userID, challengeID string, delta, target int64, at time.Time) (p ChallengeProgress, completed bool, err error)
	ChallengeProgress(ctx context.Context, userID, challengeID string) (ChallengeProgress, error)
	CountCompletedChallenges(ctx context.Context, userID string) (int, error)
}

// QuestionStore persists the question bank and the daily schedule.
type QuestionStore interface {
	InsertQuestion(ctx context.Context, q Question) (int64, error)
	Question(ctx context.Context, id int64) (Question, error) // ErrNotFound
	Categories(ctx context.Context) ([]string, error)

	// PickQuestion returns the question in (category, difficulty) that was
	// scheduled least recently (never-scheduled first).
	PickQuestion(ctx context.Context, category string, difficulty Difficulty) (Question, error)

	// InsertDailyQuestion creates the row unless (date, category, difficulty)
	// already exists. created reports which happened.
	InsertDailyQuestion(ctx context.Context, dq DailyQuestion) (id int64, created bool, err error)

	// FindDailyQuestion returns the newest row matching q (ErrNotFound).
	FindDailyQuestion(ctx context.Context, q DailyQuery) (DailyQuestion, error)
	DailyQuestion(ctx context.Context, id int64) (DailyQuestion, error)
	QuestionCount(ctx context.Context) (int, error)
}

// ProgressStore persists answered daily questions.
type ProgressStore interface {
	// InsertProgress fails with ErrAlreadyAnswered when a live answer for
	// (user, daily question, date) exists. A positive limit caps the rows
	// stored for that user and date, reset ones included; the check and the
	// insert are atomic and a full day fails with ErrDailyLimitReached.
	InsertProgress(ctx context.Context, r ProgressRecord, limit int) error

	// RecentProgress and CountAnswered skip reset answers.
	RecentProgress(ctx context.Context, userID string, limit int) ([]ProgressRecord, error)
	CountAnswered(ctx context.Context, userID string) (total, correct int, err error)

	// ProgressOn returns every answer stored for the date, reset ones
	// included.
	ProgressOn(ctx context.Context, userID string, date time.Time) ([]ProgressRecord, error)

	// ResetProgress marks the live answer as reset. The row is kept.
	ResetProgress(ctx context.Context, userID string, dailyQuestionID int64, date, at time.Time) (bool, error)
}

// PremiumStore answers is_premium_user.
type PremiumStore interface {
	IsPremium(ctx context.Context, userID string, at time.Time) (bool, error)
	SetPremium(ctx context.Context, userID string, until time.Time) error
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n Notification) (int64, error)
	PendingNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkNotificationShown(ctx context.Context, userID string, id int64) error // ErrNotFound
	CountNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// NewsletterStore persists newsletter subscriptions.
type NewsletterStore interface {
	// Subscribe creates or reactivates a subscription and returns its token.
	Subscribe(ctx context.Context, email, token string, at time.Time) (string, error)
	Unsubscribe(ctx context.Context, token string, at time.Time) (bool, error)
	ActiveSubscribers(ctx context.Context) (int, error)
}

// Store is the full persistence surface.
type Store interface {
	ProfileStore
	AchievementStore
	ChallengeStore
	QuestionStore
	ProgressStore
	PremiumStore
	NotificationStore
	NewsletterStore
	Close() error
}
