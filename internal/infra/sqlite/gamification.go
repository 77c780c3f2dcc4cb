package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// ─── Gamification Schema ────────────────────────────────────────────────────

// GamificationMigrations returns the profile, ledger, achievement and
// challenge tables. Each string is a single SQL statement.
func GamificationMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS user_gamification (
			user_id            TEXT PRIMARY KEY,
			xp                 INTEGER NOT NULL DEFAULT 0 CHECK(xp >= 0),
			level              INTEGER NOT NULL DEFAULT 1 CHECK(level >= 1),
			streak_days        INTEGER NOT NULL DEFAULT 0,
			longest_streak     INTEGER NOT NULL DEFAULT 0,
			last_activity_date TEXT,
			protection_used_at TEXT,
			last_xp_at         TEXT,
			weekly_xp          INTEGER NOT NULL DEFAULT 0,
			lifetime_xp        INTEGER NOT NULL DEFAULT 0,
			updated_at         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gamification_weekly ON user_gamification(weekly_xp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_gamification_lifetime ON user_gamification(lifetime_xp DESC)`,

		// Append-only XP ledger
		`CREATE TABLE IF NOT EXISTS xp_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			points     INTEGER NOT NULL,
			reason     TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_events_user ON xp_events(user_id, id DESC)`,

		`CREATE TABLE IF NOT EXISTS user_achievements (
			user_id        TEXT NOT NULL,
			achievement_id TEXT NOT NULL,
			progress       REAL NOT NULL DEFAULT 0,
			earned_at      TEXT,
			updated_at     TEXT,
			PRIMARY KEY (user_id, achievement_id)
		)`,

		`CREATE TABLE IF NOT EXISTS weekly_challenges (
			id        TEXT PRIMARY KEY,
			title     TEXT NOT NULL,
			metric    TEXT NOT NULL,
			target    INTEGER NOT NULL,
			reward_xp INTEGER NOT NULL DEFAULT 0,
			starts_at TEXT NOT NULL,
			ends_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_window ON weekly_challenges(starts_at, ends_at)`,

		`CREATE TABLE IF NOT EXISTS challenge_progress (
			challenge_id     TEXT NOT NULL,
			user_id          TEXT NOT NULL,
			current_progress INTEGER NOT NULL DEFAULT 0,
			target           INTEGER NOT NULL DEFAULT 0,
			completed        INTEGER NOT NULL DEFAULT 0,
			completed_at     TEXT,
			PRIMARY KEY (challenge_id, user_id)
		)`,
	}
}

// ─── Profile Operations ─────────────────────────────────────────────────────

// Profile returns the user's gamification record with achievement progress,
// or a fresh level-1 record if the user has none yet.
func (db *DB) Profile(ctx context.Context, userID string) (domain.UserGamification, error) {
	u := domain.NewUserGamification(userID)
	var lastDate, protectedAt, lastXP sql.NullString
	err := db.db.QueryRowContext(ctx, `
		SELECT xp, level, streak_days, longest_streak, last_activity_date,
		       protection_used_at, last_xp_at, weekly_xp, lifetime_xp
		FROM user_gamification WHERE user_id = ?
	`, userID).Scan(&u.XP, &u.Level, &u.StreakDays, &u.LongestStreak, &lastDate,
		&protectedAt, &lastXP, &u.WeeklyXP, &u.LifetimeXP)
	if err == sql.ErrNoRows {
		return u, nil
	}
	if err != nil {
		return u, fmt.Errorf("get profile: %w", err)
	}
	u.LastActivityDate = parseDate(lastDate)
	u.ProtectionUsedAt = parseDate(protectedAt)
	u.LastXPAt = parseTime(lastXP)

	u.Achievements, err = db.AchievementProgress(ctx, userID)
	if err != nil {
		return u, err
	}
	return u, nil
}

// AddXP adds points inside one transaction and records the ledger row.
func (db *DB) AddXP(ctx context.Context, userID string, points int64, reason string, at time.Time) (domain.XPChange, error) {
	change := domain.XPChange{Points: points}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return change, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_gamification (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`, userID); err != nil {
		return change, fmt.Errorf("ensure profile: %w", err)
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT xp, level FROM user_gamification WHERE user_id = ?`, userID,
	).Scan(&change.OldXP, &change.OldLevel); err != nil {
		return change, fmt.Errorf("read xp: %w", err)
	}

	change.NewXP = change.OldXP + points
	change.NewLevel = domain.LevelFor(change.NewXP)

	if err := tx.QueryRowContext(ctx, `
		UPDATE user_gamification SET
			xp          = ?,
			level       = ?,
			weekly_xp   = weekly_xp + ?,
			lifetime_xp = lifetime_xp + ?,
			last_xp_at  = ?,
			updated_at  = ?
		WHERE user_id = ?
		RETURNING weekly_xp, lifetime_xp
	`, change.NewXP, change.NewLevel, points, points, formatTime(at), formatTime(at), userID,
	).Scan(&change.WeeklyXP, &change.LifetimeXP); err != nil {
		return change, fmt.Errorf("update xp: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO xp_events (user_id, points, reason, created_at) VALUES (?, ?, ?, ?)`,
		userID, points, reason, formatTime(at)); err != nil {
		return change, fmt.Errorf("insert xp event: %w", err)
	}
	return change, tx.Commit()
}

// CompareAndSwapStreak writes the streak only if last_activity_date is still
// prevDate.
func (db *DB) CompareAndSwapStreak(ctx context.Context, userID string, prevDate string, next domain.StreakState) (bool, error) {
	if _, err := db.db.ExecContext(ctx,
		`INSERT INTO user_gamification (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`, userID); err != nil {
		return false, fmt.Errorf("ensure profile: %w", err)
	}
	res, err := db.db.ExecContext(ctx, `
		UPDATE user_gamification SET
			streak_days        = ?,
			longest_streak     = MAX(longest_streak, ?),
			last_activity_date = ?,
			protection_used_at = ?,
			updated_at         = ?
		WHERE user_id = ? AND COALESCE(last_activity_date, '') = ?
	`, next.Days, next.Longest, formatDate(next.LastActivityDate), formatDate(next.ProtectionUsedAt),
		formatTime(time.Now()), userID, prevDate)
	if err != nil {
		return false, fmt.Errorf("swap streak: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ResetWeeklyXP zeroes every user's weekly XP.
func (db *DB) ResetWeeklyXP(ctx context.Context) (int64, error) {
	res, err := db.db.ExecContext(ctx, `UPDATE user_gamification SET weekly_xp = 0 WHERE weekly_xp <> 0`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boardColumn(board domain.Board) (string, error) {
	switch board {
	case domain.BoardWeeklyXP:
		return "weekly_xp", nil
	case domain.BoardLifetimeXP:
		return "lifetime_xp", nil
	case domain.BoardStreak:
		return "longest_streak", nil
	}
	return "", domain.ErrInvalidInput
}

// TopProfiles ranks users with a positive score on board.
func (db *DB) TopProfiles(ctx context.Context, board domain.Board, limit int) ([]domain.LeaderboardEntry, error) {
	col, err := boardColumn(board)
	if err != nil {
		return nil, err
	}
	rows, err := db.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT user_id, %[1]s FROM user_gamification
		WHERE %[1]s > 0
		ORDER BY %[1]s DESC, user_id ASC LIMIT ?
	`, col), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		e := domain.LeaderboardEntry{Rank: int64(len(out) + 1)}
		if err := rows.Scan(&e.UserID, &e.Score); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// XPEvents returns the newest ledger rows first.
func (db *DB) XPEvents(ctx context.Context, userID string, limit int) ([]domain.XPEvent, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, user_id, points, reason, created_at FROM xp_events
		WHERE user_id = ? ORDER BY id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.XPEvent
	for rows.Next() {
		var e domain.XPEvent
		var created sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Points, &e.Reason, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─── Achievement Operations ─────────────────────────────────────────────────

// AchievementProgress lists the user's stored achievement rows.
func (db *DB) AchievementProgress(ctx context.Context, userID string) ([]domain.AchievementProgress, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT achievement_id, progress, earned_at FROM user_achievements
		WHERE user_id = ? ORDER BY achievement_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AchievementProgress
	for rows.Next() {
		var p domain.AchievementProgress
		var earned sql.NullString
		if err := rows.Scan(&p.AchievementID, &p.Progress, &earned); err != nil {
			return nil, err
		}
		p.EarnedAt = parseTime(earned)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RaiseAchievementProgress keeps the max progress and stamps earned_at once.
func (db *DB) RaiseAchievementProgress(ctx context.Context, userID, achievementID string, progress, required float64, at time.Time) (domain.AchievementProgress, bool, error) {
	p := domain.AchievementProgress{AchievementID: achievementID}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return p, false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, progress, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, achievement_id) DO UPDATE SET
			progress   = MAX(progress, excluded.progress),
			updated_at = excluded.updated_at
	`, userID, achievementID, progress, formatTime(at)); err != nil {
		return p, false, fmt.Errorf("raise progress: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE user_achievements SET earned_at = ?
		WHERE user_id = ? AND achievement_id = ? AND earned_at IS NULL AND progress >= ?
	`, formatTime(at), userID, achievementID, required)
	if err != nil {
		return p, false, fmt.Errorf("stamp earned: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return p, false, err
	}

	var earned sql.NullString
	if err := tx.QueryRowContext(ctx, `
		SELECT progress, earned_at FROM user_achievements WHERE user_id = ? AND achievement_id = ?
	`, userID, achievementID).Scan(&p.Progress, &earned); err != nil {
		return p, false, err
	}
	p.EarnedAt = parseTime(earned)
	return p, n == 1, tx.Commit()
}

// CountEarned counts unlocked achievements.
func (db *DB) CountEarned(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_achievements WHERE user_id = ? AND earned_at IS NOT NULL`, userID).Scan(&n)
	return n, err
}

// ─── Weekly Challenge Operations ────────────────────────────────────────────

// UpsertChallenge inserts or replaces a challenge definition.
func (db *DB) UpsertChallenge(ctx context.Context, c domain.WeeklyChallenge) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO weekly_challenges (id, title, metric, target, reward_xp, starts_at, ends_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title     = excluded.title,
			metric    = excluded.metric,
			target    = excluded.target,
			reward_xp = excluded.reward_xp,
			starts_at = excluded.starts_at,
			ends_at   = excluded.ends_at
	`, c.ID, c.Title, string(c.Metric), c.Target, c.RewardXP, formatTime(c.StartsAt), formatTime(c.EndsAt))
	return err
}

// ActiveChallenge returns the challenge whose window contains at.
func (db *DB) ActiveChallenge(ctx context.Context, at time.Time) (domain.WeeklyChallenge, error) {
	var c domain.WeeklyChallenge
	var metric string
	var starts, ends sql.NullString
	ts := formatTime(at)
	err := db.db.QueryRowContext(ctx, `
		SELECT id, title, metric, target, reward_xp, starts_at, ends_at
		FROM weekly_challenges
		WHERE starts_at <= ? AND ends_at > ?
		ORDER BY starts_at DESC LIMIT 1
	`, ts, ts).Scan(&c.ID, &c.Title, &metric, &c.Target, &c.RewardXP, &starts, &ends)
	if err != nil {
		return c, notFound(err, domain.ErrNoActiveChallenge)
	}
	c.Metric = domain.ChallengeMetric(metric)
	c.StartsAt = parseTime(starts)
	c.EndsAt = parseTime(ends)
	return c, nil
}

// AddChallengeProgress adds delta and completes the row at most once.
func (db *DB) AddChallengeProgress(ctx context.Context, userID, challengeID string, delta, target int64, at time.Time) (domain.ChallengeProgress, bool, error) {
	p := domain.ChallengeProgress{ChallengeID: challengeID, UserID: userID}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return p, false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO challenge_progress (challenge_id, user_id, current_progress, target)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(challenge_id, user_id) DO NOTHING
	`, challengeID, userID, target); err != nil {
		return p, false, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE challenge_progress SET current_progress = current_progress + ?, target = ?
		WHERE challenge_id = ? AND user_id = ?
	`, delta, target, challengeID, userID); err != nil {
		return p, false, fmt.Errorf("add progress: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE challenge_progress SET completed = 1, completed_at = ?
		WHERE challenge_id = ? AND user_id = ? AND completed = 0 AND current_progress >= target
	`, formatTime(at), challengeID, userID)
	if err != nil {
		return p, false, fmt.Errorf("complete challenge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return p, false, err
	}

	p, err = scanChallengeProgress(tx.QueryRowContext(ctx, challengeProgressQuery, challengeID, userID), challengeID, userID)
	if err != nil {
		return p, false, err
	}
	return p, n == 1, tx.Commit()
}

const challengeProgressQuery = `
	SELECT current_progress, target, completed, completed_at
	FROM challenge_progress WHERE challenge_id = ? AND user_id = ?`

func scanChallengeProgress(row *sql.Row, challengeID, userID string) (domain.ChallengeProgress, error) {
	p := domain.ChallengeProgress{ChallengeID: challengeID, UserID: userID}
	var completed int
	var completedAt sql.NullString
	if err := row.Scan(&p.CurrentProgress, &p.Target, &completed, &completedAt); err != nil {
		return p, err
	}
	p.Completed = completed == 1
	p.CompletedAt = parseTime(completedAt)
	return p, nil
}

// ChallengeProgress returns the user's progress, zero if they have none.
func (db *DB) ChallengeProgress(ctx context.Context, userID, challengeID string) (domain.ChallengeProgress, error) {
	p, err := scanChallengeProgress(db.db.QueryRowContext(ctx, challengeProgressQuery, challengeID, userID), challengeID, userID)
	if err == sql.ErrNoRows {
		return domain.ChallengeProgress{ChallengeID: challengeID, UserID: userID}, nil
	}
	return p, err
}

// CountCompletedChallenges counts challenges the user completed.
func (db *DB) CountCompletedChallenges(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM challenge_progress WHERE user_id = ? AND completed = 1`, userID).Scan(&n)
	return n, err
}
