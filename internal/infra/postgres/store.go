package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// ─── Profiles ───────────────────────────────────────────────────────────────

func (db *DB) Profile(ctx context.Context, userID string) (domain.UserGamification, error) {
	u := domain.NewUserGamification(userID)
	var lastDate, protectedAt, lastXP *time.Time
	err := db.pool.QueryRow(ctx, `
		SELECT xp, level, streak_days, longest_streak, last_activity_date,
		       protection_used_at, last_xp_at, weekly_xp, lifetime_xp
		FROM user_gamification WHERE user_id = $1
	`, userID).Scan(&u.XP, &u.Level, &u.StreakDays, &u.LongestStreak, &lastDate,
		&protectedAt, &lastXP, &u.WeeklyXP, &u.LifetimeXP)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return u, fmt.Errorf("get profile: %w", err)
	}
	u.LastActivityDate = deref(lastDate)
	u.ProtectionUsedAt = deref(protectedAt)
	u.LastXPAt = deref(lastXP)

	u.Achievements, err = db.AchievementProgress(ctx, userID)
	return u, err
}

func (db *DB) AddXP(ctx context.Context, userID string, points int64, reason string, at time.Time) (domain.XPChange, error) {
	change := domain.XPChange{Points: points}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return change, err
	}
	defer tx.Rollback(ctx)

	if err := db.ensureProfile(ctx, tx, userID); err != nil {
		return change, err
	}
	// FOR UPDATE serialises concurrent awards for the same user.
	if err := tx.QueryRow(ctx,
		`SELECT xp, level FROM user_gamification WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&change.OldXP, &change.OldLevel); err != nil {
		return change, fmt.Errorf("read xp: %w", err)
	}
	change.NewXP = change.OldXP + points
	change.NewLevel = domain.LevelFor(change.NewXP)

	if err := tx.QueryRow(ctx, `
		UPDATE user_gamification SET
			xp = $1, level = $2,
			weekly_xp = weekly_xp + $3, lifetime_xp = lifetime_xp + $3,
			last_xp_at = $4, updated_at = now()
		WHERE user_id = $5
		RETURNING weekly_xp, lifetime_xp
	`, change.NewXP, change.NewLevel, points, at.UTC(), userID,
	).Scan(&change.WeeklyXP, &change.LifetimeXP); err != nil {
		return change, fmt.Errorf("update xp: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO xp_events (user_id, points, reason, created_at) VALUES ($1, $2, $3, $4)`,
		userID, points, reason, at.UTC()); err != nil {
		return change, fmt.Errorf("insert xp event: %w", err)
	}
	return change, tx.Commit(ctx)
}

func (db *DB) CompareAndSwapStreak(ctx context.Context, userID string, prevDate string, next domain.StreakState) (bool, error) {
	if err := db.ensureProfile(ctx, db.pool, userID); err != nil {
		return false, err
	}
	tag, err := db.pool.Exec(ctx, `
		UPDATE user_gamification SET
			streak_days        = $1,
			longest_streak     = GREATEST(longest_streak, $2),
			last_activity_date = $3,
			protection_used_at = $4,
			updated_at         = now()
		WHERE user_id = $5 AND COALESCE(to_char(last_activity_date, 'YYYY-MM-DD'), '') = $6
	`, next.Days, next.Longest, dateArg(next.LastActivityDate), dateArg(next.ProtectionUsedAt), userID, prevDate)
	if err != nil {
		return false, fmt.Errorf("swap streak: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) ResetWeeklyXP(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx, `UPDATE user_gamification SET weekly_xp = 0 WHERE weekly_xp <> 0`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (db *DB) TopProfiles(ctx context.Context, board domain.Board, limit int) ([]domain.LeaderboardEntry, error) {
	var col string
	switch board {
	case domain.BoardWeeklyXP:
		col = "weekly_xp"
	case domain.BoardLifetimeXP:
		col = "lifetime_xp"
	case domain.BoardStreak:
		col = "longest_streak"
	default:
		return nil, domain.ErrInvalidInput
	}
	rows, err := db.pool.Query(ctx, fmt.Sprintf(`
		SELECT user_id, %[1]s::BIGINT FROM user_gamification
		WHERE %[1]s > 0 ORDER BY %[1]s DESC, user_id ASC LIMIT $1
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

func (db *DB) XPEvents(ctx context.Context, userID string, limit int) ([]domain.XPEvent, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, user_id, points, reason, created_at FROM xp_events
		WHERE user_id = $1 ORDER BY id DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.XPEvent
	for rows.Next() {
		var e domain.XPEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Points, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─── Achievements ───────────────────────────────────────────────────────────

func (db *DB) AchievementProgress(ctx context.Context, userID string) ([]domain.AchievementProgress, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT achievement_id, progress, earned_at FROM user_achievements
		WHERE user_id = $1 ORDER BY achievement_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AchievementProgress
	for rows.Next() {
		var p domain.AchievementProgress
		var earned *time.Time
		if err := rows.Scan(&p.AchievementID, &p.Progress, &earned); err != nil {
			return nil, err
		}
		p.EarnedAt = deref(earned)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) RaiseAchievementProgress(ctx context.Context, userID, achievementID string, progress, required float64, at time.Time) (domain.AchievementProgress, bool, error) {
	p := domain.AchievementProgress{AchievementID: achievementID}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return p, false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, progress, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, achievement_id) DO UPDATE SET
			progress   = GREATEST(user_achievements.progress, EXCLUDED.progress),
			updated_at = EXCLUDED.updated_at
	`, userID, achievementID, progress, at.UTC()); err != nil {
		return p, false, fmt.Errorf("raise progress: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE user_achievements SET earned_at = $1
		WHERE user_id = $2 AND achievement_id = $3 AND earned_at IS NULL AND progress >= $4
	`, at.UTC(), userID, achievementID, required)
	if err != nil {
		return p, false, fmt.Errorf("stamp earned: %w", err)
	}

	var earned *time.Time
	if err := tx.QueryRow(ctx,
		`SELECT progress, earned_at FROM user_achievements WHERE user_id = $1 AND achievement_id = $2`,
		userID, achievementID).Scan(&p.Progress, &earned); err != nil {
		return p, false, err
	}
	p.EarnedAt = deref(earned)
	return p, tag.RowsAffected() == 1, tx.Commit(ctx)
}

func (db *DB) CountEarned(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_achievements WHERE user_id = $1 AND earned_at IS NOT NULL`, userID).Scan(&n)
	return n, err
}

// ─── Weekly Challenges ──────────────────────────────────────────────────────

func (db *DB) UpsertChallenge(ctx context.Context, c domain.WeeklyChallenge) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO weekly_challenges (id, title, metric, target, reward_xp, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, metric = EXCLUDED.metric, target = EXCLUDED.target,
			reward_xp = EXCLUDED.reward_xp, starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at
	`, c.ID, c.Title, string(c.Metric), c.Target, c.RewardXP, c.StartsAt.UTC(), c.EndsAt.UTC())
	return err
}

func (db *DB) ActiveChallenge(ctx context.Context, at time.Time) (domain.WeeklyChallenge, error) {
	var c domain.WeeklyChallenge
	var metric string
	err := db.pool.QueryRow(ctx, `
		SELECT id, title, metric, target, reward_xp, starts_at, ends_at
		FROM weekly_challenges WHERE starts_at <= $1 AND ends_at > $1
		ORDER BY starts_at DESC LIMIT 1
	`, at.UTC()).Scan(&c.ID, &c.Title, &metric, &c.Target, &c.RewardXP, &c.StartsAt, &c.EndsAt)
	if err != nil {
		return c, notFound(err, domain.ErrNoActiveChallenge)
	}
	c.Metric = domain.ChallengeMetric(metric)
	return c, nil
}

func (db *DB) AddChallengeProgress(ctx context.Context, userID, challengeID string, delta, target int64, at time.Time) (domain.ChallengeProgress, bool, error) {
	p := domain.ChallengeProgress{ChallengeID: challengeID, UserID: userID}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return p, false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO challenge_progress (challenge_id, user_id, current_progress, target)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (challenge_id, user_id) DO UPDATE SET
			current_progress = challenge_progress.current_progress + EXCLUDED.current_progress,
			target = EXCLUDED.target
	`, challengeID, userID, delta, target); err != nil {
		return p, false, fmt.Errorf("add progress: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE challenge_progress SET completed = true, completed_at = $1
		WHERE challenge_id = $2 AND user_id = $3 AND NOT completed AND current_progress >= target
	`, at.UTC(), challengeID, userID)
	if err != nil {
		return p, false, fmt.Errorf("complete challenge: %w", err)
	}

	var completedAt *time.Time
	if err := tx.QueryRow(ctx, challengeProgressQuery, challengeID, userID).
		Scan(&p.CurrentProgress, &p.Target, &p.Completed, &completedAt); err != nil {
		return p, false, err
	}
	p.CompletedAt = deref(completedAt)
	return p, tag.RowsAffected() == 1, tx.Commit(ctx)
}

const challengeProgressQuery = `
	SELECT current_progress, target, completed, completed_at
	FROM challenge_progress WHERE challenge_id = $1 AND user_id = $2`

func (db *DB) ChallengeProgress(ctx context.Context, userID, challengeID string) (domain.ChallengeProgress, error) {
	p := domain.ChallengeProgress{ChallengeID: challengeID, UserID: userID}
	var completedAt *time.Time
	err := db.pool.QueryRow(ctx, challengeProgressQuery, challengeID, userID).
		Scan(&p.CurrentProgress, &p.Target, &p.Completed, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	p.CompletedAt = deref(completedAt)
	return p, err
}

func (db *DB) CountCompletedChallenges(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM challenge_progress WHERE user_id = $1 AND completed`, userID).Scan(&n)
	return n, err
}

// ─── Questions ──────────────────────────────────────────────────────────────

func (db *DB) InsertQuestion(ctx context.Context, q domain.Question) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx, `
		INSERT INTO questions (category, difficulty, prompt, options, correct_index, explanation)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (category, prompt) DO UPDATE SET
			difficulty = EXCLUDED.difficulty, options = EXCLUDED.options,
			correct_index = EXCLUDED.correct_index, explanation = EXCLUDED.explanation
		RETURNING id
	`, q.Category, string(q.Difficulty), q.Prompt, q.Options, q.CorrectIndex, q.Explanation).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return id, nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	var diff string
	err := row.Scan(&q.ID, &q.Category, &diff, &q.Prompt, &q.Options, &q.CorrectIndex, &q.Explanation)
	q.Difficulty = domain.Difficulty(diff)
	return q, err
}

func (db *DB) Question(ctx context.Context, id int64) (domain.Question, error) {
	q, err := scanQuestion(db.pool.QueryRow(ctx, `
		SELECT id, category, difficulty, prompt, options, correct_index, explanation
		FROM questions WHERE id = $1`, id))
	return q, notFound(err, domain.ErrNotFound)
}

func (db *DB) Categories(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT DISTINCT category FROM questions ORDER BY category`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (db *DB) PickQuestion(ctx context.Context, category string, difficulty domain.Difficulty) (domain.Question, error) {
	q, err := scanQuestion(db.pool.QueryRow(ctx, `
		SELECT q.id, q.category, q.difficulty, q.prompt, q.options, q.correct_index, q.explanation
		FROM questions q
		LEFT JOIN (
			SELECT question_id, MAX(date) AS last_date FROM daily_questions GROUP BY question_id
		) d ON d.question_id = q.id
		WHERE q.category = $1 AND q.difficulty = $2
		ORDER BY d.last_date ASC NULLS FIRST, q.id ASC
		LIMIT 1`, category, string(difficulty)))
	return q, notFound(err, domain.ErrNotFound)
}

func (db *DB) QuestionCount(ctx context.Context) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n)
	return n, err
}

func (db *DB) InsertDailyQuestion(ctx context.Context, dq domain.DailyQuestion) (int64, bool, error) {
	var id int64
	err := db.pool.QueryRow(ctx, `
		INSERT INTO daily_questions (date, category, difficulty, question_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date, category, difficulty) DO NOTHING
		RETURNING id
	`, dateArg(dq.Date), dq.Category, string(dq.Difficulty), dq.QuestionID).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("insert daily question: %w", err)
	}
	err = db.pool.QueryRow(ctx,
		`SELECT id FROM daily_questions WHERE date = $1 AND category = $2 AND difficulty = $3`,
		dateArg(dq.Date), dq.Category, string(dq.Difficulty)).Scan(&id)
	return id, false, err
}

const dailyColumns = `id, date, category, difficulty, question_id`

func scanDaily(row pgx.Row) (domain.DailyQuestion, error) {
	var dq domain.DailyQuestion
	var diff string
	err := row.Scan(&dq.ID, &dq.Date, &dq.Category, &diff, &dq.QuestionID)
	dq.Difficulty = domain.Difficulty(diff)
	return dq, err
}

func (db *DB) FindDailyQuestion(ctx context.Context, q domain.DailyQuery) (domain.DailyQuestion, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !q.Date.IsZero() {
		add("date = $%d", dateArg(q.Date))
	}
	if q.Category != "" {
		add("category = $%d", q.Category)
	}
	if q.Difficulty != "" {
		add("difficulty = $%d", string(q.Difficulty))
	}
	if len(q.ExcludeIDs) > 0 {
		add("NOT (id = ANY($%d))", q.ExcludeIDs)
	}

	query := `SELECT ` + dailyColumns + ` FROM daily_questions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, id DESC LIMIT 1"

	dq, err := scanDaily(db.pool.QueryRow(ctx, query, args...))
	return dq, notFound(err, domain.ErrNotFound)
}

func (db *DB) DailyQuestion(ctx context.Context, id int64) (domain.DailyQuestion, error) {
	dq, err := scanDaily(db.pool.QueryRow(ctx,
		`SELECT `+dailyColumns+` FROM daily_questions WHERE id = $1`, id))
	return dq, notFound(err, domain.ErrNotFound)
}

// ─── Progress ───────────────────────────────────────────────────────────────

func (db *DB) InsertProgress(ctx context.Context, r domain.ProgressRecord, limit int) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if limit > 0 {
		if err := db.ensureProfile(ctx, tx, r.UserID); err != nil {
			return err
		}
		// The profile row lock serialises answers from the same user.
		if _, err := tx.Exec(ctx,
			`SELECT 1 FROM user_gamification WHERE user_id = $1 FOR UPDATE`, r.UserID); err != nil {
			return fmt.Errorf("lock profile: %w", err)
		}
		var used int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM user_progress WHERE user_id = $1 AND date = $2`,
			r.UserID, dateArg(r.Date)).Scan(&used); err != nil {
			return fmt.Errorf("count progress: %w", err)
		}
		if used >= limit {
			var live bool
			if err := tx.QueryRow(ctx, `
				SELECT EXISTS (SELECT 1 FROM user_progress
					WHERE user_id = $1 AND daily_question_id = $2 AND date = $3 AND reset_at IS NULL)
			`, r.UserID, r.DailyQuestionID, dateArg(r.Date)).Scan(&live); err != nil {
				return err
			}
			if live {
				return domain.ErrAlreadyAnswered
			}
			return domain.ErrDailyLimitReached
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_progress (user_id, daily_question_id, date, score, correct, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.UserID, r.DailyQuestionID, dateArg(r.Date), r.Score, r.Correct, r.AnsweredAt.UTC())
	if isUniqueViolation(err) {
		return domain.ErrAlreadyAnswered
	}
	if err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return tx.Commit(ctx)
}

const progressSelect = `
	SELECT p.user_id, p.daily_question_id, p.date, dq.category, p.score, p.correct, p.answered_at, p.reset_at
	FROM user_progress p
	JOIN daily_questions dq ON dq.id = p.daily_question_id`

func (db *DB) queryProgress(ctx context.Context, query string, args ...any) ([]domain.ProgressRecord, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProgressRecord
	for rows.Next() {
		var r domain.ProgressRecord
		var reset *time.Time
		if err := rows.Scan(&r.UserID, &r.DailyQuestionID, &r.Date, &r.Category, &r.Score, &r.Correct, &r.AnsweredAt, &reset); err != nil {
			return nil, err
		}
		r.ResetAt = deref(reset)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) RecentProgress(ctx context.Context, userID string, limit int) ([]domain.ProgressRecord, error) {
	return db.queryProgress(ctx, progressSelect+`
		WHERE p.user_id = $1 AND p.reset_at IS NULL ORDER BY p.answered_at DESC LIMIT $2`, userID, limit)
}

func (db *DB) ProgressOn(ctx context.Context, userID string, date time.Time) ([]domain.ProgressRecord, error) {
	return db.queryProgress(ctx, progressSelect+`
		WHERE p.user_id = $1 AND p.date = $2 ORDER BY p.answered_at, p.id`, userID, dateArg(date))
}

func (db *DB) ResetProgress(ctx context.Context, userID string, dailyQuestionID int64, date, at time.Time) (bool, error) {
	tag, err := db.pool.Exec(ctx, `
		UPDATE user_progress SET reset_at = $1
		WHERE user_id = $2 AND daily_question_id = $3 AND date = $4 AND reset_at IS NULL
	`, at.UTC(), userID, dailyQuestionID, dateArg(date))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (db *DB) CountAnswered(ctx context.Context, userID string) (int, int, error) {
	var total, correct int
	err := db.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE correct)
		FROM user_progress WHERE user_id = $1 AND reset_at IS NULL
	`, userID).Scan(&total, &correct)
	return total, correct, err
}

// ─── Premium ────────────────────────────────────────────────────────────────

func (db *DB) IsPremium(ctx context.Context, userID string, at time.Time) (bool, error) {
	var ok bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM premium_users WHERE user_id = $1 AND until > $2)`,
		userID, at.UTC()).Scan(&ok)
	return ok, err
}

func (db *DB) SetPremium(ctx context.Context, userID string, until time.Time) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO premium_users (user_id, until) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET until = EXCLUDED.until
	`, userID, until.UTC())
	return err
}

// ─── Notifications ──────────────────────────────────────────────────────────

func (db *DB) InsertNotification(ctx context.Context, n domain.Notification) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, kind, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id
	`, n.UserID, string(n.Kind), n.Title, n.Body, n.CreatedAt.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	return id, nil
}

func (db *DB) PendingNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, user_id, kind, title, body, created_at, shown FROM notifications
		WHERE user_id = $1 AND NOT shown ORDER BY created_at, id LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var kind string
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Body, &n.CreatedAt, &n.Shown); err != nil {
			return nil, err
		}
		n.Kind = domain.NotificationKind(kind)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (db *DB) MarkNotificationShown(ctx context.Context, userID string, id int64) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE notifications SET shown = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (db *DB) CountNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND created_at >= $2`,
		userID, since.UTC()).Scan(&n)
	return n, err
}

// ─── Newsletter ─────────────────────────────────────────────────────────────

func (db *DB) Subscribe(ctx context.Context, email, token string, at time.Time) (string, error) {
	var stored string
	err := db.pool.QueryRow(ctx, `
		INSERT INTO newsletter_subscriptions (email, token, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET
			token = CASE WHEN newsletter_subscriptions.unsubscribed_at IS NULL
			             THEN newsletter_subscriptions.token ELSE EXCLUDED.token END,
			unsubscribed_at = NULL
		RETURNING token
	`, email, token, at.UTC()).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("subscribe: %w", err)
	}
	return stored, nil
}

func (db *DB) Unsubscribe(ctx context.Context, token string, at time.Time) (bool, error) {
	tag, err := db.pool.Exec(ctx, `
		UPDATE newsletter_subscriptions SET unsubscribed_at = $1
		WHERE token = $2 AND unsubscribed_at IS NULL
	`, at.UTC(), token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (db *DB) ActiveSubscribers(ctx context.Context) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM newsletter_subscriptions WHERE unsubscribed_at IS NULL`).Scan(&n)
	return n, err
}
