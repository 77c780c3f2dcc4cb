package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// ─── Question Schema ────────────────────────────────────────────────────────

// QuestionMigrations returns the question bank, daily schedule, answer
// progress and premium tables.
func QuestionMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS questions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			category      TEXT NOT NULL,
			difficulty    TEXT NOT NULL,
			prompt        TEXT NOT NULL,
			options_json  TEXT NOT NULL,
			correct_index INTEGER NOT NULL,
			explanation   TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			UNIQUE(category, prompt)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_bucket ON questions(category, difficulty)`,

		// One scheduled question per (date, category, difficulty)
		`CREATE TABLE IF NOT EXISTS daily_questions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			date        TEXT NOT NULL,
			category    TEXT NOT NULL,
			difficulty  TEXT NOT NULL,
			question_id INTEGER NOT NULL REFERENCES questions(id),
			created_at  TEXT NOT NULL,
			UNIQUE(date, category, difficulty)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_question ON daily_questions(question_id, date)`,

		// Reset answers keep their row; at most one live answer per user per
		// scheduled question per day
		`CREATE TABLE IF NOT EXISTS user_progress (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id           TEXT NOT NULL,
			daily_question_id INTEGER NOT NULL REFERENCES daily_questions(id),
			date              TEXT NOT NULL,
			score             REAL NOT NULL,
			correct           INTEGER NOT NULL,
			answered_at       TEXT NOT NULL,
			reset_at          TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_progress_live
			ON user_progress(user_id, daily_question_id, date) WHERE reset_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_progress_user_date ON user_progress(user_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_user_time ON user_progress(user_id, answered_at DESC)`,

		`CREATE TABLE IF NOT EXISTS premium_users (
			user_id TEXT PRIMARY KEY,
			until   TEXT NOT NULL
		)`,
	}
}

// ─── Question Bank Operations ───────────────────────────────────────────────

// InsertQuestion adds a bank question. Re-importing the same (category,
// prompt) updates the existing row instead.
func (db *DB) InsertQuestion(ctx context.Context, q domain.Question) (int64, error) {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.db.QueryRowContext(ctx, `
		INSERT INTO questions (category, difficulty, prompt, options_json, correct_index, explanation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(category, prompt) DO UPDATE SET
			difficulty    = excluded.difficulty,
			options_json  = excluded.options_json,
			correct_index = excluded.correct_index,
			explanation   = excluded.explanation
		RETURNING id
	`, q.Category, string(q.Difficulty), q.Prompt, string(opts), q.CorrectIndex, q.Explanation,
		formatTime(time.Now())).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return id, nil
}

const questionColumns = `id, category, difficulty, prompt, options_json, correct_index, explanation`

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(s scanner) (domain.Question, error) {
	var q domain.Question
	var diff, opts string
	if err := s.Scan(&q.ID, &q.Category, &diff, &q.Prompt, &opts, &q.CorrectIndex, &q.Explanation); err != nil {
		return q, err
	}
	q.Difficulty = domain.Difficulty(diff)
	if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
		return q, fmt.Errorf("decode options of question %d: %w", q.ID, err)
	}
	return q, nil
}

// Question fetches a bank question by ID.
func (db *DB) Question(ctx context.Context, id int64) (domain.Question, error) {
	q, err := scanQuestion(db.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	return q, notFound(err, domain.ErrNotFound)
}

// Categories lists the distinct bank categories.
func (db *DB) Categories(ctx context.Context) ([]string, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT DISTINCT category FROM questions ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PickQuestion returns the least recently scheduled question of a bucket.
func (db *DB) PickQuestion(ctx context.Context, category string, difficulty domain.Difficulty) (domain.Question, error) {
	q, err := scanQuestion(db.db.QueryRowContext(ctx, `
		SELECT q.id, q.category, q.difficulty, q.prompt, q.options_json, q.correct_index, q.explanation
		FROM questions q
		LEFT JOIN (
			SELECT question_id, MAX(date) AS last_date FROM daily_questions GROUP BY question_id
		) d ON d.question_id = q.id
		WHERE q.category = ? AND q.difficulty = ?
		ORDER BY d.last_date IS NOT NULL, d.last_date ASC, q.id ASC
		LIMIT 1
	`, category, string(difficulty)))
	return q, notFound(err, domain.ErrNotFound)
}

// QuestionCount returns the bank size.
func (db *DB) QuestionCount(ctx context.Context) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n)
	return n, err
}

// ─── Daily Schedule Operations ──────────────────────────────────────────────

// InsertDailyQuestion creates the (date, category, difficulty) row once.
func (db *DB) InsertDailyQuestion(ctx context.Context, dq domain.DailyQuestion) (int64, bool, error) {
	res, err := db.db.ExecContext(ctx, `
		INSERT INTO daily_questions (date, category, difficulty, question_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, category, difficulty) DO NOTHING
	`, formatDate(dq.Date), dq.Category, string(dq.Difficulty), dq.QuestionID, formatTime(time.Now()))
	if err != nil {
		return 0, false, fmt.Errorf("insert daily question: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	var id int64
	err = db.db.QueryRowContext(ctx,
		`SELECT id FROM daily_questions WHERE date = ? AND category = ? AND difficulty = ?`,
		formatDate(dq.Date), dq.Category, string(dq.Difficulty)).Scan(&id)
	return id, n == 1, err
}

const dailyColumns = `id, date, category, difficulty, question_id`

func scanDaily(s scanner) (domain.DailyQuestion, error) {
	var dq domain.DailyQuestion
	var date sql.NullString
	var diff string
	if err := s.Scan(&dq.ID, &date, &dq.Category, &diff, &dq.QuestionID); err != nil {
		return dq, err
	}
	dq.Date = parseDate(date)
	dq.Difficulty = domain.Difficulty(diff)
	return dq, nil
}

// FindDailyQuestion returns the newest scheduled row matching q.
func (db *DB) FindDailyQuestion(ctx context.Context, q domain.DailyQuery) (domain.DailyQuestion, error) {
	var where []string
	var args []any
	if !q.Date.IsZero() {
		where = append(where, "date = ?")
		args = append(args, formatDate(q.Date))
	}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if q.Difficulty != "" {
		where = append(where, "difficulty = ?")
		args = append(args, string(q.Difficulty))
	}
	if len(q.ExcludeIDs) > 0 {
		where = append(where, "id NOT IN ("+placeholders(len(q.ExcludeIDs))+")")
		for _, id := range q.ExcludeIDs {
			args = append(args, id)
		}
	}

	query := `SELECT ` + dailyColumns + ` FROM daily_questions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, id DESC LIMIT 1"

	dq, err := scanDaily(db.db.QueryRowContext(ctx, query, args...))
	return dq, notFound(err, domain.ErrNotFound)
}

// DailyQuestion fetches a scheduled row by ID.
func (db *DB) DailyQuestion(ctx context.Context, id int64) (domain.DailyQuestion, error) {
	dq, err := scanDaily(db.db.QueryRowContext(ctx,
		`SELECT `+dailyColumns+` FROM daily_questions WHERE id = ?`, id))
	return dq, notFound(err, domain.ErrNotFound)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ─── Progress Operations ────────────────────────────────────────────────────

// InsertProgress records an answer. With a positive limit the row is only
// written while the day holds fewer than limit rows; the count and the insert
// are one statement.
func (db *DB) InsertProgress(ctx context.Context, r domain.ProgressRecord, limit int) error {
	if limit <= 0 {
		limit = -1
	}
	date := formatDate(r.Date)
	res, err := db.db.ExecContext(ctx, `
		INSERT INTO user_progress (user_id, daily_question_id, date, score, correct, answered_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE ? < 0 OR (SELECT COUNT(*) FROM user_progress WHERE user_id = ? AND date = ?) < ?
		ON CONFLICT DO NOTHING
	`, r.UserID, r.DailyQuestionID, date, r.Score, boolInt(r.Correct), formatTime(r.AnsweredAt),
		limit, r.UserID, date, limit)
	if err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var live int
	if err := db.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_progress
		WHERE user_id = ? AND daily_question_id = ? AND date = ? AND reset_at IS NULL
	`, r.UserID, r.DailyQuestionID, date).Scan(&live); err != nil {
		return err
	}
	if live > 0 {
		return domain.ErrAlreadyAnswered
	}
	return domain.ErrDailyLimitReached
}

const progressSelect = `
	SELECT p.user_id, p.daily_question_id, p.date, dq.category, p.score, p.correct, p.answered_at, p.reset_at
	FROM user_progress p
	JOIN daily_questions dq ON dq.id = p.daily_question_id`

func (db *DB) queryProgress(ctx context.Context, query string, args ...any) ([]domain.ProgressRecord, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProgressRecord
	for rows.Next() {
		var r domain.ProgressRecord
		var date, answered, reset sql.NullString
		var correct int
		if err := rows.Scan(&r.UserID, &r.DailyQuestionID, &date, &r.Category, &r.Score, &correct, &answered, &reset); err != nil {
			return nil, err
		}
		r.Date = parseDate(date)
		r.Correct = correct == 1
		r.AnsweredAt = parseTime(answered)
		r.ResetAt = parseTime(reset)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentProgress returns the user's latest standing answers, newest first.
func (db *DB) RecentProgress(ctx context.Context, userID string, limit int) ([]domain.ProgressRecord, error) {
	return db.queryProgress(ctx, progressSelect+`
		WHERE p.user_id = ? AND p.reset_at IS NULL ORDER BY p.answered_at DESC LIMIT ?`, userID, limit)
}

// ProgressOn returns every answer stored for one calendar date.
func (db *DB) ProgressOn(ctx context.Context, userID string, date time.Time) ([]domain.ProgressRecord, error) {
	return db.queryProgress(ctx, progressSelect+`
		WHERE p.user_id = ? AND p.date = ? ORDER BY p.answered_at, p.id`, userID, formatDate(date))
}

// ResetProgress marks the live answer as reset so the question can be retried.
func (db *DB) ResetProgress(ctx context.Context, userID string, dailyQuestionID int64, date, at time.Time) (bool, error) {
	res, err := db.db.ExecContext(ctx, `
		UPDATE user_progress SET reset_at = ?
		WHERE user_id = ? AND daily_question_id = ? AND date = ? AND reset_at IS NULL
	`, formatTime(at), userID, dailyQuestionID, formatDate(date))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountAnswered returns the user's lifetime answer and correct-answer counts.
func (db *DB) CountAnswered(ctx context.Context, userID string) (int, int, error) {
	var total, correct int
	err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(correct), 0) FROM user_progress WHERE user_id = ? AND reset_at IS NULL`, userID,
	).Scan(&total, &correct)
	return total, correct, err
}

// ─── Premium Operations ─────────────────────────────────────────────────────

// IsPremium reports whether the user's premium period covers at.
func (db *DB) IsPremium(ctx context.Context, userID string, at time.Time) (bool, error) {
	var n int
	err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM premium_users WHERE user_id = ? AND until > ?`, userID, formatTime(at)).Scan(&n)
	return n > 0, err
}

// SetPremium grants premium until the given time.
func (db *DB) SetPremium(ctx context.Context, userID string, until time.Time) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO premium_users (user_id, until) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET until = excluded.until
	`, userID, formatTime(until))
	return err
}
