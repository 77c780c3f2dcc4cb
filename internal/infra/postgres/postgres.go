// Package postgres implements domain.Store on PostgreSQL through a pgx
// connection pool. The schema mirrors the sqlite package with native column
// types.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolConfig returns the pool limits used in production.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// DB wraps the pool.
type DB struct {
	pool *pgxpool.Pool
}

var _ domain.Store = (*DB)(nil)

// Open connects to databaseURL, pings it and applies the schema.
func Open(ctx context.Context, databaseURL string, pc PoolConfig) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	cfg.MinConns = pc.MinConns
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the pool.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Migrate applies the schema. Statements are idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS user_gamification (
		user_id            TEXT PRIMARY KEY,
		xp                 BIGINT NOT NULL DEFAULT 0 CHECK (xp >= 0),
		level              INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
		streak_days        INTEGER NOT NULL DEFAULT 0,
		longest_streak     INTEGER NOT NULL DEFAULT 0,
		last_activity_date DATE,
		protection_used_at DATE,
		last_xp_at         TIMESTAMPTZ,
		weekly_xp          BIGINT NOT NULL DEFAULT 0,
		lifetime_xp        BIGINT NOT NULL DEFAULT 0,
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_gamification_weekly ON user_gamification(weekly_xp DESC)`,
	`CREATE TABLE IF NOT EXISTS xp_events (
		id         BIGSERIAL PRIMARY KEY,
		user_id    TEXT NOT NULL,
		points     BIGINT NOT NULL,
		reason     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_xp_events_user ON xp_events(user_id, id DESC)`,
	`CREATE TABLE IF NOT EXISTS user_achievements (
		user_id        TEXT NOT NULL,
		achievement_id TEXT NOT NULL,
		progress       DOUBLE PRECISION NOT NULL DEFAULT 0,
		earned_at      TIMESTAMPTZ,
		updated_at     TIMESTAMPTZ,
		PRIMARY KEY (user_id, achievement_id)
	)`,
	`CREATE TABLE IF NOT EXISTS weekly_challenges (
		id        TEXT PRIMARY KEY,
		title     TEXT NOT NULL,
		metric    TEXT NOT NULL,
		target    BIGINT NOT NULL,
		reward_xp BIGINT NOT NULL DEFAULT 0,
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS challenge_progress (
		challenge_id     TEXT NOT NULL,
		user_id          TEXT NOT NULL,
		current_progress BIGINT NOT NULL DEFAULT 0,
		target           BIGINT NOT NULL DEFAULT 0,
		completed        BOOLEAN NOT NULL DEFAULT false,
		completed_at     TIMESTAMPTZ,
		PRIMARY KEY (challenge_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id            BIGSERIAL PRIMARY KEY,
		category      TEXT NOT NULL,
		difficulty    TEXT NOT NULL,
		prompt        TEXT NOT NULL,
		options       TEXT[] NOT NULL,
		correct_index INTEGER NOT NULL,
		explanation   TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (category, prompt)
	)`,
	`CREATE TABLE IF NOT EXISTS daily_questions (
		id          BIGSERIAL PRIMARY KEY,
		date        DATE NOT NULL,
		category    TEXT NOT NULL,
		difficulty  TEXT NOT NULL,
		question_id BIGINT NOT NULL REFERENCES questions(id),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (date, category, difficulty)
	)`,
	`CREATE TABLE IF NOT EXISTS user_progress (
		id                BIGSERIAL PRIMARY KEY,
		user_id           TEXT NOT NULL,
		daily_question_id BIGINT NOT NULL REFERENCES daily_questions(id),
		date              DATE NOT NULL,
		score             DOUBLE PRECISION NOT NULL,
		correct           BOOLEAN NOT NULL,
		answered_at       TIMESTAMPTZ NOT NULL,
		reset_at          TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_progress_live
		ON user_progress(user_id, daily_question_id, date) WHERE reset_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_progress_user_date ON user_progress(user_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_progress_user_time ON user_progress(user_id, answered_at DESC)`,
	`CREATE TABLE IF NOT EXISTS premium_users (
		user_id TEXT PRIMARY KEY,
		until   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         BIGSERIAL PRIMARY KEY,
		user_id    TEXT NOT NULL,
		kind       TEXT NOT NULL,
		title      TEXT NOT NULL,
		body       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		shown      BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications(user_id, shown, created_at)`,
	`CREATE TABLE IF NOT EXISTS newsletter_subscriptions (
		email           TEXT PRIMARY KEY,
		token           TEXT NOT NULL UNIQUE,
		created_at      TIMESTAMPTZ NOT NULL,
		unsubscribed_at TIMESTAMPTZ
	)`,
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// dateArg passes a calendar date as its Y-M-D, or NULL for the zero time.
func dateArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return domain.CalendarDate(t, time.UTC)
}

func timeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (db *DB) ensureProfile(ctx context.Context, q interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}, userID string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO user_gamification (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}
