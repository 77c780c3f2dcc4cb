// Package sqlite implements domain.Store on an embedded SQLite database.
// It backs local runs, the CLI and every test; production deployments use the
// postgres package with the same schema.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/cittadino-app/cittadino/internal/domain"
)

// FileName is the database file created inside the data directory.
const FileName = "cittadino.db"

// DB wraps the SQLite connection.
type DB struct {
	db *sql.DB
}

var _ domain.Store = (*DB)(nil)

// Open opens (creating if needed) the database inside dir and applies all
// migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dsn := "file:" + filepath.Join(dir, FileName) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps BEGIN/COMMIT sequences from tripping SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB}
	if err := db.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the connection.
func (db *DB) Close() error { return db.db.Close() }

// Migrate applies every schema statement. Statements are idempotent.
func (db *DB) Migrate() error {
	for _, group := range [][]string{GamificationMigrations(), QuestionMigrations(), MessagingMigrations()} {
		for _, stmt := range group {
			if _, err := db.db.Exec(stmt); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return domain.DateString(t)
}

func parseDate(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, _ := domain.ParseDate(ns.String, time.UTC)
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}
