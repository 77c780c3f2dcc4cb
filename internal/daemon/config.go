package daemon

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/cittadino-app/cittadino/internal/api"
	"github.com/cittadino-app/cittadino/internal/app/dailyquestion"
	"github.com/cittadino-app/cittadino/internal/app/gamification"
	"github.com/cittadino-app/cittadino/internal/app/voice"
	"github.com/cittadino-app/cittadino/internal/infra/postgres"
)

// Config is the on-disk configuration (cittadino.toml). Secrets are never
// read from the file; they come from the environment or a .env file.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Database     DatabaseConfig     `toml:"database"`
	Redis        RedisConfig        `toml:"redis"`
	Gamification GamificationConfig `toml:"gamification"`
	Daily        DailyConfig        `toml:"daily"`
	Scheduler    SchedulerConfig    `toml:"scheduler"`
	Voice        VoiceConfig        `toml:"voice"`
	Newsletter   NewsletterConfig   `toml:"newsletter"`
}

type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       float64  `toml:"rate_limit"` // requests per second per client
	RateBurst       int      `toml:"rate_burst"`
	RequestTimeout  string   `toml:"request_timeout"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	Metrics         bool     `toml:"metrics"`
}

type DatabaseConfig struct {
	Driver   string `toml:"driver"`   // "sqlite" or "postgres"
	DataDir  string `toml:"data_dir"` // sqlite only
	URL      string `toml:"-"`        // DATABASE_URL
	MaxConns int32  `toml:"max_conns"`
	MinConns int32  `toml:"min_conns"`
}

type RedisConfig struct {
	URL       string `toml:"-"` // REDIS_URL; empty disables the cache
	Prefix    string `toml:"prefix"`
	SyncEvery string `toml:"sync_every"` // leaderboard resync from the database
}

type GamificationConfig struct {
	Timezone             string `toml:"timezone"`
	StreakProtectionDays int    `toml:"streak_protection_days"`
}

type DailyConfig struct {
	HistorySize int    `toml:"history_size"`
	GenerateAt  string `toml:"generate_at"` // HH:MM, local time
}

type SchedulerConfig struct {
	Enabled       bool   `toml:"enabled"`
	WeeklyResetAt string `toml:"weekly_reset_at"` // Mondays, HH:MM
	JobTimeout    string `toml:"job_timeout"`
}

type VoiceConfig struct {
	Enabled   bool                  `toml:"enabled"`
	Providers []VoiceProviderConfig `toml:"providers"`
}

// VoiceProviderConfig is one hosted speech API, tried in file order.
type VoiceProviderConfig struct {
	Name      string  `toml:"name"`
	Endpoint  string  `toml:"endpoint"`
	Model     string  `toml:"model"`
	Voice     string  `toml:"voice"`
	Timeout   string  `toml:"timeout"`
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
	APIKeyEnv string  `toml:"api_key_env"`
}

type NewsletterConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimit:       5,
			RateBurst:       30,
			RequestTimeout:  "30s",
			ShutdownTimeout: "15s",
			Metrics:         true,
		},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			DataDir:  "data",
			MaxConns: 10,
			MinConns: 2,
		},
		Redis: RedisConfig{
			Prefix:    "cittadino",
			SyncEvery: "10m",
		},
		Gamification: GamificationConfig{
			Timezone:             "Europe/Rome",
			StreakProtectionDays: 3,
		},
		Daily: DailyConfig{
			HistorySize: 20,
			GenerateAt:  "00:05",
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			WeeklyResetAt: "00:00",
			JobTimeout:    "5m",
		},
		Voice: VoiceConfig{
			Enabled: true,
		},
		Newsletter: NewsletterConfig{
			Enabled: true,
		},
	}
}

// Load reads path over the defaults, then applies the environment.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("CITTADINO_DB_DRIVER"); v != "" {
		c.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("CITTADINO_DATA_DIR"); v != "" {
		c.Database.DataDir = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.DataDir == "" {
			return errors.New("database.data_dir is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q: want sqlite or postgres", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := time.LoadLocation(c.Gamification.Timezone); err != nil {
		return fmt.Errorf("gamification.timezone: %w", err)
	}
	for _, d := range []struct{ name, value string }{
		{"server.request_timeout", c.Server.RequestTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"scheduler.job_timeout", c.Scheduler.JobTimeout},
		{"redis.sync_every", c.Redis.SyncEvery},
	} {
		if _, err := parseDuration(d.value, 0); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	for i, p := range c.Voice.Providers {
		if p.Name == "" || p.Endpoint == "" {
			return fmt.Errorf("voice.providers[%d]: name and endpoint are required", i)
		}
		if _, err := parseDuration(p.Timeout, 0); err != nil {
			return fmt.Errorf("voice.providers[%d].timeout: %w", i, err)
		}
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ─── Conversions ────────────────────────────────────────────────────────────

// parseDuration accepts Go duration strings; empty means def.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func mustDuration(s string, def time.Duration) time.Duration {
	d, err := parseDuration(s, def)
	if err != nil {
		return def
	}
	return d
}

// Location resolves the gamification calendar.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Gamification.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GamificationService maps the file section onto the service config.
func (c Config) GamificationService() gamification.Config {
	gc := gamification.DefaultConfig()
	gc.Location = c.Location()
	if c.Gamification.StreakProtectionDays >= 0 {
		gc.StreakProtectionDays = c.Gamification.StreakProtectionDays
	}
	return gc
}

func (c Config) DailyService() dailyquestion.Config {
	return dailyquestion.Config{HistorySize: c.Daily.HistorySize}
}

func (c Config) APIServer() api.Config {
	ac := api.DefaultConfig()
	ac.CORSOrigins = c.Server.CORSOrigins
	ac.RateLimit = c.Server.RateLimit
	ac.RateBurst = c.Server.RateBurst
	ac.RequestTimeout = mustDuration(c.Server.RequestTimeout, ac.RequestTimeout)
	ac.Metrics = c.Server.Metrics
	return ac
}

func (c Config) PoolConfig() postgres.PoolConfig {
	pc := postgres.DefaultPoolConfig()
	if c.Database.MaxConns > 0 {
		pc.MaxConns = c.Database.MaxConns
	}
	if c.Database.MinConns >= 0 {
		pc.MinConns = c.Database.MinConns
	}
	return pc
}

// VoiceProviders builds the hosted providers in configured order. Providers
// whose key variable is unset are skipped.
func (c Config) VoiceProviders() []voice.Provider {
	var out []voice.Provider
	for _, p := range c.Voice.Providers {
		key := os.Getenv(p.APIKeyEnv)
		if p.APIKeyEnv == "" || key == "" {
			continue
		}
		out = append(out, voice.NewHTTPProvider(voice.HTTPConfig{
			Name:      p.Name,
			Endpoint:  p.Endpoint,
			APIKey:    key,
			Model:     p.Model,
			Voice:     p.Voice,
			Timeout:   mustDuration(p.Timeout, 0),
			RateLimit: p.RateLimit,
			Burst:     p.Burst,
		}))
	}
	return out
}
