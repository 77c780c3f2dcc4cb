package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cittadino-app/cittadino/internal/api"
	"github.com/cittadino-app/cittadino/internal/app/dailyquestion"
	"github.com/cittadino-app/cittadino/internal/app/gamification"
	"github.com/cittadino-app/cittadino/internal/app/newsletter"
	"github.com/cittadino-app/cittadino/internal/app/voice"
	"github.com/cittadino-app/cittadino/internal/domain"
	"github.com/cittadino-app/cittadino/internal/infra/cache"
	"github.com/cittadino-app/cittadino/internal/infra/postgres"
	"github.com/cittadino-app/cittadino/internal/infra/scheduler"
	"github.com/cittadino-app/cittadino/internal/infra/sqlite"
)

// Job names.
const (
	JobWeeklyReset     = "weekly_reset"
	JobDailyQuestions  = "daily_questions"
	JobLeaderboardSync = "leaderboard_sync"
)

const limiterIdle = 10 * time.Minute

// Daemon owns every long-lived component of the service.
type Daemon struct {
	cfg Config

	Store      domain.Store
	Game       *gamification.Service
	Daily      *dailyquestion.Service
	Voice      *voice.Router
	Newsletter *newsletter.Service
	Hub        *api.EventHub
	API        *api.Server
	Jobs       *scheduler.Scheduler

	redis *redis.Client
}

// New opens the store and assembles the services. Nothing listens until Run.
func New(ctx context.Context, cfg Config) (*Daemon, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	d := &Daemon{cfg: cfg, Store: store}
	d.Game = gamification.New(cfg.GamificationService(), store)

	if cfg.Redis.URL != "" {
		client, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			// Leaderboards fall back to the database.
			log.Printf("[daemon] redis unavailable, leaderboards served from the database: %v", err)
		} else {
			d.redis = client
			d.Game.SetCache(cache.NewLeaderboard(client, cfg.Redis.Prefix))
			if err := d.Game.WarmLeaderboards(ctx); err != nil {
				log.Printf("[daemon] warm leaderboards: %v", err)
			}
		}
	}

	d.Hub = api.NewEventHub()
	d.Game.SetPublisher(d.Hub)
	d.Daily = dailyquestion.New(cfg.DailyService(), store, d.Game)

	d.API = api.NewServer(cfg.APIServer(), d.Game, d.Daily)
	d.API.SetEventHub(d.Hub)
	if cfg.Voice.Enabled {
		d.Voice = voice.NewRouter(cfg.VoiceProviders()...)
		d.API.SetVoice(d.Voice)
		log.Printf("[daemon] speech providers: %v", d.Voice.Providers())
	}
	if cfg.Newsletter.Enabled {
		d.Newsletter = newsletter.New(store)
		d.API.SetNewsletter(d.Newsletter)
	}

	d.Jobs = scheduler.New(cfg.Location(), mustDuration(cfg.Scheduler.JobTimeout, 0))
	if err := d.Jobs.Weekly(JobWeeklyReset, cfg.Scheduler.WeeklyResetAt, d.weeklyReset); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.Jobs.Daily(JobDailyQuestions, cfg.Daily.GenerateAt, d.generateDaily); err != nil {
		d.Close()
		return nil, err
	}
	if d.redis != nil {
		every := mustDuration(cfg.Redis.SyncEvery, 10*time.Minute)
		if err := d.Jobs.Every(JobLeaderboardSync, every, d.Game.WarmLeaderboards); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

// OpenStore opens the configured database and applies its schema.
func OpenStore(ctx context.Context, cfg Config) (domain.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database.URL, cfg.PoolConfig())
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	case "sqlite", "":
		db, err := sqlite.Open(cfg.Database.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// ─── Jobs ───────────────────────────────────────────────────────────────────

// weeklyReset zeroes weekly XP and schedules the new week's challenge.
func (d *Daemon) weeklyReset(ctx context.Context) error {
	if _, err := d.Game.ResetWeekly(ctx); err != nil {
		return err
	}
	_, err := d.Game.RotateChallenge(ctx, d.Game.Now())
	return err
}

func (d *Daemon) generateDaily(ctx context.Context) error {
	_, err := d.Daily.Generate(ctx, d.Game.Today())
	return err
}

// Prepare makes sure the current week has a challenge and today has
// scheduled questions. Both steps are idempotent.
func (d *Daemon) Prepare(ctx context.Context) error {
	if _, err := d.Game.RotateChallenge(ctx, d.Game.Now()); err != nil {
		return err
	}
	return d.generateDaily(ctx)
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.cfg.Addr(), err)
	}
	return d.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	if err := d.Prepare(ctx); err != nil {
		log.Printf("[daemon] prepare: %v", err)
	}
	if d.cfg.Scheduler.Enabled {
		d.Jobs.Start()
		defer d.Jobs.Stop()
		log.Printf("[daemon] scheduler started: %v", d.Jobs.Names())
	}

	srv := &http.Server{
		Handler:           d.API.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go d.sweepLimiter(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[daemon] listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := mustDuration(d.cfg.Server.ShutdownTimeout, 15*time.Second)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log.Printf("[daemon] shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Event streams stay open until the client leaves.
		log.Printf("[daemon] graceful shutdown: %v", err)
		return srv.Close()
	}
	return nil
}

func (d *Daemon) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.API.SweepLimiter(limiterIdle); n > 0 {
				log.Printf("[daemon] dropped %d idle rate limiters", n)
			}
		}
	}
}

// Close releases the store and the cache connection.
func (d *Daemon) Close() error {
	if d.redis != nil {
		d.redis.Close()
	}
	return d.Store.Close()
}
