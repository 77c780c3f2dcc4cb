// Package observability holds the Prometheus metrics of the service and the
// HTTP middleware that records request metrics.
//
// Metrics are package-level promauto collectors registered on the default
// registry, exposed by promhttp at /metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cittadino"

// ═══════════════════════════════════════════════════════════════════════════
// Gamification Metrics
// ═══════════════════════════════════════════════════════════════════════════

// XPAwarded counts XP points granted, by ledger reason.
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "gamification",
	Name:      "xp_awarded_total",
	Help:      "Total XP points awarded, by reason.",
}, []string{"reason"})

// LevelUps counts awards that crossed a level boundary.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "gamification",
	Name:      "level_ups_total",
	Help:      "Total XP awards that raised a user's level.",
})

// StreakUpdates counts streak updates by outcome (increased, unchanged, reset, protected).
var StreakUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "gamification",
	Name:      "streak_updates_total",
	Help:      "Total streak updates, by outcome.",
}, []string{"outcome"})

// StreakConflicts counts compare-and-swap retries on the streak row.
var StreakConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "gamification",
	Name:      "streak_cas_conflicts_total",
	Help:      "Total streak writes that lost a compare-and-swap and retried.",
})

// AchievementsEarned counts unlocked achievements by category.
var AchievementsEarned = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "gamification",
	Name:      "achievements_earned_total",
	Help:      "Total achievements unlocked, by category.",
}, []string{"category"})

// ChallengesCompleted counts weekly challenge completions.
var ChallengesCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "gamification",
	Name:      "challenges_completed_total",
	Help:      "Total weekly challenges completed.",
})

// LeaderboardFallbacks counts leaderboard reads served by the database
// because the cache failed.
var LeaderboardFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "leaderboard",
	Name:      "cache_fallbacks_total",
	Help:      "Total leaderboard reads served from the database after a cache error.",
})

// ─── Daily Question Metrics ─────────────────────────────────────────────────

// DailyAnswers counts answered daily questions by result (correct, incorrect).
var DailyAnswers = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "daily",
	Name:      "answers_total",
	Help:      "Total daily questions answered, by result.",
}, []string{"result"})

// DailySelections counts served questions by match kind (exact, category, any).
var DailySelections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "daily",
	Name:      "selections_total",
	Help:      "Total daily questions served, by how closely they matched the request.",
}, []string{"match"})

// DailyLimitHits counts requests refused by the daily quota.
var DailyLimitHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "daily",
	Name:      "limit_reached_total",
	Help:      "Total requests refused because the daily limit was reached, by plan.",
}, []string{"plan"})

// DailyGenerated counts daily question rows created by generation runs.
var DailyGenerated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "daily",
	Name:      "generated_total",
	Help:      "Total daily question rows created.",
})

// ─── Voice Metrics ──────────────────────────────────────────────────────────

// SpeechRequests counts speech attempts by provider and result (ok, error, rate_limited).
var SpeechRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "voice",
	Name:      "requests_total",
	Help:      "Total speech synthesis attempts, by provider and result.",
}, []string{"provider", "result"})

// SpeechLatency tracks provider latency.
var SpeechLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "voice",
	Name:      "latency_seconds",
	Help:      "Speech provider latency.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
}, []string{"provider"})

// ─── Job Metrics ────────────────────────────────────────────────────────────

// JobRuns counts scheduled job executions by job and result.
var JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "scheduler",
	Name:      "job_runs_total",
	Help:      "Total scheduled job runs, by job and result.",
}, []string{"job", "result"})

// ═══════════════════════════════════════════════════════════════════════════
// HTTP Metrics
// ═══════════════════════════════════════════════════════════════════════════

// HTTPRequests counts requests by route pattern, method and status.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "Total HTTP requests, by route, method and status code.",
}, []string{"route", "method", "status"})

// HTTPDuration tracks request latency by route pattern.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency, by route.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})

// Instrument records HTTP metrics labelled with the matched chi route pattern,
// so path parameters do not explode label cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
