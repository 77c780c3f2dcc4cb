// Package api provides the HTTP server for cittadino: gamification, the
// daily question, voice and newsletter endpoints.
//
// The caller's identity arrives in the X-User-ID header, set by the auth
// gateway in front of the service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cittadino-app/cittadino/internal/app/dailyquestion"
	"github.com/cittadino-app/cittadino/internal/app/gamification"
	"github.com/cittadino-app/cittadino/internal/app/newsletter"
	"github.com/cittadino-app/cittadino/internal/app/voice"
	"github.com/cittadino-app/cittadino/internal/domain"
	"github.com/cittadino-app/cittadino/internal/infra/observability"
)

// Config controls the HTTP layer.
type Config struct {
	CORSOrigins    []string      // "*" allows any origin
	RateLimit      float64       // requests per second per client; 0 disables
	RateBurst      int           // bucket size per client
	RequestTimeout time.Duration // per request, streaming excluded
	Metrics        bool          // serve /metrics
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		CORSOrigins:    []string{"*"},
		RateLimit:      5,
		RateBurst:      30,
		RequestTimeout: 30 * time.Second,
		Metrics:        true,
	}
}

// Server is the cittadino HTTP API server.
type Server struct {
	cfg        Config
	game       *gamification.Service
	daily      *dailyquestion.Service
	voice      *voice.Router
	newsletter *newsletter.Service
	hub        *EventHub
	limiter    *clientLimiter
}

// NewServer creates a server over the core services.
func NewServer(cfg Config, game *gamification.Service, daily *dailyquestion.Service) *Server {
	s := &Server{cfg: cfg, game: game, daily: daily}
	if cfg.RateLimit > 0 {
		s.limiter = newClientLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return s
}

// SetVoice enables /api/voice.
func (s *Server) SetVoice(r *voice.Router) { s.voice = r }

// SetNewsletter enables /api/newsletter.
func (s *Server) SetNewsletter(n *newsletter.Service) { s.newsletter = n }

// SetEventHub enables the live event stream.
func (s *Server) SetEventHub(h *EventHub) { s.hub = h }

// SweepLimiter drops rate-limit state for clients idle longer than idle.
func (s *Server) SweepLimiter(idle time.Duration) int {
	if s.limiter == nil {
		return 0
	}
	return s.limiter.sweep(idle)
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.Instrument)
	r.Use(corsMiddleware(s.cfg.CORSOrigins))
	r.Use(identify)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}

		// Streaming stays outside the request timeout.
		if s.hub != nil {
			r.With(requireUser).Get("/gamification/events", s.hub.HandleSSE)
		}

		r.Group(func(r chi.Router) {
			if s.cfg.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.cfg.RequestTimeout))
			}

			r.Get("/levels", s.handleLevels)
			r.Get("/gamification/leaderboard", s.handleLeaderboard)

			r.Route("/gamification", func(r chi.Router) {
				r.Use(requireUser)
				r.Get("/profile", s.handleProfile)
				r.Get("/level", s.handleLevel)
				r.Get("/streak", s.handleStreak)
				r.Post("/streak", s.handleUpdateStreak)
				r.Get("/xp", s.handleXPHistory)
				r.Post("/xp", s.handleAwardXP)
				r.Get("/achievements", s.handleAchievements)
				r.Post("/achievements/{id}/progress", s.handleAchievementProgress)
				r.Get("/challenge", s.handleChallenge)
				r.Post("/challenge/progress", s.handleChallengeProgress)
				r.Get("/notifications", s.handleNotifications)
				r.Post("/notifications/{id}/shown", s.handleNotificationShown)
				r.Get("/summary", s.handleSummary)
			})

			r.Route("/daily", func(r chi.Router) {
				r.Use(requireUser)
				r.Get("/quota", s.handleQuota)
				r.Get("/question", s.handleNextQuestion)
				r.Get("/question/{id}", s.handleQuestionState)
				r.Post("/question/{id}/answer", s.handleAnswer)
				r.Delete("/question/{id}", s.handleResetQuestion)
			})

			if s.voice != nil {
				r.Post("/voice/speak", s.handleSpeak)
			}
			if s.newsletter != nil {
				r.Post("/newsletter/subscribe", s.handleSubscribe)
				r.Post("/newsletter/unsubscribe", s.handleUnsubscribe)
			}
		})
	})

	return r
}

// ─── Responses ──────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    kind,
		},
	})
}

var errorStatus = []struct {
	err    error
	status int
	kind   string
}{
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrUnknownAchievement, http.StatusNotFound, "unknown_achievement"},
	{domain.ErrNoActiveChallenge, http.StatusNotFound, "no_active_challenge"},
	{domain.ErrNoQuestionAvailable, http.StatusNotFound, "no_question_available"},
	{domain.ErrAlreadyAnswered, http.StatusConflict, "already_answered"},
	{domain.ErrQuestionNotServed, http.StatusConflict, "question_not_served"},
	{domain.ErrStreakConflict, http.StatusConflict, "streak_conflict"},
	{domain.ErrPremiumRequired, http.StatusForbidden, "premium_required"},
	{domain.ErrDailyLimitReached, http.StatusTooManyRequests, "daily_limit_reached"},
	{domain.ErrNoSpeechProvider, http.StatusServiceUnavailable, "no_speech_provider"},
}

// writeDomainError maps a service error to its HTTP status.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.kind, err.Error())
			return
		}
	}
	log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("request body: %v: %w", err, domain.ErrInvalidInput)
	}
	return nil
}

// corsMiddleware adds CORS headers for the allowed origins.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowed["*"]:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+UserHeader)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ─── Identity ───────────────────────────────────────────────────────────────

// UserHeader carries the authenticated user id.
const UserHeader = "X-User-ID"

const maxUserIDLength = 128

type ctxKey struct{}

// identify stores a well-formed X-User-ID in the request context.
func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserHeader))
		if id != "" && len(id) <= maxUserIDLength {
			r = r.WithContext(withUser(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// requireUser rejects requests without an identity.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userFrom(r) == "" {
			writeDomainError(w, r, domain.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withUser(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// userFrom returns the caller's id, or "" when anonymous.
func userFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}
