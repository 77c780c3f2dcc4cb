package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// ─── Gamification API ───────────────────────────────────────────────────────
// REST endpoints for the web client: profile, levels, streaks, achievements,
// the weekly challenge, leaderboards and notifications.
//
// GET  /api/levels                                  level table
// GET  /api/gamification/profile                    full gamification record
// GET  /api/gamification/level                      level, XP and progress
// GET  /api/gamification/streak                     current streak
// POST /api/gamification/streak                     record today's activity
// GET  /api/gamification/xp                         XP ledger
// POST /api/gamification/xp                         award XP
// GET  /api/gamification/achievements               catalog with progress
// POST /api/gamification/achievements/{id}/progress
// GET  /api/gamification/challenge                  this week's challenge
// POST /api/gamification/challenge/progress
// GET  /api/gamification/leaderboard                ?board=weekly_xp|lifetime_xp|streak
// GET  /api/gamification/notifications              pending notifications
// POST /api/gamification/notifications/{id}/shown
// GET  /api/gamification/summary                    dashboard snapshot

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"levels": domain.Levels(),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.game.Profile(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	lvl, err := s.game.Level(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lvl)
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	st, err := s.game.Streak(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_days":       st.Days,
		"longest_days":       st.Longest,
		"last_activity_date": domain.DateString(st.LastActivityDate),
	})
}

func (s *Server) handleUpdateStreak(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.UpdateStreak(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleXPHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.game.XPHistory(r.Context(), userFrom(r), queryInt(r, "limit", 50))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Points int64  `json:"points"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if body.Reason == "" {
		body.Reason = domain.ReasonManual
	}
	change, err := s.game.AwardXP(r.Context(), userFrom(r), body.Points, body.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"xp":         change,
		"leveled_up": change.LeveledUp(),
	})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	all, err := s.game.Achievements(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	earned := 0
	for _, a := range all {
		if a.Earned {
			earned++
		}
	}
	pct := 0.0
	if len(all) > 0 {
		pct = float64(earned) / float64(len(all)) * 100
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"achievements":   all,
		"earned_count":   earned,
		"total_count":    len(all),
		"completion_pct": pct,
	})
}

func (s *Server) handleAchievementProgress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Progress float64 `json:"progress"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, r, err)
		return
	}
	upd, err := s.game.UpdateAchievementProgress(r.Context(), userFrom(r), chi.URLParam(r, "id"), body.Progress)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upd)
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	st, err := s.game.ChallengeStatus(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleChallengeProgress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Delta int64 `json:"delta"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, r, err)
		return
	}
	st, err := s.game.AddChallengeProgress(r.Context(), userFrom(r), body.Delta)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := domain.ParseBoard(r.URL.Query().Get("board"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "unknown board")
		return
	}
	entries, err := s.game.Top(r.Context(), board, queryInt(r, "limit", 10))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := map[string]interface{}{
		"board":   board,
		"entries": entries,
	}
	if user := userFrom(r); user != "" {
		rank, err := s.game.Rank(r.Context(), board, user)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		resp["rank"] = rank
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	pending, err := s.game.PendingNotifications(r.Context(), userFrom(r), queryInt(r, "limit", 10))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": pending,
	})
}

func (s *Server) handleNotificationShown(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid notification id")
		return
	}
	if err := s.game.MarkNotificationShown(r.Context(), userFrom(r), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.game.Summary(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// queryInt reads a positive integer query parameter.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
