package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cittadino-app/cittadino/internal/app/voice"
)

// ─── Daily Question API ─────────────────────────────────────────────────────
// GET    /api/daily/quota                     today's answers vs. plan limit
// GET    /api/daily/question                  next question for the caller
// GET    /api/daily/question/{id}             today's answer state
// POST   /api/daily/question/{id}/answer      {"choice": 0-based index}
// DELETE /api/daily/question/{id}             premium retry

func dailyQuestionID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	q, err := s.daily.Quota(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"used":      q.Used,
		"limit":     q.Limit,
		"remaining": q.Remaining(),
		"premium":   q.Premium,
	})
}

func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	sel, err := s.daily.Next(r.Context(), userFrom(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

func (s *Server) handleQuestionState(w http.ResponseWriter, r *http.Request) {
	id, ok := dailyQuestionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid question id")
		return
	}
	state, err := s.daily.State(r.Context(), userFrom(r), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := dailyQuestionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid question id")
		return
	}
	var body struct {
		Choice *int `json:"choice"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if body.Choice == nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "choice is required")
		return
	}

	res, err := s.daily.Answer(r.Context(), userFrom(r), id, *body.Choice)
	if err != nil {
		if res.State == "" {
			writeDomainError(w, r, err)
			return
		}
		// Stored but not fully credited.
		log.Printf("[api] answer %d for %s: %v", id, userFrom(r), err)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := dailyQuestionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid question id")
		return
	}
	state, err := s.daily.Reset(r.Context(), userFrom(r), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}

// ─── Voice & Newsletter ─────────────────────────────────────────────────────

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req voice.Request
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	res, err := s.voice.Speak(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, r, err)
		return
	}
	token, err := s.newsletter.Subscribe(r.Context(), body.Email)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := map[string]interface{}{"status": "subscribed"}
	if token != "" {
		resp["token"] = token
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.newsletter.Unsubscribe(r.Context(), body.Token); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "unsubscribed"})
}
