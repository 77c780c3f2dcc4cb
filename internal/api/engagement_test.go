package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cittadino-app/cittadino/internal/app/dailyquestion"
	"github.com/cittadino-app/cittadino/internal/app/gamification"
	"github.com/cittadino-app/cittadino/internal/domain"
	"github.com/cittadino-app/cittadino/internal/infra/sqlite"
)

// ─── Test Harness ───────────────────────────────────────────────────────────

var testNow = time.Date(2026, 5, 13, 9, 0, 0, 0, time.UTC)

type harness struct {
	srv  *Server
	h    http.Handler
	db   *sqlite.DB
	game *gamification.Service
}

func setupServer(t *testing.T, cfg Config, opts ...func(*Server)) *harness {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	game := gamification.New(gamification.DefaultConfig(), db)
	game.SetClock(func() time.Time { return testNow })
	daily := dailyquestion.New(dailyquestion.DefaultConfig(), db, game)

	srv := NewServer(cfg, game, daily)
	for _, o := range opts {
		o(srv)
	}
	return &harness{srv: srv, h: srv.Handler(), db: db, game: game}
}

func testConfig() Config {
	return Config{CORSOrigins: []string{"*"}, RequestTimeout: 5 * time.Second}
}

func (h *harness) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	h.h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	e, _ := decode(t, w)["error"].(map[string]interface{})
	s, _ := e["type"].(string)
	return s
}

// ─── Gamification API Tests ─────────────────────────────────────────────────

func TestHealthAndLevels(t *testing.T) {
	h := setupServer(t, testConfig())

	w := h.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || decode(t, w)["status"] != "ok" {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}

	w = h.do(t, http.MethodGet, "/api/levels", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	levels, _ := decode(t, w)["levels"].([]interface{})
	if len(levels) != domain.MaxLevel {
		t.Errorf("expected %d levels, got %d", domain.MaxLevel, len(levels))
	}
}

func TestRequiresUser(t *testing.T) {
	h := setupServer(t, testConfig())

	for _, path := range []string{"/api/gamification/profile", "/api/gamification/summary", "/api/daily/question"} {
		w := h.do(t, http.MethodGet, path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, w.Code)
		}
		if got := errorType(t, w); got != "unauthenticated" {
			t.Errorf("%s: error type = %q", path, got)
		}
	}
}

func TestAwardXPAndLevel(t *testing.T) {
	h := setupServer(t, testConfig())

	w := h.do(t, http.MethodPost, "/api/gamification/xp", "u1", map[string]interface{}{"points": 150})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["leveled_up"] != true {
		t.Errorf("expected leveled_up, got %v", resp["leveled_up"])
	}
	xp := resp["xp"].(map[string]interface{})
	if xp["new_level"] != float64(2) || xp["new_xp"] != float64(150) {
		t.Errorf("xp change = %v", xp)
	}

	w = h.do(t, http.MethodGet, "/api/gamification/level", "u1", nil)
	cur := decode(t, w)["current"].(map[string]interface{})
	if cur["level"] != float64(2) {
		t.Errorf("level = %v", cur["level"])
	}

	w = h.do(t, http.MethodGet, "/api/gamification/xp", "u1", nil)
	events, _ := decode(t, w)["events"].([]interface{})
	if len(events) != 1 {
		t.Errorf("expected 1 ledger row, got %d", len(events))
	}
}

func TestAwardXP_BadRequests(t *testing.T) {
	h := setupServer(t, testConfig())

	tests := []struct {
		name string
		body interface{}
	}{
		{"zero points", map[string]interface{}{"points": 0}},
		{"negative points", map[string]interface{}{"points": -5}},
		{"malformed body", "{points"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, http.MethodPost, "/api/gamification/xp", "u1", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestStreakEndpoints(t *testing.T) {
	h := setupServer(t, testConfig())

	w := h.do(t, http.MethodPost, "/api/gamification/streak", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode(t, w)["current_days"]; got != float64(1) {
		t.Errorf("current_days = %v", got)
	}

	// Idempotent within a day.
	h.do(t, http.MethodPost, "/api/gamification/streak", "u1", nil)

	w = h.do(t, http.MethodGet, "/api/gamification/streak", "u1", nil)
	resp := decode(t, w)
	if resp["current_days"] != float64(1) || resp["last_activity_date"] != "2026-05-13" {
		t.Errorf("streak = %v", resp)
	}
}

func TestAchievementEndpoints(t *testing.T) {
	h := setupServer(t, testConfig())

	w := h.do(t, http.MethodGet, "/api/gamification/achievements", "u1", nil)
	resp := decode(t, w)
	if resp["total_count"] != float64(len(domain.Achievements())) || resp["earned_count"] != float64(0) {
		t.Errorf("achievements = %v / %v", resp["earned_count"], resp["total_count"])
	}

	w = h.do(t, http.MethodPost, "/api/gamification/achievements/no_such/progress", "u1", map[string]interface{}{"progress": 1})
	if w.Code != http.StatusNotFound || errorType(t, w) != "unknown_achievement" {
		t.Errorf("unknown achievement: %d %s", w.Code, w.Body.String())
	}

	id := domain.StreakAchievementID(3)
	w = h.do(t, http.MethodPost, "/api/gamification/achievements/"+id+"/progress", "u1", map[string]interface{}{"progress": 3})
	if w.Code != http.StatusOK || decode(t, w)["unlocked"] != true {
		t.Fatalf("progress: %d %s", w.Code, w.Body.String())
	}
	w = h.do(t, http.MethodPost, "/api/gamification/achievements/"+id+"/progress", "u1", map[string]interface{}{"progress": 3})
	if decode(t, w)["unlocked"] != false {
		t.Error("achievement unlocked twice")
	}
}

func TestChallengeEndpoints(t *testing.T) {
	h := setupServer(t, testConfig())

	w := h.do(t, http.MethodGet, "/api/gamification/challenge", "u1", nil)
	if w.Code != http.StatusNotFound || errorType(t, w) != "no_active_challenge" {
		t.Fatalf("expected no_active_challenge, got %d %s", w.Code, w.Body.String())
	}

	if _, err := h.game.RotateChallenge(context.Background(), testNow); err != nil {
		t.Fatal(err)
	}
	w = h.do(t, http.MethodPost, "/api/gamification/challenge/progress", "u1", map[string]interface{}{"delta": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	prog := decode(t, w)["progress"].(map[string]interface{})
	if prog["current_progress"] != float64(2) {
		t.Errorf("progress = %v", prog)
	}

	w = h.do(t, http.MethodPost, "/api/gamification/challenge/progress", "u1", map[string]interface{}{"delta": 0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("zero delta: expected 400, got %d", w.Code)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	h := setupServer(t, testConfig())
	ctx := context.Background()
	h.game.AwardXP(ctx, "anna", 50, domain.ReasonManual)
	h.game.AwardXP(ctx, "bruno", 100, domain.ReasonManual)

	w := h.do(t, http.MethodGet, "/api/gamification/leaderboard?board=weekly_xp", "anna", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode(t, w)
	entries := resp["entries"].([]interface{})
	if len(entries) != 2 || entries[0].(map[string]interface{})["user_id"] != "bruno" {
		t.Errorf("entries = %v", entries)
	}
	if resp["rank"] != float64(2) {
		t.Errorf("rank = %v", resp["rank"])
	}

	// Anonymous callers get the board without a rank.
	w = h.do(t, http.MethodGet, "/api/gamification/leaderboard", "", nil)
	if _, ok := decode(t, w)["rank"]; ok || w.Code != http.StatusOK {
		t.Errorf("anonymous leaderboard: %d %s", w.Code, w.Body.String())
	}

	w = h.do(t, http.MethodGet, "/api/gamification/leaderboard?board=nope", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad board: expected 400, got %d", w.Code)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	h := setupServer(t, testConfig())
	if _, err := h.game.AwardXP(context.Background(), "u1", 200, domain.ReasonManual); err != nil {
		t.Fatal(err)
	}

	w := h.do(t, http.MethodGet, "/api/gamification/notifications", "u1", nil)
	list, _ := decode(t, w)["notifications"].([]interface{})
	if len(list) == 0 {
		t.Fatal("expected a level-up notification")
	}
	id := int64(list[0].(map[string]interface{})["id"].(float64))

	w = h.do(t, http.MethodPost, fmt.Sprintf("/api/gamification/notifications/%d/shown", id), "u1", nil)
	if w.Code != http.StatusOK {
		t.Errorf("mark shown: %d %s", w.Code, w.Body.String())
	}
	w = h.do(t, http.MethodPost, fmt.Sprintf("/api/gamification/notifications/%d/shown", id), "someone-else", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("foreign notification: expected 404, got %d", w.Code)
	}
	w = h.do(t, http.MethodPost, "/api/gamification/notifications/abc/shown", "u1", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	h := setupServer(t, testConfig())
	w := h.do(t, http.MethodGet, "/api/gamification/summary", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if _, ok := resp["profile"]; !ok {
		t.Error("summary missing profile")
	}
	if _, ok := resp["level"]; !ok {
		t.Error("summary missing level")
	}
}

// ─── Middleware ─────────────────────────────────────────────────────────────

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 2
	h := setupServer(t, cfg)

	for i := 0; i < 2; i++ {
		if w := h.do(t, http.MethodGet, "/api/levels", "u1", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}
	w := h.do(t, http.MethodGet, "/api/levels", "u1", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	// Buckets are per client.
	if w := h.do(t, http.MethodGet, "/api/levels", "u2", nil); w.Code != http.StatusOK {
		t.Errorf("other client: expected 200, got %d", w.Code)
	}
	// Health is not limited.
	if w := h.do(t, http.MethodGet, "/health", "u1", nil); w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}
	if n := h.srv.SweepLimiter(0); n != 2 {
		t.Errorf("SweepLimiter() = %d, want 2", n)
	}
}

func TestCORS(t *testing.T) {
	cfg := testConfig()
	cfg.CORSOrigins = []string{"https://app.example.it"}
	h := setupServer(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/levels", nil)
	req.Header.Set("Origin", "https://app.example.it")
	w := httptest.NewRecorder()
	h.h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "https://app.example.it" {
		t.Errorf("preflight: %d %v", w.Code, w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/levels", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.h.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unexpected CORS header for unknown origin")
	}
}
