package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cittadino-app/cittadino/internal/app/gamification"
	"github.com/cittadino-app/cittadino/internal/domain"
)

func TestEventHub_RoutesByUser(t *testing.T) {
	hub := NewEventHub()
	mine, unsubMine := hub.Subscribe("u1")
	other, unsubOther := hub.Subscribe("u2")
	defer unsubOther()

	hub.Publish("u1", gamification.Event{Type: gamification.EventXP, Data: 10})

	select {
	case data := <-mine:
		var ev map[string]interface{}
		json.Unmarshal(data, &ev)
		if ev["type"] != gamification.EventXP {
			t.Errorf("event = %s", data)
		}
	default:
		t.Fatal("u1 did not receive its event")
	}
	select {
	case data := <-other:
		t.Errorf("u2 received %s", data)
	default:
	}

	if hub.ClientCount() != 2 {
		t.Errorf("ClientCount() = %d", hub.ClientCount())
	}
	unsubMine()
	unsubMine()
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() after unsubscribe = %d", hub.ClientCount())
	}
}

func TestEventHub_SSEStream(t *testing.T) {
	hub := NewEventHub()
	h := setupServer(t, testConfig(), func(s *Server) { s.SetEventHub(hub) })
	h.game.SetPublisher(hub)

	ts := httptest.NewServer(h.h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/gamification/events", nil)
	req.Header.Set(UserHeader, "u1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := h.game.AwardXP(context.Background(), "u1", 25, domain.ReasonManual); err != nil {
		t.Fatal(err)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev gamification.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		if ev.Type != gamification.EventXP {
			t.Errorf("first event type = %q, want %q", ev.Type, gamification.EventXP)
		}
		return
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
}

func TestEventHub_SSERequiresUser(t *testing.T) {
	h := setupServer(t, testConfig(), func(s *Server) { s.SetEventHub(NewEventHub()) })
	w := h.do(t, http.MethodGet, "/api/gamification/events", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}
