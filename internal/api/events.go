package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/cittadino-app/cittadino/internal/app/gamification"
)

// ─── Live Events ────────────────────────────────────────────────────────────
// Gamification events (XP, level-ups, streaks, achievements, challenges and
// notifications) are pushed to the owning user's open streams over
// Server-Sent Events.

// EventHub fans events out to subscribed clients.
type EventHub struct {
	mu      sync.Mutex
	clients map[chan []byte]string // channel → user id
}

var _ gamification.Publisher = (*EventHub)(nil)

// NewEventHub creates an event hub.
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[chan []byte]string)}
}

// Publish sends ev to every stream of userID. Slow clients drop events.
func (h *EventHub) Publish(userID string, ev gamification.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, owner := range h.clients {
		if owner != userID {
			continue
		}
		select {
		case ch <- data:
		default:
		}
	}
}

// Subscribe registers a stream for userID. Returns the channel and an
// unsubscribe func.
func (h *EventHub) Subscribe(userID string) (chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[ch] = userID
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// ClientCount returns the number of open streams.
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleSSE streams the caller's events.
// GET /api/gamification/events
func (h *EventHub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsub := h.Subscribe(userFrom(r))
	defer unsub()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
