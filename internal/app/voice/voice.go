// Package voice routes text-to-speech requests across speech backends.
//
// Providers are tried in order. A provider error, timeout or local rate-limit
// refusal falls through to the next one. The browser provider is always last
// and always succeeds: it tells the client to synthesize locally.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cittadino-app/cittadino/internal/domain"
	"github.com/cittadino-app/cittadino/internal/infra/observability"
)

// MaxTextLength bounds a single request, in characters.
const MaxTextLength = 5000

// ErrRateLimited is returned by a provider whose local budget is spent.
var ErrRateLimited = errors.New("provider rate limit exceeded")

// Request is text to speak.
type Request struct {
	Text     string `json:"text"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

// Fallback records a provider that was skipped.
type Fallback struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// Result is synthesized speech. With ClientSide set there is no audio and
// the caller synthesizes the text itself.
type Result struct {
	Provider    string     `json:"provider"`
	ClientSide  bool       `json:"clientSide"`
	ContentType string     `json:"content_type,omitempty"`
	Audio       []byte     `json:"audio,omitempty"`
	Fallbacks   []Fallback `json:"fallbacks"`
}

// Provider is one speech backend.
type Provider interface {
	Name() string
	Speak(ctx context.Context, req Request) (Result, error)
}

// ─── Browser ────────────────────────────────────────────────────────────────

// BrowserProvider defers synthesis to the client's speech engine.
type BrowserProvider struct{}

// BrowserName is the browser provider's name.
const BrowserName = "browser"

func (BrowserProvider) Name() string { return BrowserName }

func (BrowserProvider) Speak(context.Context, Request) (Result, error) {
	return Result{Provider: BrowserName, ClientSide: true}, nil
}

// ─── Router ─────────────────────────────────────────────────────────────────

// Router tries providers in order.
type Router struct {
	providers []Provider
}

// NewRouter builds a router over providers. A browser provider is appended
// unless one is already present.
func NewRouter(providers ...Provider) *Router {
	r := &Router{}
	hasBrowser := false
	for _, p := range providers {
		if p == nil {
			continue
		}
		if p.Name() == BrowserName {
			hasBrowser = true
		}
		r.providers = append(r.providers, p)
	}
	if !hasBrowser {
		r.providers = append(r.providers, BrowserProvider{})
	}
	return r
}

// Providers lists provider names in routing order.
func (r *Router) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// Speak returns speech from the first provider that succeeds.
func (r *Router) Speak(ctx context.Context, req Request) (Result, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return Result{}, fmt.Errorf("empty text: %w", domain.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(req.Text); n > MaxTextLength {
		return Result{}, fmt.Errorf("text has %d characters, max %d: %w", n, MaxTextLength, domain.ErrInvalidInput)
	}

	var fallbacks []Fallback
	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		start := time.Now()
		res, err := p.Speak(ctx, req)
		observability.SpeechLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			outcome := "error"
			if errors.Is(err, ErrRateLimited) {
				outcome = "rate_limited"
			}
			observability.SpeechRequests.WithLabelValues(p.Name(), outcome).Inc()
			log.Printf("[voice] %s failed: %v", p.Name(), err)
			fallbacks = append(fallbacks, Fallback{Provider: p.Name(), Reason: err.Error()})
			continue
		}
		observability.SpeechRequests.WithLabelValues(p.Name(), "ok").Inc()
		res.Provider = p.Name()
		res.Fallbacks = fallbacks
		if res.Fallbacks == nil {
			res.Fallbacks = []Fallback{}
		}
		return res, nil
	}
	return Result{Fallbacks: fallbacks}, domain.ErrNoSpeechProvider
}
