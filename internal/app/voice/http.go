package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPConfig describes a hosted speech API.
type HTTPConfig struct {
	Name      string
	Endpoint  string
	APIKey    string
	Model     string
	Voice     string
	Timeout   time.Duration
	RateLimit float64 // requests per second; 0 = unlimited
	Burst     int
}

// HTTPProvider calls a hosted speech API that takes a JSON body and answers
// with audio bytes.
type HTTPProvider struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
}

type speechRequest struct {
	Model    string `json:"model,omitempty"`
	Input    string `json:"input"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

type apiError struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// maxAudioBytes bounds a provider response.
const maxAudioBytes = 10 << 20

// NewHTTPProvider creates a hosted provider.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	p := &HTTPProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return p
}

func (p *HTTPProvider) Name() string { return p.cfg.Name }

// Speak posts the text and returns the audio.
func (p *HTTPProvider) Speak(ctx context.Context, req Request) (Result, error) {
	if p.cfg.Endpoint == "" || p.cfg.APIKey == "" {
		return Result{}, fmt.Errorf("%s is not configured", p.cfg.Name)
	}
	if p.limiter != nil && !p.limiter.Allow() {
		return Result{}, ErrRateLimited
	}

	voice := req.Voice
	if voice == "" {
		voice = p.cfg.Voice
	}
	body, err := json.Marshal(speechRequest{Model: p.cfg.Model, Input: req.Text, Voice: voice, Language: req.Language})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != nil {
			return Result{}, fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return Result{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "audio/") {
		return Result{}, fmt.Errorf("unexpected content type %q", ct)
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("empty audio")
	}
	return Result{ContentType: ct, Audio: data}, nil
}
