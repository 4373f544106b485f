// Package speech provides the HTTP engine for a local speech server. The
// server owns audio output; this client drives it and times utterance end
// from the duration the server reports.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HTTPConfig holds configuration for the HTTP engine
type HTTPConfig struct {
	ServerURL string        `json:"server_url"` // e.g., "http://localhost:8880"
	Timeout   time.Duration `json:"timeout"`
}

// DefaultHTTPConfig returns sensible defaults
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		ServerURL: "http://localhost:8880",
		Timeout:   10 * time.Second,
	}
}

// HTTPEngine speaks through a local speech server
type HTTPEngine struct {
	config     *HTTPConfig
	httpClient *http.Client
	logger     zerolog.Logger

	mu     sync.Mutex
	active *httpUtterance
}

// httpUtterance times a server-side utterance
type httpUtterance struct {
	timer     *time.Timer
	remaining time.Duration
	startedAt time.Time
	paused    bool
}

// speakResponse is the server's reply to POST /speak
type speakResponse struct {
	DurationMs float64 `json:"duration_ms"`
}

// NewHTTPEngine creates an HTTP speech engine
func NewHTTPEngine(config *HTTPConfig, logger zerolog.Logger) *HTTPEngine {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHTTPConfig().Timeout
	}

	return &HTTPEngine{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.With().Str("engine", "http").Logger(),
	}
}

// Name returns the engine identifier
func (e *HTTPEngine) Name() string {
	return "http"
}

// Speak posts the utterance to the server and arms the end timer from the
// duration the server reports
func (e *HTTPEngine) Speak(ctx context.Context, req Request, cb Callbacks) error {
	e.Cancel()

	payload := map[string]interface{}{
		"text":     req.Text,
		"voice_id": req.VoiceID,
		"rate":     req.Rate,
		"pitch":    req.Pitch,
		"volume":   req.Volume,
	}

	body, err := e.post(ctx, "/speak", payload)
	if err != nil {
		return err
	}

	duration := EstimateDuration(req.Text, req.Rate)
	var parsed speakResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.DurationMs > 0 {
		duration = time.Duration(parsed.DurationMs * float64(time.Millisecond))
	}

	utt := &httpUtterance{
		remaining: duration,
		startedAt: time.Now(),
	}
	utt.timer = time.AfterFunc(duration, func() {
		e.mu.Lock()
		current := e.active == utt
		if current {
			e.active = nil
		}
		e.mu.Unlock()

		if current && cb.OnEnd != nil {
			cb.OnEnd()
		}
	})

	e.mu.Lock()
	e.active = utt
	e.mu.Unlock()

	e.logger.Debug().
		Str("voice", req.VoiceID).
		Int("textLen", len(req.Text)).
		Dur("duration", duration).
		Msg("Speaking via speech server")

	if cb.OnStart != nil {
		cb.OnStart()
	}
	return nil
}

// Pause suspends the server-side utterance and parks the end timer
func (e *HTTPEngine) Pause() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.Timeout)
	defer cancel()

	if _, err := e.post(ctx, "/pause", nil); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ErrNoUtterance
	}
	if !e.active.paused {
		e.active.timer.Stop()
		elapsed := time.Since(e.active.startedAt)
		e.active.remaining -= elapsed
		if e.active.remaining < 0 {
			e.active.remaining = 0
		}
		e.active.paused = true
	}
	return nil
}

// Resume continues the server-side utterance and re-arms the end timer
func (e *HTTPEngine) Resume() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.Timeout)
	defer cancel()

	if _, err := e.post(ctx, "/resume", nil); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ErrNoUtterance
	}
	if e.active.paused {
		e.active.startedAt = time.Now()
		e.active.timer.Reset(e.active.remaining)
		e.active.paused = false
	}
	return nil
}

// Cancel stops the server-side utterance and disarms the end timer
func (e *HTTPEngine) Cancel() error {
	e.mu.Lock()
	utt := e.active
	e.active = nil
	e.mu.Unlock()

	if utt == nil {
		return nil
	}
	utt.timer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), e.config.Timeout)
	defer cancel()
	_, err := e.post(ctx, "/stop", nil)
	return err
}

// SetVolume adjusts playback volume live on the server
func (e *HTTPEngine) SetVolume(v float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.Timeout)
	defer cancel()

	_, err := e.post(ctx, "/volume", map[string]interface{}{"volume": v})
	return err
}

// Voices fetches the server's voice catalog
func (e *HTTPEngine) Voices(ctx context.Context) ([]Voice, error) {
	url := e.config.ServerURL + "/voices"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create voices request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech server returned status %d", resp.StatusCode)
	}

	var voices []Voice
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}
	return voices, nil
}

// Health checks if the speech server is reachable
func (e *HTTPEngine) Health(ctx context.Context) error {
	url := e.config.ServerURL + "/health"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("speech server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("speech server unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// post sends a JSON request to the server and returns the response body
func (e *HTTPEngine) post(ctx context.Context, path string, payload map[string]interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.config.ServerURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("speech server returned status %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
