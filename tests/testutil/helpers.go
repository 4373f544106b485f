// Package testutil holds shared helpers for the e2e and performance tests.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/normanking/voicedeck/internal/media"
	"github.com/normanking/voicedeck/internal/monitor"
	"github.com/normanking/voicedeck/internal/speech"
)

// CreateMockSpeechServer creates a fake speech server speaking the HTTP
// engine protocol. Every utterance reports the given duration.
func CreateMockSpeechServer(t *testing.T, speakDuration time.Duration) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})

		case "/speak":
			var req map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]interface{}{"error": "invalid request body"})
				return
			}
			if text, _ := req["text"].(string); text == "" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]interface{}{"error": "text is required"})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"duration_ms": float64(speakDuration.Milliseconds()),
			})

		case "/pause", "/resume", "/stop", "/volume":
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})

		case "/voices":
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": "server-en-1", "name": "Server English", "language": "en-US", "gender": "female"},
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// MockEngine is a speech engine whose utterances finish only when the test
// says so. It records every request it receives.
type MockEngine struct {
	mu        sync.Mutex
	requests  []speech.Request
	callbacks speech.Callbacks
	active    bool
	paused    bool
	cancels   int
	speakErr  error
	healthErr error
}

// NewMockEngine creates a mock engine
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

// Name returns the engine identifier
func (e *MockEngine) Name() string {
	return "mock"
}

// Speak records the request and holds the utterance open until
// FinishActive or FailActive is called
func (e *MockEngine) Speak(_ context.Context, req speech.Request, cb speech.Callbacks) error {
	e.mu.Lock()
	if e.speakErr != nil {
		err := e.speakErr
		e.mu.Unlock()
		return err
	}
	e.requests = append(e.requests, req)
	e.callbacks = cb
	e.active = true
	e.paused = false
	e.mu.Unlock()

	if cb.OnStart != nil {
		cb.OnStart()
	}
	return nil
}

// Pause suspends the active utterance
func (e *MockEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return speech.ErrNoUtterance
	}
	e.paused = true
	return nil
}

// Resume continues a paused utterance
func (e *MockEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return speech.ErrNoUtterance
	}
	e.paused = false
	return nil
}

// Cancel discards the active utterance without firing its callbacks
func (e *MockEngine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		e.cancels++
	}
	e.active = false
	e.paused = false
	e.callbacks = speech.Callbacks{}
	return nil
}

// SetVolume is a no-op on the mock
func (e *MockEngine) SetVolume(_ float64) error {
	return nil
}

// Voices returns a single static voice
func (e *MockEngine) Voices(_ context.Context) ([]speech.Voice, error) {
	return []speech.Voice{
		{ID: "mock-en-1", Name: "Mock English", Language: "en-US", Gender: "neutral"},
	}, nil
}

// Health reports the configured health error, healthy by default
func (e *MockEngine) Health(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthErr
}

// FinishActive completes the active utterance as the engine would
func (e *MockEngine) FinishActive() {
	e.mu.Lock()
	cb := e.callbacks
	wasActive := e.active
	e.active = false
	e.paused = false
	e.callbacks = speech.Callbacks{}
	e.mu.Unlock()

	if wasActive && cb.OnEnd != nil {
		cb.OnEnd()
	}
}

// FailActive fails the active utterance with the given error
func (e *MockEngine) FailActive(err error) {
	e.mu.Lock()
	cb := e.callbacks
	wasActive := e.active
	e.active = false
	e.paused = false
	e.callbacks = speech.Callbacks{}
	e.mu.Unlock()

	if wasActive && cb.OnError != nil {
		cb.OnError(err)
	}
}

// SetSpeakErr makes subsequent Speak calls fail
func (e *MockEngine) SetSpeakErr(err error) {
	e.mu.Lock()
	e.speakErr = err
	e.mu.Unlock()
}

// SetHealthErr makes subsequent Health calls fail
func (e *MockEngine) SetHealthErr(err error) {
	e.mu.Lock()
	e.healthErr = err
	e.mu.Unlock()
}

// Speaking reports whether an utterance is active
func (e *MockEngine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Paused reports whether the active utterance is paused
func (e *MockEngine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// SpeakCount returns how many utterances have been started
func (e *MockEngine) SpeakCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

// CancelCount returns how many active utterances have been cancelled
func (e *MockEngine) CancelCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancels
}

// LastRequest returns the most recent speak request
func (e *MockEngine) LastRequest() (speech.Request, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.requests) == 0 {
		return speech.Request{}, false
	}
	return e.requests[len(e.requests)-1], true
}

// ScriptedDetector replays fixed detection labels in order, cycling when
// it runs out. Deterministic stand-in for the random detector.
type ScriptedDetector struct {
	mu       sync.Mutex
	emotions []string
	gestures []string
	ei, gi   int
}

// NewScriptedDetector creates a detector replaying the given labels. An
// empty gesture list means no gestures are ever reported.
func NewScriptedDetector(emotions, gestures []string) *ScriptedDetector {
	return &ScriptedDetector{emotions: emotions, gestures: gestures}
}

// DetectEmotion returns the next scripted emotion
func (d *ScriptedDetector) DetectEmotion(_ media.Frame) monitor.DetectionSample {
	d.mu.Lock()
	defer d.mu.Unlock()

	label := "neutral"
	if len(d.emotions) > 0 {
		label = d.emotions[d.ei%len(d.emotions)]
		d.ei++
	}
	return monitor.DetectionSample{Label: label, Confidence: 0.9, Timestamp: time.Now()}
}

// DetectGesture returns the next scripted gesture, on every frame
func (d *ScriptedDetector) DetectGesture(_ media.Frame) (monitor.DetectionSample, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.gestures) == 0 {
		return monitor.DetectionSample{}, false
	}
	label := d.gestures[d.gi%len(d.gestures)]
	d.gi++
	return monitor.DetectionSample{Label: label, Confidence: 0.9, Timestamp: time.Now()}, true
}

// WaitFor polls until cond returns true or the timeout elapses
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
