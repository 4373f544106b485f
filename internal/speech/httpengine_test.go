package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// speechServerRecorder captures requests made to a fake speech server
type speechServerRecorder struct {
	mu     sync.Mutex
	paths  []string
	bodies map[string][]byte
}

func (r *speechServerRecorder) record(path string, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	r.bodies[path] = body
}

func (r *speechServerRecorder) saw(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.paths {
		if p == path {
			return true
		}
	}
	return false
}

func (r *speechServerRecorder) body(path string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[path]
}

func newSpeechServer(t *testing.T, speakDurationMs float64) (*httptest.Server, *speechServerRecorder) {
	t.Helper()
	rec := &speechServerRecorder{bodies: make(map[string][]byte)}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.record(r.URL.Path, body)

		switch r.URL.Path {
		case "/speak":
			json.NewEncoder(w).Encode(map[string]float64{"duration_ms": speakDurationMs})
		case "/voices":
			json.NewEncoder(w).Encode([]Voice{
				{ID: "af_sky", Name: "Sky", Language: "en-US", Gender: "female"},
			})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func TestNewHTTPEngine_DefaultConfig(t *testing.T) {
	engine := NewHTTPEngine(nil, zerolog.Nop())

	assert.Equal(t, "http", engine.Name())
	assert.Equal(t, "http://localhost:8880", engine.config.ServerURL)
	assert.Equal(t, 10*time.Second, engine.config.Timeout)
}

func TestHTTPEngine_Speak(t *testing.T) {
	server, rec := newSpeechServer(t, 100)
	engine := NewHTTPEngine(&HTTPConfig{ServerURL: server.URL, Timeout: 2 * time.Second}, zerolog.Nop())

	started := make(chan struct{})
	ended := make(chan struct{})

	err := engine.Speak(context.Background(), Request{
		Text:    "hello there",
		VoiceID: "af_sky",
		Rate:    1.2,
		Pitch:   0.9,
		Volume:  0.8,
	}, Callbacks{
		OnStart: func() { close(started) },
		OnEnd:   func() { close(ended) },
	})
	require.NoError(t, err)

	select {
	case <-started:
	default:
		t.Fatal("OnStart should fire before Speak returns")
	}

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.body("/speak"), &payload))
	assert.Equal(t, "hello there", payload["text"])
	assert.Equal(t, "af_sky", payload["voice_id"])
	assert.InDelta(t, 1.2, payload["rate"], 0.001)

	// Server said 100ms; the end timer follows the server, not the estimate
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("OnEnd never fired")
	}
}

func TestHTTPEngine_SpeakServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	engine := NewHTTPEngine(&HTTPConfig{ServerURL: server.URL, Timeout: time.Second}, zerolog.Nop())

	err := engine.Speak(context.Background(), Request{Text: "hello"}, Callbacks{
		OnStart: func() { t.Error("OnStart fired for failed speak") },
	})
	assert.Error(t, err)
}

func TestHTTPEngine_CancelSuppressesEnd(t *testing.T) {
	server, rec := newSpeechServer(t, 60000)
	engine := NewHTTPEngine(&HTTPConfig{ServerURL: server.URL, Timeout: 2 * time.Second}, zerolog.Nop())

	ended := make(chan struct{})
	err := engine.Speak(context.Background(), Request{Text: "long speech"}, Callbacks{
		OnEnd: func() { close(ended) },
	})
	require.NoError(t, err)

	require.NoError(t, engine.Cancel())
	assert.True(t, rec.saw("/stop"))

	select {
	case <-ended:
		t.Fatal("OnEnd fired after Cancel")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHTTPEngine_PauseResume(t *testing.T) {
	server, rec := newSpeechServer(t, 200)
	engine := NewHTTPEngine(&HTTPConfig{ServerURL: server.URL, Timeout: 2 * time.Second}, zerolog.Nop())

	ended := make(chan struct{})
	err := engine.Speak(context.Background(), Request{Text: "pausable"}, Callbacks{
		OnEnd: func() { close(ended) },
	})
	require.NoError(t, err)

	require.NoError(t, engine.Pause())
	assert.True(t, rec.saw("/pause"))

	// Well past the 200ms the server reported; paused speech must not finish
	select {
	case <-ended:
		t.Fatal("OnEnd fired while paused")
	case <-time.After(500 * time.Millisecond):
	}

	require.NoError(t, engine.Resume())
	assert.True(t, rec.saw("/resume"))

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("OnEnd never fired after resume")
	}
}

func TestHTTPEngine_PauseWithoutUtterance(t *testing.T) {
	server, _ := newSpeechServer(t, 100)
	engine := NewHTTPEngine(&HTTPConfig{ServerURL: server.URL, Timeout: time.Second}, zerolog.Nop())

	assert.ErrorIs(t, engine.Pause(), ErrNoUtterance)
	assert.ErrorIs(t, engine.Resume(), ErrNoUtterance)
}

func TestHTTPEngine_SetVolume(t *testing.T) {
	server, rec := newSpeechServer(t, 100)
	engine := NewHTTPEngine(&HTTPConfig{ServerURL: server.URL, Timeout: time.Second}, zerolog.Nop())

	require.NoError(t, engine.SetVolume(0.5))

	var payload map[string]float64
	require.NoError(t, json.Unmarshal(rec.body("/volume"), &payload))
	assert.Equal(t, 0.5, payload["volume"])
}

func TestHTTPEngine_Voices(t *testing.T) {
	server, _ := newSpeechServer(t, 100)
	engine := NewHTTPEngine(&HTTPConfig{ServerURL: server.URL, Timeout: time.Second}, zerolog.Nop())

	voices, err := engine.Voices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "af_sky", voices[0].ID)
	assert.Equal(t, "Sky", voices[0].Name)
}

func TestHTTPEngine_Health(t *testing.T) {
	tests := []struct {
		name           string
		responseStatus int
		wantErr        bool
	}{
		{name: "server healthy", responseStatus: http.StatusOK, wantErr: false},
		{name: "server unavailable", responseStatus: http.StatusServiceUnavailable, wantErr: true},
		{name: "server error", responseStatus: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(tt.responseStatus)
			}))
			defer server.Close()

			engine := NewHTTPEngine(&HTTPConfig{ServerURL: server.URL, Timeout: time.Second}, zerolog.Nop())
			err := engine.Health(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHTTPEngine_HealthUnreachable(t *testing.T) {
	engine := NewHTTPEngine(&HTTPConfig{
		ServerURL: "http://127.0.0.1:1",
		Timeout:   500 * time.Millisecond,
	}, zerolog.Nop())

	assert.Error(t, engine.Health(context.Background()))
}
