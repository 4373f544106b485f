// Package dashboard serves the browser control panel: an embedded single
// page UI, a small JSON API and a websocket stream of bus events. The
// package owns no behavior of its own; requests are translated into
// component calls and bus events into websocket frames.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/normanking/voicedeck/internal/bus"
	"github.com/normanking/voicedeck/internal/config"
	"github.com/normanking/voicedeck/internal/logging"
	"github.com/normanking/voicedeck/internal/monitor"
	"github.com/normanking/voicedeck/internal/playback"
	"github.com/normanking/voicedeck/internal/settings"
)

//go:embed assets
var staticFiles embed.FS

const maxBodySize = 1 << 20

// Command actions accepted over the websocket
const (
	actionSpeak           = "speak"
	actionPause           = "pause"
	actionResume          = "resume"
	actionStop            = "stop"
	actionToggleMute      = "toggle_mute"
	actionToggleListening = "toggle_listening"
	actionSetText         = "set_text"
	actionUpdateVoice     = "update_voice"
	actionSetAdaptToNoise = "set_adapt_to_noise"
	actionSetMonitor      = "set_monitor"
)

// streamedEvents lists the bus events forwarded to websocket clients
var streamedEvents = []bus.EventType{
	bus.EventTypePlaybackStateChanged,
	bus.EventTypePlaybackProgress,
	bus.EventTypePlaybackMuteChanged,
	bus.EventTypePlaybackError,
	bus.EventTypeInterruption,
	bus.EventTypeInterruptionCleared,
	bus.EventTypeListeningStarted,
	bus.EventTypeListeningStopped,
	bus.EventTypeVoiceUpdated,
	bus.EventTypeEnvironmentUpdated,
	bus.EventTypeEmotionDetected,
	bus.EventTypeGestureDetected,
	bus.EventTypeMonitorStarted,
	bus.EventTypeMonitorStopped,
	bus.EventTypeMonitorDenied,
	bus.EventTypeNoiseLevelChanged,
	bus.EventTypeNoiseSample,
	bus.EventTypeDeviceAcquired,
	bus.EventTypeDeviceReleased,
	bus.EventTypeEngineSelected,
	bus.EventTypeEngineUnavailable,
}

// Monitors groups the detection monitors the dashboard controls
type Monitors struct {
	Emotion *monitor.EmotionMonitor
	Gesture *monitor.GestureMonitor
	Noise   *monitor.NoiseMonitor
}

// Snapshot is the full dashboard state returned by /api/state
type Snapshot struct {
	Session      playback.Session             `json:"session"`
	Voice        settings.VoiceSettings       `json:"voice"`
	Environment  settings.EnvironmentSettings `json:"environment"`
	Monitors     []monitor.Status             `json:"monitors"`
	AmbientLevel float64                      `json:"ambientLevel"`
	Engine       string                       `json:"engine"`
}

// Server handles the dashboard HTTP server and its websocket hub
type Server struct {
	config     *config.Config
	log        *logging.Logger
	controller *playback.Controller
	store      *settings.Store
	monitors   Monitors
	hub        *Hub
	httpServer *http.Server
}

// New creates the dashboard server, subscribes its hub to the bus and
// hooks the logger's live stream into the websocket
func New(cfg *config.Config, controller *playback.Controller, store *settings.Store, monitors Monitors, eventBus *bus.EventBus, log *logging.Logger) *Server {
	s := &Server{
		config:     cfg,
		log:        log,
		controller: controller,
		store:      store,
		monitors:   monitors,
		hub:        NewHub(log.Component("dashboard")),
	}
	s.hub.OnCommand(s.dispatch)

	if eventBus != nil {
		eventBus.SubscribeMultiple(streamedEvents, func(event bus.Event) {
			s.hub.Broadcast(string(event.Type), event.Data)
		})
	}

	// Broadcast never logs, so streaming log entries cannot feed back
	log.SetOnLog(func(entry logging.LogEntry) {
		s.hub.Broadcast("log.entry", map[string]any{
			"timestamp": entry.Timestamp,
			"level":     entry.Level,
			"component": entry.Component,
			"message":   entry.Message,
			"data":      entry.Data,
		})
	})

	return s
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the dashboard route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/voices", s.handleVoices)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/log", s.handleLog)
	mux.HandleFunc("/ws", s.hub.HandleWS)
	mux.HandleFunc("/", s.handleStatic)

	return mux
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Server.Host + ":" + strconv.Itoa(s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("dashboard", "Starting dashboard server", map[string]interface{}{"addr": addr})

	go s.hub.Run()

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// dispatch translates one websocket command into component calls
func (s *Server) dispatch(cmd Command) {
	switch cmd.Action {
	case actionSpeak:
		if cmd.Text != "" {
			s.controller.SetText(cmd.Text)
		}
		s.controller.Speak()
	case actionPause:
		s.controller.Pause()
	case actionResume:
		s.controller.Resume()
	case actionStop:
		s.controller.Stop()
	case actionToggleMute:
		s.controller.ToggleMute()
	case actionToggleListening:
		s.controller.ToggleListening()
	case actionSetText:
		s.controller.SetText(cmd.Text)
	case actionUpdateVoice:
		if cmd.Voice != nil {
			s.store.UpdateVoice(*cmd.Voice)
		}
	case actionSetAdaptToNoise:
		s.store.SetAdaptToNoise(cmd.Enabled)
	case actionSetMonitor:
		s.setMonitor(cmd.Monitor, cmd.Enabled)
	default:
		s.log.Warn("dashboard", "Unknown dashboard command", map[string]interface{}{"action": cmd.Action})
	}
}

// setMonitor starts or stops a monitor by name. Start runs in its own
// goroutine because the permission prompt can take a while.
func (s *Server) setMonitor(name string, enabled bool) {
	var start func(context.Context) error
	var stop func()

	switch name {
	case "emotion":
		start, stop = s.monitors.Emotion.Start, s.monitors.Emotion.Stop
	case "gesture":
		start, stop = s.monitors.Gesture.Start, s.monitors.Gesture.Stop
	case "noise":
		start, stop = s.monitors.Noise.Start, s.monitors.Noise.Stop
	default:
		s.log.Warn("dashboard", "Unknown monitor", map[string]interface{}{"monitor": name})
		return
	}

	if !enabled {
		stop()
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := start(ctx); err != nil {
			s.log.Warn("dashboard", "Monitor failed to start", map[string]interface{}{
				"monitor": name,
				"error":   err.Error(),
			})
		}
	}()
}

func (s *Server) snapshot() Snapshot {
	return Snapshot{
		Session:     s.controller.Session(),
		Voice:       s.store.Voice(),
		Environment: s.store.Environment(),
		Monitors: []monitor.Status{
			s.monitors.Emotion.Status(),
			s.monitors.Gesture.Status(),
			s.monitors.Noise.Status(),
		},
		AmbientLevel: s.monitors.Noise.Level(),
		Engine:       s.controller.Engine().Name(),
	}
}

// handleState returns the full dashboard state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.snapshot())
}

// handleVoices returns the engine's voice catalog
func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	voices, err := s.controller.Engine().Voices(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, voices)
}

// handleSettings reads or updates the voice settings
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.store.Voice())

	case http.MethodPost, http.MethodPut:
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

		var upd settings.VoiceUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		writeJSON(w, s.store.UpdateVoice(upd))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHistory returns recent utterance records
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.controller.History().Records())
}

// handleLog returns recent log entries
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, s.log.GetHistory(limit))
}

// handleStatic serves the embedded UI
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	subFS, err := fs.Sub(staticFiles, "assets")
	if err != nil {
		http.Error(w, "Static files not available", http.StatusNotFound)
		return
	}

	if r.URL.Path == "/" {
		r.URL.Path = "/index.html"
	}
	http.FileServer(http.FS(subFS)).ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
