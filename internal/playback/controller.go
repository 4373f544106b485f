package playback

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/normanking/voicedeck/internal/bus"
	"github.com/normanking/voicedeck/internal/settings"
	"github.com/normanking/voicedeck/internal/speech"
	"github.com/rs/zerolog"
)

// Controller owns the playback session and drives the speech engine.
// A generation counter tied to each utterance keeps late ticker ticks and
// engine callbacks from touching a session that has moved on.
type Controller struct {
	config   *Config
	engine   speech.Engine
	store    *settings.Store
	eventBus *bus.EventBus
	logger   zerolog.Logger
	history  *History

	stateMu      sync.RWMutex
	session      Session
	generation   int
	progressStep float64
	tickerCancel context.CancelFunc

	listenMu     sync.Mutex
	listenCancel context.CancelFunc

	levelFn func() float64
}

// NewController creates a playback controller
func NewController(config *Config, engine speech.Engine, store *settings.Store, eventBus *bus.EventBus, logger zerolog.Logger) *Controller {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ProgressPeriod <= 0 {
		config.ProgressPeriod = DefaultConfig().ProgressPeriod
	}
	if config.ListenDelay <= 0 {
		config.ListenDelay = DefaultConfig().ListenDelay
	}
	if config.ClearDelay <= 0 {
		config.ClearDelay = DefaultConfig().ClearDelay
	}

	return &Controller{
		config:   config,
		engine:   engine,
		store:    store,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "playback").Logger(),
		history:  NewHistory(DefaultHistoryConfig()),
		session:  Session{Status: StatusIdle},
	}
}

// Engine returns the speech engine in use
func (c *Controller) Engine() speech.Engine {
	return c.engine
}

// History returns the utterance history
func (c *Controller) History() *History {
	return c.history
}

// Session returns a snapshot of the current session
func (c *Controller) Session() Session {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.session
}

// Status returns the current playback status
func (c *Controller) Status() Status {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.session.Status
}

// SetText stages the text the next Speak reads. Clearing the text resets
// the session to idle and cancels any utterance in flight.
func (c *Controller) SetText(text string) {
	c.stateMu.Lock()
	c.session.Text = text
	cleared := strings.TrimSpace(text) == "" && c.session.Status != StatusIdle
	var oldStatus Status
	if cleared {
		oldStatus = c.session.Status
		c.generation++
		c.stopTickerLocked()
		c.session.Status = StatusIdle
		c.session.Progress = 0
	}
	c.stateMu.Unlock()

	if cleared {
		c.engine.Cancel()
		c.publishState(oldStatus, StatusIdle)
		c.logger.Info().Msg("Text cleared, playback reset")
	}
}

// Speak starts speaking the staged text. Empty text and an unhealthy
// engine are logged no-ops; a prior utterance is cancelled.
func (c *Controller) Speak() {
	c.stateMu.RLock()
	text := c.session.Text
	muted := c.session.Muted
	c.stateMu.RUnlock()

	clean := speech.Sanitize(text)
	if clean == "" {
		c.logger.Debug().Msg("Nothing speakable, ignoring speak request")
		return
	}

	healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	err := c.engine.Health(healthCtx)
	cancel()
	if err != nil {
		c.logger.Warn().Err(err).Str("engine", c.engine.Name()).Msg("Speech engine unavailable, cannot speak")
		return
	}

	voice := c.store.Voice()
	env := c.store.Environment()
	volume := EffectiveVolume(voice.Volume, muted, env.AdaptToNoise, env.NoiseLevel)

	id := uuid.NewString()
	estimate := speech.EstimateDuration(clean, voice.Rate)
	step := 100.0
	if estimate > 0 {
		step = 100 * c.config.ProgressPeriod.Seconds() / estimate.Seconds()
	}

	c.stateMu.Lock()
	c.generation++
	gen := c.generation
	c.stopTickerLocked()
	oldStatus := c.session.Status
	c.session.ID = id
	c.session.Progress = 0
	c.progressStep = step
	c.stateMu.Unlock()

	req := speech.Request{
		Text:    clean,
		VoiceID: voice.VoiceID,
		Rate:    voice.Rate,
		Pitch:   voice.Pitch,
		Volume:  volume,
	}
	cb := speech.Callbacks{
		OnStart: func() {
			c.logger.Debug().Str("id", id).Msg("Engine started speaking")
		},
		OnEnd:   func() { c.handleEnd(gen, id) },
		OnError: func(err error) { c.handleError(gen, id, err) },
	}

	if err := c.engine.Speak(context.Background(), req, cb); err != nil {
		c.stateMu.Lock()
		if gen == c.generation {
			c.session.Status = StatusIdle
			c.session.Progress = 0
		}
		c.stateMu.Unlock()

		c.logger.Error().Err(err).Msg("Speech synthesis failed")
		c.publish(bus.EventTypePlaybackError, map[string]any{"id": id, "error": err.Error()})
		return
	}

	c.stateMu.Lock()
	if gen != c.generation {
		c.stateMu.Unlock()
		return
	}
	c.session.Status = StatusSpeaking
	tickerCtx, tickerCancel := context.WithCancel(context.Background())
	c.tickerCancel = tickerCancel
	c.stateMu.Unlock()

	go c.runProgress(tickerCtx, gen, step)

	c.history.Add(Record{ID: id, Text: clean, Voice: voice.VoiceID, Started: time.Now()})
	c.logger.Info().
		Str("id", id).
		Str("engine", c.engine.Name()).
		Int("textLen", len(clean)).
		Float64("volume", volume).
		Msg("Speaking")
	c.publishState(oldStatus, StatusSpeaking)
}

// Pause suspends speech; a no-op unless speaking
func (c *Controller) Pause() {
	c.stateMu.Lock()
	if c.session.Status != StatusSpeaking {
		c.stateMu.Unlock()
		c.logger.Debug().Msg("Pause ignored, not speaking")
		return
	}
	c.stopTickerLocked()
	c.session.Status = StatusPaused
	c.stateMu.Unlock()

	if err := c.engine.Pause(); err != nil {
		c.logger.Warn().Err(err).Msg("Engine pause failed")
	}
	c.publishState(StatusSpeaking, StatusPaused)
	c.logger.Info().Msg("Playback paused")
}

// Resume continues paused speech; a no-op unless paused
func (c *Controller) Resume() {
	c.stateMu.Lock()
	if c.session.Status != StatusPaused {
		c.stateMu.Unlock()
		c.logger.Debug().Msg("Resume ignored, not paused")
		return
	}
	gen := c.generation
	step := c.progressStep
	c.session.Status = StatusSpeaking
	tickerCtx, tickerCancel := context.WithCancel(context.Background())
	c.tickerCancel = tickerCancel
	c.stateMu.Unlock()

	if err := c.engine.Resume(); err != nil {
		c.logger.Warn().Err(err).Msg("Engine resume failed")
	}
	go c.runProgress(tickerCtx, gen, step)
	c.publishState(StatusPaused, StatusSpeaking)
	c.logger.Info().Msg("Playback resumed")
}

// Stop cancels speech from any non-idle state. Progress resets and no
// further events fire for the stopped session.
func (c *Controller) Stop() {
	c.stateMu.Lock()
	if c.session.Status == StatusIdle {
		c.stateMu.Unlock()
		return
	}
	c.generation++
	c.stopTickerLocked()
	oldStatus := c.session.Status
	c.session.Status = StatusStopped
	c.session.Progress = 0
	id := c.session.ID
	c.stateMu.Unlock()

	c.engine.Cancel()
	c.history.Finish(id, false)
	c.publishState(oldStatus, StatusStopped)
	c.logger.Info().Str("id", id).Msg("Playback stopped")
}

// ToggleMute flips mute and pushes the resulting volume to engines that
// support live volume. The stored volume setting is untouched.
func (c *Controller) ToggleMute() bool {
	c.stateMu.Lock()
	c.session.Muted = !c.session.Muted
	muted := c.session.Muted
	c.stateMu.Unlock()

	voice := c.store.Voice()
	env := c.store.Environment()
	volume := EffectiveVolume(voice.Volume, muted, env.AdaptToNoise, env.NoiseLevel)
	if err := c.engine.SetVolume(volume); err != nil {
		c.logger.Warn().Err(err).Msg("Engine volume change failed")
	}

	c.publish(bus.EventTypePlaybackMuteChanged, map[string]any{"muted": muted})
	c.logger.Info().Bool("muted", muted).Msg("Mute toggled")
	return muted
}

// Close cancels the utterance, the progress ticker and the listen window
func (c *Controller) Close() {
	c.cancelListening()

	c.stateMu.Lock()
	c.generation++
	c.stopTickerLocked()
	c.stateMu.Unlock()

	c.engine.Cancel()
	c.logger.Debug().Msg("Playback controller closed")
}

// handleEnd finishes a session when its engine reports a natural end
func (c *Controller) handleEnd(gen int, id string) {
	c.stateMu.Lock()
	if gen != c.generation {
		c.stateMu.Unlock()
		return
	}
	c.generation++
	c.stopTickerLocked()
	oldStatus := c.session.Status
	c.session.Status = StatusIdle
	c.session.Progress = 100
	c.stateMu.Unlock()

	c.history.Finish(id, true)
	c.publish(bus.EventTypePlaybackProgress, map[string]any{"id": id, "progress": 100.0})
	c.publishState(oldStatus, StatusIdle)
	c.logger.Info().Str("id", id).Msg("Utterance finished")
}

// handleError resets the session when synthesis fails mid-utterance
func (c *Controller) handleError(gen int, id string, err error) {
	c.stateMu.Lock()
	if gen != c.generation {
		c.stateMu.Unlock()
		return
	}
	c.generation++
	c.stopTickerLocked()
	oldStatus := c.session.Status
	c.session.Status = StatusIdle
	c.session.Progress = 0
	c.stateMu.Unlock()

	c.history.Finish(id, false)
	c.publish(bus.EventTypePlaybackError, map[string]any{"id": id, "error": err.Error()})
	c.publishState(oldStatus, StatusIdle)
	c.logger.Warn().Err(err).Str("id", id).Msg("Synthesis error, playback reset")
}

// runProgress advances estimated progress until the session moves on
func (c *Controller) runProgress(ctx context.Context, gen int, step float64) {
	ticker := time.NewTicker(c.config.ProgressPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.advanceProgress(gen, step) {
				return
			}
		}
	}
}

// advanceProgress applies one tick; false means the tick belongs to a
// session that is no longer speaking
func (c *Controller) advanceProgress(gen int, step float64) bool {
	c.stateMu.Lock()
	if gen != c.generation || c.session.Status != StatusSpeaking {
		c.stateMu.Unlock()
		return false
	}
	p := c.session.Progress + step
	if p > progressCap {
		p = progressCap
	}
	c.session.Progress = p
	id := c.session.ID
	c.stateMu.Unlock()

	c.publish(bus.EventTypePlaybackProgress, map[string]any{"id": id, "progress": p})
	return true
}

// stopTickerLocked cancels the ticker goroutine (caller holds stateMu)
func (c *Controller) stopTickerLocked() {
	if c.tickerCancel != nil {
		c.tickerCancel()
		c.tickerCancel = nil
	}
}

func (c *Controller) publish(eventType bus.EventType, data map[string]any) {
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: eventType, Data: data})
	}
}

func (c *Controller) publishState(oldStatus, newStatus Status) {
	if oldStatus == newStatus {
		return
	}
	c.publish(bus.EventTypePlaybackStateChanged, map[string]any{
		"old_state": string(oldStatus),
		"new_state": string(newStatus),
	})
}
