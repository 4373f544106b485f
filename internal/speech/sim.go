package speech

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SimEngine times utterances without producing audio. It is the fallback
// when no real engine is available, so the rest of the system keeps its
// full behavior on machines with no TTS installed.
type SimEngine struct {
	logger zerolog.Logger

	mu     sync.Mutex
	active *simUtterance
	volume float64
}

type simUtterance struct {
	timer     *time.Timer
	remaining time.Duration
	startedAt time.Time
	paused    bool
}

// NewSimEngine creates a simulated speech engine
func NewSimEngine(logger zerolog.Logger) *SimEngine {
	return &SimEngine{
		logger: logger.With().Str("engine", "sim").Logger(),
		volume: 1.0,
	}
}

// Name returns the engine identifier
func (e *SimEngine) Name() string {
	return "sim"
}

// Speak arms a timer for the utterance's estimated duration
func (e *SimEngine) Speak(ctx context.Context, req Request, cb Callbacks) error {
	e.Cancel()

	duration := EstimateDuration(req.Text, req.Rate)
	utt := &simUtterance{
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
		Int("textLen", len(req.Text)).
		Dur("duration", duration).
		Msg("Simulating speech")

	if cb.OnStart != nil {
		cb.OnStart()
	}
	return nil
}

// Pause parks the end timer
func (e *SimEngine) Pause() error {
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

// Resume re-arms the end timer with the remaining duration
func (e *SimEngine) Resume() error {
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

// Cancel disarms the end timer so no callback fires
func (e *SimEngine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		e.active.timer.Stop()
		e.active = nil
	}
	return nil
}

// SetVolume records the volume; there is no audio to scale
func (e *SimEngine) SetVolume(v float64) error {
	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()
	return nil
}

// Volume returns the last volume passed to SetVolume
func (e *SimEngine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// Speaking reports whether an utterance timer is armed
func (e *SimEngine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Voices returns a small static catalog
func (e *SimEngine) Voices(ctx context.Context) ([]Voice, error) {
	return []Voice{
		{ID: "sim-en-1", Name: "Sim English", Language: "en-US", Gender: "neutral"},
		{ID: "sim-en-2", Name: "Sim English Alt", Language: "en-GB", Gender: "neutral"},
	}, nil
}

// Health always succeeds
func (e *SimEngine) Health(ctx context.Context) error {
	return nil
}
