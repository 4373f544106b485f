// Package speech provides speech synthesis engines for VoiceDeck.
// Engines speak through the system rather than returning audio; the
// playback controller drives them via pause/resume/cancel.
package speech

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrEngineUnavailable = errors.New("speech engine unavailable")
	ErrNoUtterance       = errors.New("no active utterance")
)

// Engine is the interface all speech engines implement
type Engine interface {
	// Name returns the engine identifier (e.g., "espeak", "sim")
	Name() string

	// Speak starts one utterance. It returns once synthesis has started;
	// completion arrives through the callbacks. A new Speak cancels any
	// utterance still in flight.
	Speak(ctx context.Context, req Request, cb Callbacks) error

	// Pause suspends the active utterance
	Pause() error

	// Resume continues a paused utterance
	Resume() error

	// Cancel discards the active utterance. No callback fires for it.
	Cancel() error

	// SetVolume adjusts playback volume live where the engine supports
	// it; other engines pick the volume up on the next utterance
	SetVolume(v float64) error

	// Voices returns the available voices
	Voices(ctx context.Context) ([]Voice, error)

	// Health checks if the engine is usable right now
	Health(ctx context.Context) error
}

// Request carries the parameters of one utterance
type Request struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voice_id"`
	Rate    float64 `json:"rate,omitempty"`   // 0.5-2.0, 1.0 natural
	Pitch   float64 `json:"pitch,omitempty"`  // 0.5-2.0, 1.0 natural
	Volume  float64 `json:"volume,omitempty"` // 0-2.0 effective volume
}

// Callbacks notify utterance lifecycle. OnEnd and OnError are mutually
// exclusive; neither fires after Cancel.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(error)
}

// Voice describes an available voice
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender"` // male, female, neutral
}

// CharsPerSecond is the speaking-duration estimate at natural rate
const CharsPerSecond = 15.0

// BaseRateWPM is the words-per-minute baseline that rate 1.0 maps to
const BaseRateWPM = 175

// EstimateDuration predicts how long text takes to speak at the given rate
func EstimateDuration(text string, rate float64) time.Duration {
	if rate <= 0 {
		rate = 1.0
	}
	secs := float64(len(text)) / (CharsPerSecond * rate)
	return time.Duration(secs * float64(time.Second))
}
