// Package playback drives speech playback for VoiceDeck. One session at a
// time moves through idle, speaking, paused and stopped, with estimated
// progress, mute, and a barge-in listening window.
package playback

import (
	"time"

	"github.com/normanking/voicedeck/internal/settings"
)

// Status is a playback session state
type Status string

const (
	StatusIdle     Status = "idle"
	StatusSpeaking Status = "speaking"
	StatusPaused   Status = "paused"
	StatusStopped  Status = "stopped"
)

// Session is a snapshot of the controller's state
type Session struct {
	ID                   string  `json:"id"`
	Text                 string  `json:"text"`
	Status               Status  `json:"status"`
	Progress             float64 `json:"progress"`
	Muted                bool    `json:"muted"`
	Listening            bool    `json:"listening"`
	InterruptionDetected bool    `json:"interruptionDetected"`
}

// Progress holds at 99 until the engine reports the utterance finished
const progressCap = 99.0

// High ambient noise boosts the spoken volume, capped at full
const (
	noiseBoostFactor = 1.5
	noiseBoostCap    = 1.0
)

// Config holds playback controller tuning
type Config struct {
	// ProgressPeriod is the progress ticker interval
	ProgressPeriod time.Duration
	// ListenDelay is how long after ToggleListening the simulated
	// interruption fires
	ListenDelay time.Duration
	// ClearDelay is how long the interruption flag stays set
	ClearDelay time.Duration
	// BargeInThreshold is the ambient level that counts as someone
	// talking over the speech, when a live level source is attached
	BargeInThreshold float64
	// FollowUp is the sentence appended after an interruption clears
	FollowUp string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ProgressPeriod:   120 * time.Millisecond,
		ListenDelay:      3 * time.Second,
		ClearDelay:       2 * time.Second,
		BargeInThreshold: 60.0,
		FollowUp:         "Is there anything else you would like to know?",
	}
}

// EffectiveVolume computes the volume an utterance plays at. Mute wins;
// with noise adaptation on and high ambient noise the stored volume is
// boosted but never past full; otherwise the stored volume passes through.
func EffectiveVolume(volume float64, muted, adaptToNoise bool, noise settings.NoiseLevel) float64 {
	if muted {
		return 0
	}
	if adaptToNoise && noise == settings.NoiseHigh {
		boosted := volume * noiseBoostFactor
		if boosted > noiseBoostCap {
			boosted = noiseBoostCap
		}
		return boosted
	}
	return volume
}
