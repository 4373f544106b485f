// Package monitor runs the camera and microphone sampling loops that feed
// detection results into the settings store.
package monitor

import (
	"math/rand"
	"sync"
	"time"

	"github.com/normanking/voicedeck/internal/media"
	"github.com/normanking/voicedeck/internal/settings"
)

// DetectionSample is a single detection result. Samples are ephemeral:
// reported and forgotten.
type DetectionSample struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Gesture labels
const (
	GestureVolumeUp   = "volume-up"
	GestureVolumeDown = "volume-down"
	GestureSpeedUp    = "speed-up"
	GestureSpeedDown  = "speed-down"
)

// Gestures lists every gesture label a detector may report
func Gestures() []string {
	return []string{GestureVolumeUp, GestureVolumeDown, GestureSpeedUp, GestureSpeedDown}
}

// Detector produces detection samples from camera frames. The built-in
// implementation draws at random; a real model can be swapped in.
type Detector interface {
	DetectEmotion(frame media.Frame) DetectionSample
	DetectGesture(frame media.Frame) (DetectionSample, bool)
}

// randomDetector draws labels uniformly at random. Emotion confidence lands
// in [0.6, 1.0), gesture confidence in [0.7, 1.0); most gesture ticks report
// nothing.
type randomDetector struct {
	mu            sync.Mutex
	rng           *rand.Rand
	gestureChance float64
}

// NewRandomDetector creates the placeholder detector. gestureChance is the
// per-frame probability of a gesture report, typically 0.05.
func NewRandomDetector(gestureChance float64) Detector {
	if gestureChance < 0 {
		gestureChance = 0
	}
	if gestureChance > 1 {
		gestureChance = 1
	}
	return &randomDetector{
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		gestureChance: gestureChance,
	}
}

func (d *randomDetector) DetectEmotion(_ media.Frame) DetectionSample {
	d.mu.Lock()
	defer d.mu.Unlock()

	emotions := settings.Emotions()
	return DetectionSample{
		Label:      string(emotions[d.rng.Intn(len(emotions))]),
		Confidence: 0.6 + d.rng.Float64()*0.4,
		Timestamp:  time.Now(),
	}
}

func (d *randomDetector) DetectGesture(_ media.Frame) (DetectionSample, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rng.Float64() >= d.gestureChance {
		return DetectionSample{}, false
	}

	gestures := Gestures()
	return DetectionSample{
		Label:      gestures[d.rng.Intn(len(gestures))],
		Confidence: 0.7 + d.rng.Float64()*0.3,
		Timestamp:  time.Now(),
	}, true
}

// Gesture tuning deltas
const (
	gestureVolumeStep = 0.2
	gestureRateStep   = 0.25
)

// ApplyGesture translates a gesture label into a clamped settings update
func ApplyGesture(store *settings.Store, label string) {
	voice := store.Voice()
	switch label {
	case GestureVolumeUp:
		v := voice.Volume + gestureVolumeStep
		store.UpdateVoice(settings.VoiceUpdate{Volume: &v})
	case GestureVolumeDown:
		v := voice.Volume - gestureVolumeStep
		store.UpdateVoice(settings.VoiceUpdate{Volume: &v})
	case GestureSpeedUp:
		r := voice.Rate + gestureRateStep
		store.UpdateVoice(settings.VoiceUpdate{Rate: &r})
	case GestureSpeedDown:
		r := voice.Rate - gestureRateStep
		store.UpdateVoice(settings.VoiceUpdate{Rate: &r})
	}
}
