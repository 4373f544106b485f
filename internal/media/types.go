// Package media provides camera and microphone access for VoiceDeck.
// Capture is simulated; the package owns permission handling and the
// lifecycle of device streams.
package media

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrPermissionDenied = errors.New("device permission denied")
	ErrManagerClosed    = errors.New("media manager closed")
)

// DeviceKind identifies a capture device
type DeviceKind string

const (
	DeviceCamera     DeviceKind = "camera"
	DeviceMicrophone DeviceKind = "microphone"
)

// PermissionState tracks a device access request
type PermissionState string

const (
	PermissionPending PermissionState = "pending"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// SpectrumBins is the number of frequency bins per microphone sample,
// half of the 256-sample analysis window
const SpectrumBins = 128

// Frame is a single captured camera frame
type Frame struct {
	Seq       uint64    `json:"seq"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Data      []byte    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// SpectrumFrame is one microphone frequency snapshot. Bin magnitudes are
// bytes in 0-255.
type SpectrumFrame struct {
	Seq       uint64    `json:"seq"`
	Bins      []byte    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Mean returns the average bin magnitude
func (f SpectrumFrame) Mean() float64 {
	if len(f.Bins) == 0 {
		return 0
	}
	var sum int
	for _, b := range f.Bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(f.Bins))
}

// Config holds media capture configuration
type Config struct {
	FrameRate   int  `json:"frame_rate"`   // frames per second for both devices
	FrameWidth  int  `json:"frame_width"`  // camera frame width
	FrameHeight int  `json:"frame_height"` // camera frame height
	Wander      bool `json:"wander"`       // let the simulated mic level drift on its own
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		FrameRate:   30,
		FrameWidth:  640,
		FrameHeight: 480,
		Wander:      true,
	}
}
