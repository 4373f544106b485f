package media

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// CameraStream delivers synthetic camera frames until released
type CameraStream struct {
	manager     *Manager
	frames      chan Frame
	cancel      context.CancelFunc
	releaseOnce sync.Once
}

func newCameraStream(m *Manager) *CameraStream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &CameraStream{
		manager: m,
		frames:  make(chan Frame, 1),
		cancel:  cancel,
	}
	go s.run(ctx)
	return s
}

// Frames returns the frame channel. It closes after Release.
func (s *CameraStream) Frames() <-chan Frame {
	return s.frames
}

// Release stops the source and closes the channel. Safe to call twice.
func (s *CameraStream) Release() {
	s.releaseOnce.Do(func() {
		s.cancel()
		s.manager.untrack(s, DeviceCamera)
	})
}

func (s *CameraStream) run(ctx context.Context) {
	defer close(s.frames)

	cfg := s.manager.config
	ticker := time.NewTicker(frameInterval(cfg.FrameRate))
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			frame := Frame{
				Seq:       seq,
				Width:     cfg.FrameWidth,
				Height:    cfg.FrameHeight,
				Data:      synthPattern(seq),
				Timestamp: time.Now(),
			}
			deliverFrame(s.frames, frame)
		}
	}
}

// MicStream delivers synthetic frequency spectra until released
type MicStream struct {
	manager     *Manager
	spectra     chan SpectrumFrame
	cancel      context.CancelFunc
	releaseOnce sync.Once
}

func newMicStream(m *Manager) *MicStream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &MicStream{
		manager: m,
		spectra: make(chan SpectrumFrame, 1),
		cancel:  cancel,
	}
	go s.run(ctx)
	return s
}

// Spectra returns the spectrum channel. It closes after Release.
func (s *MicStream) Spectra() <-chan SpectrumFrame {
	return s.spectra
}

// Release stops the source and closes the channel. Safe to call twice.
func (s *MicStream) Release() {
	s.releaseOnce.Do(func() {
		s.cancel()
		s.manager.untrack(s, DeviceMicrophone)
	})
}

func (s *MicStream) run(ctx context.Context) {
	defer close(s.spectra)

	ticker := time.NewTicker(frameInterval(s.manager.config.FrameRate))
	defer ticker.Stop()

	var seq uint64
	level, _ := s.manager.micTarget()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			target, pinned := s.manager.micTarget()
			if pinned {
				level = target
			} else {
				// Slow drift so the demo meter moves on its own
				level += (rand.Float64() - 0.5) * 8
				if level < 10 {
					level = 10
				}
				if level > 200 {
					level = 200
				}
			}
			frame := SpectrumFrame{
				Seq:       seq,
				Bins:      synthSpectrum(level),
				Timestamp: time.Now(),
			}
			deliverSpectrum(s.spectra, frame)
		}
	}
}

func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = 30
	}
	return time.Second / time.Duration(fps)
}

// deliverFrame sends without blocking; when the consumer lags the oldest
// frame is dropped so the latest sample wins
func deliverFrame(ch chan Frame, frame Frame) {
	select {
	case ch <- frame:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- frame:
		default:
		}
	}
}

func deliverSpectrum(ch chan SpectrumFrame, frame SpectrumFrame) {
	select {
	case ch <- frame:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- frame:
		default:
		}
	}
}

// synthPattern generates a small deterministic payload so frames differ
func synthPattern(seq uint64) []byte {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte((seq + uint64(i)*7) % 251)
	}
	return data
}

// synthSpectrum generates bins jittered around the target mean level
func synthSpectrum(level float64) []byte {
	bins := make([]byte, SpectrumBins)
	for i := range bins {
		v := level + (rand.Float64()-0.5)*20
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		bins[i] = byte(v)
	}
	return bins
}
