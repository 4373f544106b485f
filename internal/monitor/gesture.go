package monitor

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/voicedeck/internal/bus"
	"github.com/normanking/voicedeck/internal/media"
)

// GestureMonitor samples camera frames for tuning gestures. Most frames
// yield nothing; the detector decides when to report.
type GestureMonitor struct {
	media    *media.Manager
	detector Detector
	eventBus *bus.EventBus
	logger   zerolog.Logger

	opMu sync.Mutex

	stateMu    sync.RWMutex
	running    bool
	permission media.PermissionState
	stream     *media.CameraStream
	cancel     context.CancelFunc

	onDetection func(DetectionSample)
	callbackMu  sync.RWMutex
}

// NewGestureMonitor creates a gesture monitor
func NewGestureMonitor(mediaMgr *media.Manager, detector Detector, eventBus *bus.EventBus, logger zerolog.Logger) *GestureMonitor {
	return &GestureMonitor{
		media:      mediaMgr,
		detector:   detector,
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "gesture_monitor").Logger(),
		permission: media.PermissionPending,
	}
}

// OnDetection registers a callback for gesture samples
func (m *GestureMonitor) OnDetection(fn func(DetectionSample)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onDetection = fn
}

// Status returns the current monitor status
func (m *GestureMonitor) Status() Status {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return Status{Name: "gesture", Enabled: m.running, Permission: m.permission}
}

// Start acquires the camera and begins the sampling loop
func (m *GestureMonitor) Start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.stateMu.Lock()
	if m.running {
		m.stateMu.Unlock()
		return nil
	}
	m.permission = media.PermissionPending
	m.stateMu.Unlock()

	stream, err := m.media.AcquireCamera(ctx)
	if err != nil {
		m.stateMu.Lock()
		if errors.Is(err, media.ErrPermissionDenied) {
			m.permission = media.PermissionDenied
		}
		m.stateMu.Unlock()

		m.logger.Warn().Err(err).Msg("Gesture monitor could not start")
		m.publishSimple(bus.EventTypeMonitorDenied, "gesture")
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	m.stateMu.Lock()
	m.running = true
	m.permission = media.PermissionGranted
	m.stream = stream
	m.cancel = cancel
	m.stateMu.Unlock()

	go m.run(loopCtx, stream)

	m.logger.Info().Msg("Gesture monitor started")
	m.publishSimple(bus.EventTypeMonitorStarted, "gesture")
	return nil
}

// Stop cancels the sampling loop and releases the camera
func (m *GestureMonitor) Stop() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.stateMu.Lock()
	if !m.running {
		m.stateMu.Unlock()
		return
	}
	cancel := m.cancel
	stream := m.stream
	m.running = false
	m.stream = nil
	m.cancel = nil
	m.stateMu.Unlock()

	cancel()
	stream.Release()

	m.logger.Info().Msg("Gesture monitor stopped")
	m.publishSimple(bus.EventTypeMonitorStopped, "gesture")
}

func (m *GestureMonitor) run(ctx context.Context, stream *media.CameraStream) {
	defer func() {
		stream.Release()
		m.stateMu.Lock()
		if m.stream == stream {
			m.running = false
			m.stream = nil
		}
		m.stateMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-stream.Frames():
			if !ok {
				return
			}
			if sample, ok := m.detector.DetectGesture(frame); ok {
				m.report(sample)
			}
		}
	}
}

func (m *GestureMonitor) report(sample DetectionSample) {
	m.logger.Debug().Str("gesture", sample.Label).Float64("confidence", sample.Confidence).Msg("Gesture detected")

	m.callbackMu.RLock()
	callback := m.onDetection
	m.callbackMu.RUnlock()

	if callback != nil {
		callback(sample)
	}

	if m.eventBus != nil {
		m.eventBus.Publish(bus.Event{
			Type: bus.EventTypeGestureDetected,
			Data: map[string]any{
				"label":      sample.Label,
				"confidence": sample.Confidence,
			},
		})
	}
}

func (m *GestureMonitor) publishSimple(eventType bus.EventType, name string) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Publish(bus.Event{
		Type: eventType,
		Data: map[string]any{"monitor": name},
	})
}
