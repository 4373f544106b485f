package monitor

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/voicedeck/internal/bus"
	"github.com/normanking/voicedeck/internal/media"
)

// Status describes a monitor for the dashboard
type Status struct {
	Name       string                `json:"name"`
	Enabled    bool                  `json:"enabled"`
	Permission media.PermissionState `json:"permission"`
}

// EmotionMonitor samples camera frames and reports an emotion per frame
type EmotionMonitor struct {
	media    *media.Manager
	detector Detector
	eventBus *bus.EventBus
	logger   zerolog.Logger

	opMu sync.Mutex // serializes Start/Stop

	stateMu    sync.RWMutex
	running    bool
	permission media.PermissionState
	stream     *media.CameraStream
	cancel     context.CancelFunc

	onDetection func(DetectionSample)
	callbackMu  sync.RWMutex
}

// NewEmotionMonitor creates an emotion monitor
func NewEmotionMonitor(mediaMgr *media.Manager, detector Detector, eventBus *bus.EventBus, logger zerolog.Logger) *EmotionMonitor {
	return &EmotionMonitor{
		media:      mediaMgr,
		detector:   detector,
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "emotion_monitor").Logger(),
		permission: media.PermissionPending,
	}
}

// OnDetection registers a callback for detection samples
func (m *EmotionMonitor) OnDetection(fn func(DetectionSample)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onDetection = fn
}

// Status returns the current monitor status
func (m *EmotionMonitor) Status() Status {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return Status{Name: "emotion", Enabled: m.running, Permission: m.permission}
}

// Start acquires the camera and begins the sampling loop. Starting a
// running monitor is a no-op; there is never more than one loop.
func (m *EmotionMonitor) Start(ctx context.Context) error {
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

		m.logger.Warn().Err(err).Msg("Emotion monitor could not start")
		m.publishSimple(bus.EventTypeMonitorDenied, "emotion")
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

	m.logger.Info().Msg("Emotion monitor started")
	m.publishSimple(bus.EventTypeMonitorStarted, "emotion")
	return nil
}

// Stop cancels the sampling loop and releases the camera
func (m *EmotionMonitor) Stop() {
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

	m.logger.Info().Msg("Emotion monitor stopped")
	m.publishSimple(bus.EventTypeMonitorStopped, "emotion")
}

func (m *EmotionMonitor) run(ctx context.Context, stream *media.CameraStream) {
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
			m.report(m.detector.DetectEmotion(frame))
		}
	}
}

func (m *EmotionMonitor) report(sample DetectionSample) {
	m.callbackMu.RLock()
	callback := m.onDetection
	m.callbackMu.RUnlock()

	if callback != nil {
		callback(sample)
	}

	if m.eventBus != nil {
		m.eventBus.Publish(bus.Event{
			Type: bus.EventTypeEmotionDetected,
			Data: map[string]any{
				"label":      sample.Label,
				"confidence": sample.Confidence,
			},
		})
	}
}

func (m *EmotionMonitor) publishSimple(eventType bus.EventType, name string) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Publish(bus.Event{
		Type: eventType,
		Data: map[string]any{"monitor": name},
	})
}
