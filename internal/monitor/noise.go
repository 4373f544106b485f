package monitor

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/voicedeck/internal/bus"
	"github.com/normanking/voicedeck/internal/media"
	"github.com/normanking/voicedeck/internal/settings"
)

// Noise classification thresholds on the normalized 0-100 scale
const (
	noiseLowCeiling  = 20.0
	noiseHighFloor   = 60.0
	noiseScaleFactor = 1.5
)

// Normalize maps a mean bin magnitude (0-255) onto the 0-100 scale with
// the sensitivity boost applied, capped at 100
func Normalize(mean float64) float64 {
	v := mean / 255 * 100 * noiseScaleFactor
	if v > 100 {
		v = 100
	}
	if v < 0 {
		v = 0
	}
	return v
}

// Classify buckets a normalized level: below 20 is low, above 60 is high,
// the boundaries themselves are normal
func Classify(level float64) settings.NoiseLevel {
	switch {
	case level < noiseLowCeiling:
		return settings.NoiseLow
	case level > noiseHighFloor:
		return settings.NoiseHigh
	default:
		return settings.NoiseNormal
	}
}

// NoiseMonitor samples microphone spectra, tracks the instantaneous level
// and pushes classification changes into the settings store
type NoiseMonitor struct {
	media    *media.Manager
	store    *settings.Store
	eventBus *bus.EventBus
	logger   zerolog.Logger

	opMu sync.Mutex

	stateMu    sync.RWMutex
	running    bool
	permission media.PermissionState
	stream     *media.MicStream
	cancel     context.CancelFunc
	level      float64
}

// NewNoiseMonitor creates a noise monitor writing into the given store
func NewNoiseMonitor(mediaMgr *media.Manager, store *settings.Store, eventBus *bus.EventBus, logger zerolog.Logger) *NoiseMonitor {
	return &NoiseMonitor{
		media:      mediaMgr,
		store:      store,
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "noise_monitor").Logger(),
		permission: media.PermissionPending,
	}
}

// Status returns the current monitor status
func (m *NoiseMonitor) Status() Status {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return Status{Name: "noise", Enabled: m.running, Permission: m.permission}
}

// Level returns the latest normalized ambient level (0-100)
func (m *NoiseMonitor) Level() float64 {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.level
}

// Running reports whether the sampling loop is live
func (m *NoiseMonitor) Running() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.running
}

// Start acquires the microphone and begins the sampling loop
func (m *NoiseMonitor) Start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.stateMu.Lock()
	if m.running {
		m.stateMu.Unlock()
		return nil
	}
	m.permission = media.PermissionPending
	m.stateMu.Unlock()

	stream, err := m.media.AcquireMicrophone(ctx)
	if err != nil {
		m.stateMu.Lock()
		if errors.Is(err, media.ErrPermissionDenied) {
			m.permission = media.PermissionDenied
		}
		m.stateMu.Unlock()

		m.logger.Warn().Err(err).Msg("Noise monitor could not start")
		m.publishSimple(bus.EventTypeMonitorDenied, "noise")
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

	m.logger.Info().Msg("Noise monitor started")
	m.publishSimple(bus.EventTypeMonitorStarted, "noise")
	return nil
}

// Stop cancels the sampling loop and releases the microphone
func (m *NoiseMonitor) Stop() {
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

	m.logger.Info().Msg("Noise monitor stopped")
	m.publishSimple(bus.EventTypeMonitorStopped, "noise")
}

func (m *NoiseMonitor) run(ctx context.Context, stream *media.MicStream) {
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
		case frame, ok := <-stream.Spectra():
			if !ok {
				return
			}
			m.sample(frame)
		}
	}
}

func (m *NoiseMonitor) sample(frame media.SpectrumFrame) {
	level := Normalize(frame.Mean())

	m.stateMu.Lock()
	m.level = level
	m.stateMu.Unlock()

	if m.eventBus != nil {
		m.eventBus.Publish(bus.Event{
			Type: bus.EventTypeNoiseSample,
			Data: map[string]any{"value": level},
		})
	}

	classified := Classify(level)
	if m.store.SetNoiseLevel(classified) {
		m.logger.Info().Float64("value", level).Str("level", string(classified)).Msg("Ambient noise classified")
		if m.eventBus != nil {
			m.eventBus.Publish(bus.Event{
				Type: bus.EventTypeNoiseLevelChanged,
				Data: map[string]any{
					"level": string(classified),
					"value": level,
				},
			})
		}
	}
}

func (m *NoiseMonitor) publishSimple(eventType bus.EventType, name string) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Publish(bus.Event{
		Type: eventType,
		Data: map[string]any{"monitor": name},
	})
}
