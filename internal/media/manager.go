package media

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/voicedeck/internal/bus"
)

// PermissionPolicy decides device access requests
type PermissionPolicy interface {
	Request(ctx context.Context, kind DeviceKind) PermissionState
}

// StaticPolicy grants or denies every request
type StaticPolicy struct {
	Grant bool
}

func (p StaticPolicy) Request(_ context.Context, _ DeviceKind) PermissionState {
	if p.Grant {
		return PermissionGranted
	}
	return PermissionDenied
}

// PromptPolicy defers each request to a callback, typically a dashboard
// prompt. The request stays pending until the callback returns or the
// context is cancelled.
type PromptPolicy struct {
	Ask func(ctx context.Context, kind DeviceKind) bool
}

func (p PromptPolicy) Request(ctx context.Context, kind DeviceKind) PermissionState {
	if p.Ask == nil {
		return PermissionDenied
	}
	done := make(chan bool, 1)
	go func() { done <- p.Ask(ctx, kind) }()
	select {
	case <-ctx.Done():
		return PermissionDenied
	case granted := <-done:
		if granted {
			return PermissionGranted
		}
		return PermissionDenied
	}
}

// releaser is the common face of device streams for manager bookkeeping
type releaser interface {
	Release()
}

// Manager issues scoped device streams. Streams deliver frames on a channel
// until released; the manager tracks everything it handed out and releases
// stragglers on Close.
type Manager struct {
	config   *Config
	policy   PermissionPolicy
	eventBus *bus.EventBus
	logger   zerolog.Logger

	mu       sync.Mutex
	open     map[releaser]struct{}
	micLevel float64
	driven   bool // SetMicLevel pins the level, stopping the wander
	closed   bool
}

// NewManager creates a media manager
func NewManager(config *Config, policy PermissionPolicy, eventBus *bus.EventBus, logger zerolog.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if policy == nil {
		policy = StaticPolicy{Grant: true}
	}
	return &Manager{
		config:   config,
		policy:   policy,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "media").Logger(),
		open:     make(map[releaser]struct{}),
		micLevel: 80,
	}
}

// AcquireCamera requests camera access and starts a frame stream
func (m *Manager) AcquireCamera(ctx context.Context) (*CameraStream, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.mu.Unlock()

	if state := m.policy.Request(ctx, DeviceCamera); state != PermissionGranted {
		m.logger.Warn().Str("device", string(DeviceCamera)).Msg("Permission denied")
		return nil, ErrPermissionDenied
	}

	stream := newCameraStream(m)
	m.track(stream)
	m.logger.Info().Str("device", string(DeviceCamera)).Msg("Device acquired")
	m.publish(bus.EventTypeDeviceAcquired, DeviceCamera)
	return stream, nil
}

// AcquireMicrophone requests microphone access and starts a spectrum stream
func (m *Manager) AcquireMicrophone(ctx context.Context) (*MicStream, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.mu.Unlock()

	if state := m.policy.Request(ctx, DeviceMicrophone); state != PermissionGranted {
		m.logger.Warn().Str("device", string(DeviceMicrophone)).Msg("Permission denied")
		return nil, ErrPermissionDenied
	}

	stream := newMicStream(m)
	m.track(stream)
	m.logger.Info().Str("device", string(DeviceMicrophone)).Msg("Device acquired")
	m.publish(bus.EventTypeDeviceAcquired, DeviceMicrophone)
	return stream, nil
}

// SetMicLevel pins the simulated ambient level (0-255 mean bin magnitude).
// The level stops drifting once set.
func (m *Manager) SetMicLevel(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if level < 0 {
		level = 0
	}
	if level > 255 {
		level = 255
	}
	m.micLevel = level
	m.driven = true
}

// micTarget returns the current simulated level and whether it is pinned
func (m *Manager) micTarget() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.micLevel, m.driven || !m.config.Wander
}

// OpenStreams returns the number of live device streams
func (m *Manager) OpenStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Close releases every outstanding stream
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	streams := make([]releaser, 0, len(m.open))
	for s := range m.open {
		streams = append(streams, s)
	}
	m.mu.Unlock()

	for _, s := range streams {
		s.Release()
	}
	m.logger.Info().Msg("Media manager closed")
}

func (m *Manager) track(s releaser) {
	m.mu.Lock()
	m.open[s] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) untrack(s releaser, kind DeviceKind) {
	m.mu.Lock()
	_, tracked := m.open[s]
	delete(m.open, s)
	m.mu.Unlock()

	if tracked {
		m.logger.Info().Str("device", string(kind)).Msg("Device released")
		m.publish(bus.EventTypeDeviceReleased, kind)
	}
}

func (m *Manager) publish(eventType bus.EventType, kind DeviceKind) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Publish(bus.Event{
		Type: eventType,
		Data: map[string]any{"device": string(kind)},
	})
}
