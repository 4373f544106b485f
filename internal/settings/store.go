package settings

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/voicedeck/internal/bus"
)

// Store holds the current voice and environment settings behind a single
// mutex so concurrent updates apply in call order. Reads return value
// copies; change notifications go out on the event bus.
type Store struct {
	mu    sync.RWMutex
	voice VoiceSettings
	env   EnvironmentSettings

	eventBus *bus.EventBus
	logger   zerolog.Logger
}

// NewStore creates a settings store with the given initial values
func NewStore(voice VoiceSettings, env EnvironmentSettings, eventBus *bus.EventBus, logger zerolog.Logger) *Store {
	return &Store{
		voice:    Clamped(voice),
		env:      env,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "settings").Logger(),
	}
}

// Voice returns a snapshot of the current voice settings
func (s *Store) Voice() VoiceSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voice
}

// Environment returns a snapshot of the current environment settings
func (s *Store) Environment() EnvironmentSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.env
}

// UpdateVoice merges a partial update into the voice settings and returns
// the new snapshot
func (s *Store) UpdateVoice(upd VoiceUpdate) VoiceSettings {
	s.mu.Lock()
	s.voice = Apply(s.voice, upd)
	snapshot := s.voice
	s.mu.Unlock()

	s.logger.Debug().
		Float64("rate", snapshot.Rate).
		Float64("pitch", snapshot.Pitch).
		Float64("volume", snapshot.Volume).
		Str("emotion", string(snapshot.Emotion)).
		Msg("Voice settings updated")

	s.publishVoice(snapshot)
	return snapshot
}

// SetEmotion updates only the emotion label. Invalid labels are dropped.
func (s *Store) SetEmotion(e Emotion) {
	if !e.Valid() {
		return
	}
	s.UpdateVoice(VoiceUpdate{Emotion: &e})
}

// SetNoiseLevel records the classified ambient noise level. It reports
// whether the level actually changed.
func (s *Store) SetNoiseLevel(level NoiseLevel) bool {
	s.mu.Lock()
	if s.env.NoiseLevel == level {
		s.mu.Unlock()
		return false
	}
	s.env.NoiseLevel = level
	snapshot := s.env
	s.mu.Unlock()

	s.logger.Info().Str("level", string(level)).Msg("Noise level changed")
	s.publishEnvironment(snapshot)
	return true
}

// SetAdaptToNoise toggles environment-adaptive volume
func (s *Store) SetAdaptToNoise(on bool) {
	s.mu.Lock()
	if s.env.AdaptToNoise == on {
		s.mu.Unlock()
		return
	}
	s.env.AdaptToNoise = on
	snapshot := s.env
	s.mu.Unlock()

	s.logger.Info().Bool("adaptToNoise", on).Msg("Noise adaptation toggled")
	s.publishEnvironment(snapshot)
}

func (s *Store) publishVoice(v VoiceSettings) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(bus.Event{
		Type: bus.EventTypeVoiceUpdated,
		Data: map[string]any{"voice": v},
	})
}

func (s *Store) publishEnvironment(e EnvironmentSettings) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(bus.Event{
		Type: bus.EventTypeEnvironmentUpdated,
		Data: map[string]any{"environment": e},
	})
}
