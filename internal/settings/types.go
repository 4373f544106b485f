// Package settings holds the voice and environment settings model and the
// store that serializes updates to it.
package settings

// Emotion is a voice emotion label
type Emotion string

const (
	EmotionNeutral   Emotion = "neutral"
	EmotionHappy     Emotion = "happy"
	EmotionSad       Emotion = "sad"
	EmotionAngry     Emotion = "angry"
	EmotionExcited   Emotion = "excited"
	EmotionSurprised Emotion = "surprised"
)

// Emotions lists every valid emotion label
func Emotions() []Emotion {
	return []Emotion{
		EmotionNeutral,
		EmotionHappy,
		EmotionSad,
		EmotionAngry,
		EmotionExcited,
		EmotionSurprised,
	}
}

// Valid reports whether e is a known emotion label
func (e Emotion) Valid() bool {
	switch e {
	case EmotionNeutral, EmotionHappy, EmotionSad, EmotionAngry, EmotionExcited, EmotionSurprised:
		return true
	}
	return false
}

// Style is a speaking style label
type Style string

const (
	StyleCasual       Style = "casual"
	StyleFormal       Style = "formal"
	StyleProfessional Style = "professional"
	StyleCheerful     Style = "cheerful"
	StyleEmpathetic   Style = "empathetic"
)

// Valid reports whether s is a known style label
func (s Style) Valid() bool {
	switch s {
	case StyleCasual, StyleFormal, StyleProfessional, StyleCheerful, StyleEmpathetic:
		return true
	}
	return false
}

// NoiseLevel classifies ambient noise
type NoiseLevel string

const (
	NoiseLow    NoiseLevel = "low"
	NoiseNormal NoiseLevel = "normal"
	NoiseHigh   NoiseLevel = "high"
)

// Parameter bounds. Every write path clamps to these.
const (
	RateMin   = 0.5
	RateMax   = 2.0
	PitchMin  = 0.5
	PitchMax  = 2.0
	VolumeMin = 0.1
	VolumeMax = 2.0
)

// VoiceSettings is the full set of synthesis parameters. Values are treated
// as immutable; updates go through Apply.
type VoiceSettings struct {
	VoiceID string  `json:"voiceId"`
	Rate    float64 `json:"rate"`
	Pitch   float64 `json:"pitch"`
	Volume  float64 `json:"volume"`
	Emotion Emotion `json:"emotion"`
	Style   Style   `json:"style"`
}

// DefaultVoiceSettings returns the startup settings
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		VoiceID: "",
		Rate:    1.0,
		Pitch:   1.0,
		Volume:  1.0,
		Emotion: EmotionNeutral,
		Style:   StyleCasual,
	}
}

// EnvironmentSettings describes the sensed environment
type EnvironmentSettings struct {
	NoiseLevel   NoiseLevel `json:"noiseLevel"`
	AdaptToNoise bool       `json:"adaptToNoise"`
}

// DefaultEnvironmentSettings returns the startup environment
func DefaultEnvironmentSettings() EnvironmentSettings {
	return EnvironmentSettings{
		NoiseLevel:   NoiseNormal,
		AdaptToNoise: false,
	}
}

// VoiceUpdate is a partial update. Nil fields keep their current values.
type VoiceUpdate struct {
	VoiceID *string  `json:"voiceId,omitempty"`
	Rate    *float64 `json:"rate,omitempty"`
	Pitch   *float64 `json:"pitch,omitempty"`
	Volume  *float64 `json:"volume,omitempty"`
	Emotion *Emotion `json:"emotion,omitempty"`
	Style   *Style   `json:"style,omitempty"`
}

// Apply merges upd into cur and returns the result. Numeric fields are
// clamped to their bounds, unknown emotion and style labels are ignored.
func Apply(cur VoiceSettings, upd VoiceUpdate) VoiceSettings {
	next := cur
	if upd.VoiceID != nil {
		next.VoiceID = *upd.VoiceID
	}
	if upd.Rate != nil {
		next.Rate = clamp(*upd.Rate, RateMin, RateMax)
	}
	if upd.Pitch != nil {
		next.Pitch = clamp(*upd.Pitch, PitchMin, PitchMax)
	}
	if upd.Volume != nil {
		next.Volume = clamp(*upd.Volume, VolumeMin, VolumeMax)
	}
	if upd.Emotion != nil && upd.Emotion.Valid() {
		next.Emotion = *upd.Emotion
	}
	if upd.Style != nil && upd.Style.Valid() {
		next.Style = *upd.Style
	}
	return next
}

// Clamped returns s with all numeric fields forced into bounds. Used when
// settings arrive from config files that skipped Apply.
func Clamped(s VoiceSettings) VoiceSettings {
	s.Rate = clamp(s.Rate, RateMin, RateMax)
	s.Pitch = clamp(s.Pitch, PitchMin, PitchMax)
	s.Volume = clamp(s.Volume, VolumeMin, VolumeMax)
	if !s.Emotion.Valid() {
		s.Emotion = EmotionNeutral
	}
	if !s.Style.Valid() {
		s.Style = StyleCasual
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
