// Package speech provides the eSpeak NG engine using the espeak-ng (or
// legacy espeak) binary. Pause and resume ride on SIGSTOP/SIGCONT.
package speech

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
)

// ESpeakEngine drives the espeak-ng command line synthesizer
type ESpeakEngine struct {
	logger zerolog.Logger
	binary string

	mu      sync.Mutex
	current *utterance
}

// utterance tracks one running synthesis process
type utterance struct {
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	cancelled bool
	paused    bool
}

// NewESpeakEngine creates an espeak engine, preferring espeak-ng over the
// legacy binary
func NewESpeakEngine(logger zerolog.Logger) *ESpeakEngine {
	binary := ""
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			binary = path
			break
		}
	}

	return &ESpeakEngine{
		logger: logger.With().Str("engine", "espeak").Logger(),
		binary: binary,
	}
}

// Name returns the engine identifier
func (e *ESpeakEngine) Name() string {
	return "espeak"
}

// Speak starts speaking req.Text, cancelling any utterance in flight
func (e *ESpeakEngine) Speak(ctx context.Context, req Request, cb Callbacks) error {
	if e.binary == "" {
		return ErrEngineUnavailable
	}

	e.Cancel()

	args := buildESpeakArgs(req)

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, e.binary, args...)

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", e.binary, err)
	}

	utt := &utterance{cmd: cmd, cancel: cancel}
	e.mu.Lock()
	e.current = utt
	e.mu.Unlock()

	e.logger.Debug().
		Str("voice", req.VoiceID).
		Int("textLen", len(req.Text)).
		Float64("rate", req.Rate).
		Float64("volume", req.Volume).
		Msg("Speaking with espeak")

	if cb.OnStart != nil {
		cb.OnStart()
	}

	go e.wait(utt, cb)
	return nil
}

func (e *ESpeakEngine) wait(utt *utterance, cb Callbacks) {
	err := utt.cmd.Wait()
	utt.cancel()

	e.mu.Lock()
	cancelled := utt.cancelled
	if e.current == utt {
		e.current = nil
	}
	e.mu.Unlock()

	if cancelled {
		return
	}

	if err != nil {
		e.logger.Error().Err(err).Msg("espeak failed")
		if cb.OnError != nil {
			cb.OnError(fmt.Errorf("espeak: %w", err))
		}
		return
	}

	if cb.OnEnd != nil {
		cb.OnEnd()
	}
}

// Pause suspends the synthesis process
func (e *ESpeakEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return ErrNoUtterance
	}
	if e.current.paused {
		return nil
	}
	if err := e.current.cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	e.current.paused = true
	return nil
}

// Resume continues a suspended synthesis process
func (e *ESpeakEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return ErrNoUtterance
	}
	if !e.current.paused {
		return nil
	}
	if err := e.current.cmd.Process.Signal(syscall.SIGCONT); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	e.current.paused = false
	return nil
}

// Cancel kills the active utterance. Its callbacks never fire.
func (e *ESpeakEngine) Cancel() error {
	e.mu.Lock()
	utt := e.current
	if utt != nil {
		utt.cancelled = true
		e.current = nil
	}
	e.mu.Unlock()

	if utt != nil {
		utt.cancel()
	}
	return nil
}

// SetVolume is a no-op; espeak takes amplitude per utterance, so the next
// Speak carries the new volume
func (e *ESpeakEngine) SetVolume(_ float64) error {
	return nil
}

// Voices parses `espeak-ng --voices=en`
func (e *ESpeakEngine) Voices(ctx context.Context) ([]Voice, error) {
	if e.binary == "" {
		return nil, ErrEngineUnavailable
	}

	cmd := exec.CommandContext(ctx, e.binary, "--voices=en")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}

	return parseESpeakVoices(string(output)), nil
}

// Health checks the binary is present
func (e *ESpeakEngine) Health(_ context.Context) error {
	if e.binary == "" {
		return ErrEngineUnavailable
	}
	return nil
}

// buildESpeakArgs maps request parameters onto espeak flags: rate scales
// the 175 wpm baseline, pitch maps to espeak's 0-99 scale, volume to
// amplitude 0-200. Volume 0 speaks silently.
func buildESpeakArgs(req Request) []string {
	voice := req.VoiceID
	if voice == "" {
		voice = "en"
	}

	rate := req.Rate
	if rate <= 0 {
		rate = 1.0
	}
	pitch := req.Pitch
	if pitch <= 0 {
		pitch = 1.0
	}

	wpm := int(BaseRateWPM * rate)
	pitchVal := int(50 * pitch)
	if pitchVal > 99 {
		pitchVal = 99
	}
	amp := int(100 * req.Volume)
	if amp > 200 {
		amp = 200
	}
	if amp < 0 {
		amp = 0
	}

	return []string{
		"-v", voice,
		"-s", strconv.Itoa(wpm),
		"-p", strconv.Itoa(pitchVal),
		"-a", strconv.Itoa(amp),
		req.Text,
	}
}

// parseESpeakVoices reads the tabular voice listing. Columns: Pty,
// Language, Age/Gender, VoiceName, File, Other Languages.
func parseESpeakVoices(output string) []Voice {
	var voices []Voice
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		gender := "neutral"
		if strings.HasSuffix(fields[2], "M") {
			gender = "male"
		} else if strings.HasSuffix(fields[2], "F") {
			gender = "female"
		}

		voices = append(voices, Voice{
			ID:       fields[1],
			Name:     strings.ReplaceAll(fields[3], "_", " "),
			Language: fields[1],
			Gender:   gender,
		})
	}
	return voices
}
