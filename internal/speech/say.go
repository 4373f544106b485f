// Package speech provides the macOS native engine using the 'say' command.
// High-quality system voices with no extra install.
package speech

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
)

// SayEngine drives the macOS 'say' command
type SayEngine struct {
	logger       zerolog.Logger
	defaultVoice string

	mu      sync.Mutex
	current *utterance
}

// NewSayEngine creates a macOS say engine
func NewSayEngine(logger zerolog.Logger) *SayEngine {
	return &SayEngine{
		logger:       logger.With().Str("engine", "say").Logger(),
		defaultVoice: "Samantha",
	}
}

// Name returns the engine identifier
func (e *SayEngine) Name() string {
	return "say"
}

// IsAvailable checks if this is macOS and the 'say' command exists
func (e *SayEngine) IsAvailable() bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	_, err := exec.LookPath("say")
	return err == nil
}

// Speak starts speaking req.Text, cancelling any utterance in flight.
// 'say' has no pitch or amplitude flags; only rate maps through and the
// system mixer owns the volume.
func (e *SayEngine) Speak(ctx context.Context, req Request, cb Callbacks) error {
	if !e.IsAvailable() {
		return ErrEngineUnavailable
	}

	e.Cancel()

	voice := req.VoiceID
	if voice == "" {
		voice = e.defaultVoice
	}
	rate := req.Rate
	if rate <= 0 {
		rate = 1.0
	}

	args := []string{
		"-v", voice,
		"-r", strconv.Itoa(int(BaseRateWPM * rate)),
		req.Text,
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, "say", args...)

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start say: %w", err)
	}

	utt := &utterance{cmd: cmd, cancel: cancel}
	e.mu.Lock()
	e.current = utt
	e.mu.Unlock()

	e.logger.Debug().
		Str("voice", voice).
		Int("textLen", len(req.Text)).
		Msg("Speaking with macOS say")

	if cb.OnStart != nil {
		cb.OnStart()
	}

	go e.wait(utt, cb)
	return nil
}

func (e *SayEngine) wait(utt *utterance, cb Callbacks) {
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
		e.logger.Error().Err(err).Msg("say failed")
		if cb.OnError != nil {
			cb.OnError(fmt.Errorf("say: %w", err))
		}
		return
	}

	if cb.OnEnd != nil {
		cb.OnEnd()
	}
}

// Pause suspends the synthesis process
func (e *SayEngine) Pause() error {
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
func (e *SayEngine) Resume() error {
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
func (e *SayEngine) Cancel() error {
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

// SetVolume is a no-op; the system mixer owns say's volume
func (e *SayEngine) SetVolume(_ float64) error {
	return nil
}

// Voices returns the high-quality voices typically installed on macOS
func (e *SayEngine) Voices(_ context.Context) ([]Voice, error) {
	return []Voice{
		{ID: "Samantha", Name: "Samantha (Female, American)", Language: "en-US", Gender: "female"},
		{ID: "Daniel", Name: "Daniel (Male, British)", Language: "en-GB", Gender: "male"},
		{ID: "Alex", Name: "Alex (Male, American)", Language: "en-US", Gender: "male"},
		{ID: "Karen", Name: "Karen (Female, Australian)", Language: "en-AU", Gender: "female"},
		{ID: "Victoria", Name: "Victoria (Female, American)", Language: "en-US", Gender: "female"},
		{ID: "Serena", Name: "Serena (Female, British)", Language: "en-GB", Gender: "female"},
		{ID: "Oliver", Name: "Oliver (Male, British)", Language: "en-GB", Gender: "male"},
	}, nil
}

// Health checks if macOS say is available
func (e *SayEngine) Health(_ context.Context) error {
	if !e.IsAvailable() {
		return ErrEngineUnavailable
	}
	return nil
}
