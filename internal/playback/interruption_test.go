package playback

import (
	"strings"
	"testing"
	"time"

	"github.com/normanking/voicedeck/internal/bus"
)

func fastListenConfig() *Config {
	cfg := DefaultConfig()
	cfg.ListenDelay = 60 * time.Millisecond
	cfg.ClearDelay = 80 * time.Millisecond
	cfg.FollowUp = "Anything else?"
	return cfg
}

func TestInterruption_FiresWhileSpeaking(t *testing.T) {
	engine := &mockEngine{}
	c, _, eventBus := newTestController(t, engine, fastListenConfig())

	rec := recordEvents(eventBus,
		bus.EventTypeInterruption,
		bus.EventTypeInterruptionCleared,
		bus.EventTypeListeningStopped,
	)

	c.SetText("a long explanation that keeps going")
	c.Speak()

	if !c.ToggleListening() {
		t.Fatal("ToggleListening should report listening on")
	}
	if !c.Listening() {
		t.Fatal("Listening() should be true")
	}

	// The simulated barge-in pauses speech and raises the flag
	waitFor(t, func() bool {
		s := c.Session()
		return s.Status == StatusPaused && s.InterruptionDetected
	}, "interruption never paused the speech")

	if engine.pauseCount() != 1 {
		t.Errorf("engine paused %d times, want 1", engine.pauseCount())
	}
	waitFor(t, func() bool { return rec.count(bus.EventTypeInterruption) == 1 }, "interruption event never published")

	// After the clear delay the flag drops, listening ends, and the
	// follow-up lands in the staged text
	waitFor(t, func() bool {
		s := c.Session()
		return !s.Listening && !s.InterruptionDetected
	}, "interruption never cleared")

	if text := c.Session().Text; !strings.HasSuffix(text, "Anything else?") {
		t.Errorf("text = %q, want follow-up appended", text)
	}
	waitFor(t, func() bool { return rec.count(bus.EventTypeInterruptionCleared) == 1 }, "cleared event never published")
	waitFor(t, func() bool { return rec.count(bus.EventTypeListeningStopped) == 1 }, "listening stopped event never published")

	// Speech stays paused for the user to resume
	if got := c.Status(); got != StatusPaused {
		t.Errorf("status = %v, want paused after interruption", got)
	}
}

func TestInterruption_IgnoredWhileNotSpeaking(t *testing.T) {
	engine := &mockEngine{}
	c, _, eventBus := newTestController(t, engine, fastListenConfig())

	rec := recordEvents(eventBus, bus.EventTypeInterruption)

	c.ToggleListening()

	// Window elapses with nothing playing: no pause, no flag, listening ends
	waitFor(t, func() bool { return !c.Listening() }, "listening never ended")

	if engine.pauseCount() != 0 {
		t.Error("interruption paused the engine while nothing was speaking")
	}
	if c.Session().InterruptionDetected {
		t.Error("interruption flag set while nothing was speaking")
	}
	if rec.count(bus.EventTypeInterruption) != 0 {
		t.Error("interruption event published while nothing was speaking")
	}
	// No follow-up without an interruption
	if text := c.Session().Text; text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestInterruption_ToggleOffCancelsWindow(t *testing.T) {
	engine := &mockEngine{}
	cfg := fastListenConfig()
	cfg.ListenDelay = 150 * time.Millisecond
	c, _, _ := newTestController(t, engine, cfg)

	c.SetText("words being spoken")
	c.Speak()

	c.ToggleListening()
	if off := c.ToggleListening(); off {
		t.Fatal("second toggle should report listening off")
	}
	if c.Listening() {
		t.Error("Listening() should be false after toggle off")
	}

	// Past the would-be fire time: the cancelled window must stay quiet
	time.Sleep(250 * time.Millisecond)
	if engine.pauseCount() != 0 {
		t.Error("cancelled window still paused the engine")
	}
	if c.Status() != StatusSpeaking {
		t.Errorf("status = %v, want still speaking", c.Status())
	}
}

func TestInterruption_AmplitudeFiresEarly(t *testing.T) {
	engine := &mockEngine{}
	cfg := fastListenConfig()
	cfg.ListenDelay = 5 * time.Second // only the amplitude path can fire in time
	cfg.BargeInThreshold = 60
	c, _, _ := newTestController(t, engine, cfg)

	c.AttachLevelSource(func() float64 { return 85 })

	c.SetText("talking over this")
	c.Speak()
	c.ToggleListening()

	waitFor(t, func() bool {
		s := c.Session()
		return s.Status == StatusPaused && s.InterruptionDetected
	}, "sustained loud level never fired the barge-in")
}

func TestInterruption_QuietAmbientWaitsForDelay(t *testing.T) {
	engine := &mockEngine{}
	cfg := fastListenConfig()
	cfg.ListenDelay = 200 * time.Millisecond
	cfg.BargeInThreshold = 60
	c, _, _ := newTestController(t, engine, cfg)

	c.AttachLevelSource(func() float64 { return 10 })

	c.SetText("calm room")
	c.Speak()
	c.ToggleListening()

	// Quiet ambient: nothing before the fixed delay
	time.Sleep(100 * time.Millisecond)
	if engine.pauseCount() != 0 {
		t.Error("quiet ambient level fired the barge-in early")
	}

	// The fixed delay still fires as the fallback
	waitFor(t, func() bool { return c.Status() == StatusPaused }, "fixed delay fallback never fired")
}

func TestInterruption_CloseCancelsWindow(t *testing.T) {
	engine := &mockEngine{}
	cfg := fastListenConfig()
	cfg.ListenDelay = 150 * time.Millisecond
	c, _, _ := newTestController(t, engine, cfg)

	c.SetText("to be closed")
	c.Speak()
	c.ToggleListening()

	c.Close()

	if c.Listening() {
		t.Error("Listening() should be false after Close")
	}
	time.Sleep(250 * time.Millisecond)
	if engine.pauseCount() != 0 {
		t.Error("closed controller still paused the engine")
	}
}
