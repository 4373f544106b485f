package playback

import (
	"context"
	"strings"
	"time"

	"github.com/normanking/voicedeck/internal/bus"
)

// Amplitude barge-in: the ambient level must stay above the threshold for
// a full window of consecutive polls
const (
	bargeInPoll   = 100 * time.Millisecond
	bargeInWindow = 500 * time.Millisecond
)

// AttachLevelSource gives the barge-in detector a live ambient level to
// read, normally the noise monitor's instantaneous level. Without one,
// interruptions fire on the fixed delay alone.
func (c *Controller) AttachLevelSource(fn func() float64) {
	c.listenMu.Lock()
	c.levelFn = fn
	c.listenMu.Unlock()
}

// Listening reports whether a listen window is open
func (c *Controller) Listening() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.session.Listening
}

// ToggleListening opens a barge-in listen window, or cancels the one in
// progress. Returns the new listening state.
func (c *Controller) ToggleListening() bool {
	c.listenMu.Lock()
	if c.listenCancel != nil {
		cancel := c.listenCancel
		c.listenCancel = nil
		c.listenMu.Unlock()
		cancel()

		c.stateMu.Lock()
		c.session.Listening = false
		c.session.InterruptionDetected = false
		c.stateMu.Unlock()

		c.publish(bus.EventTypeListeningStopped, map[string]any{"listening": false})
		c.logger.Info().Msg("Listening cancelled")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.listenCancel = cancel
	levelFn := c.levelFn
	c.listenMu.Unlock()

	c.stateMu.Lock()
	c.session.Listening = true
	c.stateMu.Unlock()

	c.publish(bus.EventTypeListeningStarted, map[string]any{"listening": true})
	c.logger.Info().Msg("Listening for interruption")

	go c.runListenWindow(ctx, levelFn)
	return true
}

// cancelListening tears down the listen window without events; Close path
func (c *Controller) cancelListening() {
	c.listenMu.Lock()
	cancel := c.listenCancel
	c.listenCancel = nil
	c.listenMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	c.stateMu.Lock()
	c.session.Listening = false
	c.session.InterruptionDetected = false
	c.stateMu.Unlock()
}

// runListenWindow waits for a barge-in, pauses speech, holds the
// interruption flag for the clear delay, then appends the follow-up
func (c *Controller) runListenWindow(ctx context.Context, levelFn func() float64) {
	if !c.waitForBargeIn(ctx, levelFn) {
		return
	}

	if c.Status() != StatusSpeaking {
		c.logger.Debug().Msg("Interruption window elapsed while not speaking")
		c.finishListening(ctx, false)
		return
	}

	c.Pause()
	c.stateMu.Lock()
	c.session.InterruptionDetected = true
	c.stateMu.Unlock()
	c.publish(bus.EventTypeInterruption, map[string]any{"paused": true})
	c.logger.Info().Msg("Interruption detected, speech paused")

	select {
	case <-ctx.Done():
		return
	case <-time.After(c.config.ClearDelay):
	}

	c.finishListening(ctx, true)
}

// waitForBargeIn blocks until the barge-in condition is met or the window
// is cancelled. With no level source the fixed delay decides alone;
// with one, a sustained loud stretch fires early.
func (c *Controller) waitForBargeIn(ctx context.Context, levelFn func() float64) bool {
	deadline := time.NewTimer(c.config.ListenDelay)
	defer deadline.Stop()

	if levelFn == nil {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return true
		}
	}

	poll := time.NewTicker(bargeInPoll)
	defer poll.Stop()

	needed := int(bargeInWindow / bargeInPoll)
	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return true
		case <-poll.C:
			if levelFn() > c.config.BargeInThreshold {
				consecutive++
				if consecutive >= needed {
					c.logger.Debug().Float64("level", levelFn()).Msg("Sustained ambient level, treating as barge-in")
					return true
				}
			} else {
				consecutive = 0
			}
		}
	}
}

// finishListening closes the window; after a real interruption the canned
// follow-up is appended to the staged text
func (c *Controller) finishListening(ctx context.Context, interrupted bool) {
	if ctx.Err() != nil {
		return
	}

	c.listenMu.Lock()
	if c.listenCancel != nil {
		c.listenCancel()
		c.listenCancel = nil
	}
	c.listenMu.Unlock()

	c.stateMu.Lock()
	c.session.Listening = false
	c.session.InterruptionDetected = false
	if interrupted && c.config.FollowUp != "" {
		if strings.TrimSpace(c.session.Text) == "" {
			c.session.Text = c.config.FollowUp
		} else {
			c.session.Text = strings.TrimSpace(c.session.Text) + " " + c.config.FollowUp
		}
	}
	c.stateMu.Unlock()

	if interrupted {
		c.publish(bus.EventTypeInterruptionCleared, map[string]any{"paused": true})
		c.logger.Info().Msg("Interruption cleared")
	}
	c.publish(bus.EventTypeListeningStopped, map[string]any{"listening": false})
}
