package media

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testManager(t *testing.T, policy PermissionPolicy) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.FrameRate = 100 // keep test waits short
	cfg.Wander = false
	m := NewManager(cfg, policy, nil, zerolog.Nop())
	t.Cleanup(m.Close)
	return m
}

func TestAcquireAndReleaseCamera(t *testing.T) {
	m := testManager(t, StaticPolicy{Grant: true})

	stream, err := m.AcquireCamera(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if got := m.OpenStreams(); got != 1 {
		t.Errorf("open streams = %d, want 1", got)
	}

	stream.Release()
	if got := m.OpenStreams(); got != 0 {
		t.Errorf("open streams after release = %d, want 0", got)
	}
}

func TestDoubleReleaseIsSafe(t *testing.T) {
	m := testManager(t, StaticPolicy{Grant: true})

	stream, err := m.AcquireMicrophone(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	stream.Release()
	stream.Release()

	if got := m.OpenStreams(); got != 0 {
		t.Errorf("open streams = %d, want 0", got)
	}
}

func TestPermissionDenied(t *testing.T) {
	m := testManager(t, StaticPolicy{Grant: false})

	if _, err := m.AcquireCamera(context.Background()); err != ErrPermissionDenied {
		t.Errorf("camera err = %v, want ErrPermissionDenied", err)
	}
	if _, err := m.AcquireMicrophone(context.Background()); err != ErrPermissionDenied {
		t.Errorf("mic err = %v, want ErrPermissionDenied", err)
	}
	if got := m.OpenStreams(); got != 0 {
		t.Errorf("open streams = %d, want 0 after denials", got)
	}
}

func TestPromptPolicyHonorsContext(t *testing.T) {
	policy := PromptPolicy{
		Ask: func(ctx context.Context, _ DeviceKind) bool {
			<-ctx.Done() // never answered
			return true
		},
	}
	m := testManager(t, policy)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := m.AcquireCamera(ctx); err != ErrPermissionDenied {
		t.Errorf("err = %v, want ErrPermissionDenied on unanswered prompt", err)
	}
}

func TestCameraFramesFlow(t *testing.T) {
	m := testManager(t, StaticPolicy{Grant: true})

	stream, err := m.AcquireCamera(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer stream.Release()

	select {
	case frame := <-stream.Frames():
		if frame.Width != 640 || frame.Height != 480 {
			t.Errorf("frame size = %dx%d, want 640x480", frame.Width, frame.Height)
		}
		if frame.Seq == 0 {
			t.Error("frame seq should start at 1")
		}
	case <-time.After(time.Second):
		t.Fatal("no frame within 1s")
	}
}

func TestMicLevelDrivesSpectrumMean(t *testing.T) {
	m := testManager(t, StaticPolicy{Grant: true})
	m.SetMicLevel(200)

	stream, err := m.AcquireMicrophone(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer stream.Release()

	select {
	case frame := <-stream.Spectra():
		if len(frame.Bins) != SpectrumBins {
			t.Fatalf("bins = %d, want %d", len(frame.Bins), SpectrumBins)
		}
		mean := frame.Mean()
		if mean < 190 || mean > 210 {
			t.Errorf("mean = %v, want ~200", mean)
		}
	case <-time.After(time.Second):
		t.Fatal("no spectrum within 1s")
	}
}

func TestReleaseClosesChannel(t *testing.T) {
	m := testManager(t, StaticPolicy{Grant: true})

	stream, err := m.AcquireMicrophone(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	stream.Release()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-stream.Spectra():
			if !ok {
				return // closed as expected
			}
		case <-deadline:
			t.Fatal("channel not closed within 1s of release")
		}
	}
}

func TestManagerCloseReleasesStreams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameRate = 100
	m := NewManager(cfg, StaticPolicy{Grant: true}, nil, zerolog.Nop())

	if _, err := m.AcquireCamera(context.Background()); err != nil {
		t.Fatalf("acquire camera: %v", err)
	}
	if _, err := m.AcquireMicrophone(context.Background()); err != nil {
		t.Fatalf("acquire mic: %v", err)
	}

	m.Close()

	if got := m.OpenStreams(); got != 0 {
		t.Errorf("open streams after close = %d, want 0", got)
	}
	if _, err := m.AcquireCamera(context.Background()); err != ErrManagerClosed {
		t.Errorf("acquire after close = %v, want ErrManagerClosed", err)
	}
}

func TestSpectrumMean(t *testing.T) {
	frame := SpectrumFrame{Bins: []byte{0, 255, 0, 255}}
	if got := frame.Mean(); got != 127.5 {
		t.Errorf("mean = %v, want 127.5", got)
	}

	empty := SpectrumFrame{}
	if got := empty.Mean(); got != 0 {
		t.Errorf("empty mean = %v, want 0", got)
	}
}
