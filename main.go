// VoiceDeck - browser-controlled speech playback deck
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/normanking/voicedeck/internal/bus"
	"github.com/normanking/voicedeck/internal/config"
	"github.com/normanking/voicedeck/internal/dashboard"
	"github.com/normanking/voicedeck/internal/logging"
	"github.com/normanking/voicedeck/internal/media"
	"github.com/normanking/voicedeck/internal/monitor"
	"github.com/normanking/voicedeck/internal/playback"
	"github.com/normanking/voicedeck/internal/settings"
	"github.com/normanking/voicedeck/internal/speech"
)

// Global logger instance
var syslog *logging.Logger

func main() {
	host := pflag.String("host", "", "Dashboard bind address (overrides config)")
	port := pflag.IntP("port", "p", 0, "Dashboard port (overrides config)")
	engineName := pflag.StringP("engine", "e", "", "Speech engine: auto, say, espeak, http, sim (overrides config)")
	serverURL := pflag.String("server-url", "", "Speech server URL for the http engine (overrides config)")
	logLevel := pflag.StringP("log", "l", "", "Log level: debug, info, warn, error (overrides config)")
	noWatch := pflag.Bool("no-watch", false, "Disable config file watching")
	pflag.Parse()

	config.LoadEnvFiles()

	// Load returns defaults when the file is missing or broken
	cfg, cfgErr := config.Load()
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *engineName != "" {
		cfg.Engine.Provider = *engineName
	}
	if *serverURL != "" {
		cfg.Engine.ServerURL = *serverURL
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Logging.Level)
	if cfg.Logging.Dir != "" {
		logCfg.LogDir = cfg.Logging.Dir
	}

	var err error
	syslog, err = logging.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer syslog.Close()

	syslog.Info("main", "========================================", nil)
	syslog.Info("main", "VoiceDeck starting...", nil)
	syslog.Info("main", "========================================", nil)

	if cfgErr != nil {
		syslog.Warn("config", "Failed to load config, using defaults", map[string]interface{}{
			"error": cfgErr.Error(),
		})
	}
	syslog.Info("config", "Configuration loaded", map[string]interface{}{
		"dashboard": fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"engine":    cfg.Engine.Provider,
	})

	zlogger := syslog.Zerolog()

	syslog.Debug("bus", "Creating event bus", nil)
	eventBus := bus.NewEventBus()

	syslog.Debug("media", "Creating media manager", nil)
	mediaCfg := media.DefaultConfig()
	mediaCfg.FrameRate = cfg.Monitors.FrameRate
	mediaMgr := media.NewManager(mediaCfg, mediaPolicy(cfg.Monitors.Permissions), eventBus, zlogger)
	defer mediaMgr.Close()

	syslog.Debug("settings", "Creating settings store", nil)
	store := settings.NewStore(
		settings.VoiceSettings{
			VoiceID: cfg.Voice.VoiceID,
			Rate:    cfg.Voice.Rate,
			Pitch:   cfg.Voice.Pitch,
			Volume:  cfg.Voice.Volume,
			Emotion: settings.Emotion(cfg.Voice.Emotion),
			Style:   settings.Style(cfg.Voice.Style),
		},
		settings.EnvironmentSettings{
			NoiseLevel:   settings.NoiseNormal,
			AdaptToNoise: cfg.Voice.AdaptToNoise,
		},
		eventBus, zlogger,
	)

	syslog.Debug("speech", "Selecting speech engine", nil)
	engine, err := speech.Select(context.Background(), speech.SelectorConfig{
		Engine:     cfg.Engine.Provider,
		ServerURL:  cfg.Engine.ServerURL,
		ProbePorts: cfg.Engine.ProbePorts,
		Timeout:    cfg.Engine.Timeout,
	}, zlogger)
	if err != nil {
		syslog.Error("speech", "Speech engine selection failed", err, nil)
		os.Exit(1)
	}
	syslog.Info("speech", "Speech engine selected", map[string]interface{}{
		"engine": engine.Name(),
	})
	eventBus.Publish(bus.Event{
		Type: bus.EventTypeEngineSelected,
		Data: map[string]any{"engine": engine.Name()},
	})

	syslog.Debug("playback", "Creating playback controller", nil)
	playCfg := playback.DefaultConfig()
	playCfg.ListenDelay = cfg.Interruption.ListenDelay
	playCfg.ClearDelay = cfg.Interruption.ClearDelay
	playCfg.BargeInThreshold = cfg.Interruption.AmplitudeThreshold
	controller := playback.NewController(playCfg, engine, store, eventBus, zlogger)
	defer controller.Close()

	syslog.Debug("monitor", "Creating detection monitors", nil)
	detector := monitor.NewRandomDetector(cfg.Monitors.GestureChance)
	emotionMon := monitor.NewEmotionMonitor(mediaMgr, detector, eventBus, zlogger)
	gestureMon := monitor.NewGestureMonitor(mediaMgr, detector, eventBus, zlogger)
	noiseMon := monitor.NewNoiseMonitor(mediaMgr, store, eventBus, zlogger)
	defer emotionMon.Stop()
	defer gestureMon.Stop()
	defer noiseMon.Stop()

	// Detections flow into the settings store; the store clamps and fans
	// the updates back out on the bus
	emotionMon.OnDetection(func(sample monitor.DetectionSample) {
		store.SetEmotion(settings.Emotion(sample.Label))
	})
	gestureMon.OnDetection(func(sample monitor.DetectionSample) {
		monitor.ApplyGesture(store, sample.Label)
	})

	if cfg.Interruption.UseAmplitude {
		controller.AttachLevelSource(noiseMon.Level)
	}

	if cfg.Monitors.EmotionOnBoot {
		startMonitor("emotion", emotionMon.Start)
	}
	if cfg.Monitors.GestureOnBoot {
		startMonitor("gesture", gestureMon.Start)
	}
	if cfg.Monitors.NoiseOnBoot {
		startMonitor("noise", noiseMon.Start)
	}

	if !*noWatch {
		if configDir, dirErr := config.GetConfigDir(); dirErr == nil {
			configPath := filepath.Join(configDir, "config.yaml")
			watcher, watchErr := config.NewWatcher(configPath, cfg, func(old, updated *config.Config) {
				applyLiveConfig(store, old, updated)
			}, zlogger)
			if watchErr != nil {
				syslog.Warn("config", "Config watcher disabled", map[string]interface{}{
					"error": watchErr.Error(),
				})
			} else {
				defer watcher.Close()
				syslog.Debug("config", "Watching config file", map[string]interface{}{
					"path": configPath,
				})
			}
		}
	}

	syslog.Debug("dashboard", "Creating dashboard server", nil)
	dash := dashboard.New(cfg, controller, store, dashboard.Monitors{
		Emotion: emotionMon,
		Gesture: gestureMon,
		Noise:   noiseMon,
	}, eventBus, syslog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		sig := <-sigCh
		syslog.Info("main", "Shutting down", map[string]interface{}{
			"signal": sig.String(),
		})
		cancel()
	}()

	syslog.Info("main", "Dashboard ready", map[string]interface{}{
		"url": fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port),
	})

	if err := dash.Start(ctx); err != nil {
		syslog.Error("dashboard", "Dashboard server failed", err, nil)
		os.Exit(1)
	}

	syslog.Info("main", "VoiceDeck shutdown complete", nil)
}

// startMonitor starts one monitor in the background so a pending
// permission prompt cannot stall boot
func startMonitor(name string, start func(context.Context) error) {
	go func() {
		if err := start(context.Background()); err != nil {
			syslog.Warn("monitor", "Monitor failed to start on boot", map[string]interface{}{
				"monitor": name,
				"error":   err.Error(),
			})
		}
	}()
}

// mediaPolicy maps the configured permission mode onto a policy
func mediaPolicy(mode string) media.PermissionPolicy {
	switch mode {
	case "deny":
		return media.StaticPolicy{Grant: false}
	case "prompt":
		return media.PromptPolicy{Ask: terminalAsk()}
	default:
		return media.StaticPolicy{Grant: true}
	}
}

// terminalAsk prompts on stdin for each device request. The mutex keeps
// concurrent requests from interleaving their prompts.
func terminalAsk() func(ctx context.Context, kind media.DeviceKind) bool {
	reader := bufio.NewReader(os.Stdin)
	var mu sync.Mutex
	return func(_ context.Context, kind media.DeviceKind) bool {
		mu.Lock()
		defer mu.Unlock()

		fmt.Printf("Allow %s access? [y/N]: ", kind)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

// applyLiveConfig pushes reloadable fields from a config file change into
// the running components. Engine and server changes need a restart.
func applyLiveConfig(store *settings.Store, old, updated *config.Config) {
	if old.Voice == updated.Voice {
		return
	}

	store.UpdateVoice(settings.VoiceUpdate{
		VoiceID: &updated.Voice.VoiceID,
		Rate:    &updated.Voice.Rate,
		Pitch:   &updated.Voice.Pitch,
		Volume:  &updated.Voice.Volume,
		Emotion: (*settings.Emotion)(&updated.Voice.Emotion),
		Style:   (*settings.Style)(&updated.Voice.Style),
	})
	store.SetAdaptToNoise(updated.Voice.AdaptToNoise)

	syslog.Info("config", "Voice defaults applied from config reload", nil)
}
