package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SelectorConfig holds engine selection options
type SelectorConfig struct {
	Engine     string        // "auto" or an explicit engine name
	ServerURL  string        // Explicit speech server URL, skips probing
	ProbePorts []int         // Ports scanned for a speech server in auto mode
	Timeout    time.Duration // HTTP engine and probe timeout
}

// Select picks the speech engine. An explicitly configured engine must pass
// its health check; "auto" walks say > espeak > http > sim and takes the
// first that answers. The sim engine always answers, so auto cannot fail.
func Select(ctx context.Context, cfg SelectorConfig, logger zerolog.Logger) (Engine, error) {
	switch cfg.Engine {
	case "", "auto":
		return selectAuto(ctx, cfg, logger)
	case "say":
		engine := NewSayEngine(logger)
		if !engine.IsAvailable() {
			return nil, fmt.Errorf("say engine: %w", ErrEngineUnavailable)
		}
		return engine, nil
	case "espeak":
		engine := NewESpeakEngine(logger)
		if err := engine.Health(ctx); err != nil {
			return nil, fmt.Errorf("espeak engine: %w", err)
		}
		return engine, nil
	case "http":
		url := cfg.ServerURL
		if url == "" {
			prober := NewProber(&ProbeConfig{Ports: cfg.ProbePorts, Timeout: cfg.Timeout}, logger)
			found, ok := prober.First(ctx)
			if !ok {
				return nil, fmt.Errorf("http engine: no speech server found: %w", ErrEngineUnavailable)
			}
			url = found
		}
		engine := NewHTTPEngine(&HTTPConfig{ServerURL: url, Timeout: cfg.Timeout}, logger)
		if err := engine.Health(ctx); err != nil {
			return nil, fmt.Errorf("http engine: %w", err)
		}
		return engine, nil
	case "sim":
		return NewSimEngine(logger), nil
	default:
		return nil, fmt.Errorf("unknown speech engine %q", cfg.Engine)
	}
}

// selectAuto walks the priority chain and returns the first healthy engine
func selectAuto(ctx context.Context, cfg SelectorConfig, logger zerolog.Logger) (Engine, error) {
	sayEngine := NewSayEngine(logger)
	espeakEngine := NewESpeakEngine(logger)

	if sayEngine.IsAvailable() {
		logger.Info().Msg("Using macOS say for speech")
		return sayEngine, nil
	}
	if espeakEngine.Health(ctx) == nil {
		logger.Info().Msg("Using eSpeak NG for speech")
		return espeakEngine, nil
	}

	probeCfg := &ProbeConfig{Ports: cfg.ProbePorts, Timeout: cfg.Timeout}
	if cfg.ServerURL != "" {
		probeCfg.CustomURLs = []string{cfg.ServerURL}
	}
	prober := NewProber(probeCfg, logger)
	if url, ok := prober.First(ctx); ok {
		logger.Info().Str("url", url).Msg("Using local speech server")
		return NewHTTPEngine(&HTTPConfig{ServerURL: url, Timeout: cfg.Timeout}, logger), nil
	}

	logger.Warn().Msg("No speech engine available - simulating speech timing")
	return NewSimEngine(logger), nil
}
