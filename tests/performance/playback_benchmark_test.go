package performance

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/normanking/voicedeck/internal/bus"
	"github.com/normanking/voicedeck/internal/playback"
	"github.com/normanking/voicedeck/internal/settings"
	"github.com/normanking/voicedeck/internal/speech"
	"github.com/normanking/voicedeck/tests/testutil"
)

// BenchmarkConfig holds configuration for performance benchmarks
type BenchmarkConfig struct {
	Iterations int
	TextChars  int
}

// LatencyMetrics holds latency statistics
type LatencyMetrics struct {
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	Median time.Duration
	P95    time.Duration
	P99    time.Duration
}

// MemoryMetrics holds memory usage statistics
type MemoryMetrics struct {
	Baseline    uint64
	Final       uint64
	AllocBytes  uint64
	TotalAllocs uint64
}

// PerformanceReport holds complete benchmark results
type PerformanceReport struct {
	Config          BenchmarkConfig
	SanitizeLatency LatencyMetrics
	SpeakLatency    LatencyMetrics
	SettingsLatency LatencyMetrics
	CycleLatency    LatencyMetrics
	Memory          MemoryMetrics
	SuccessRate     float64
	Duration        time.Duration
	IterationsRun   int
	IterationsFail  int
}

// TestPlaybackPerformance benchmarks the full speak cycle against a mock
// engine: sanitize, speak start, settings round trip, and the complete
// speak-to-idle cycle
func TestPlaybackPerformance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping performance test in short mode")
	}

	config := BenchmarkConfig{
		Iterations: 200,
		TextChars:  400,
	}

	report := runPlaybackBenchmark(t, config)
	printPerformanceReport(t, report)

	validatePerformanceCriteria(t, report)
}

// runPlaybackBenchmark executes the performance test
func runPlaybackBenchmark(t *testing.T, config BenchmarkConfig) PerformanceReport {
	logger := zerolog.Nop()

	eventBus := bus.NewEventBus()
	store := settings.NewStore(settings.DefaultVoiceSettings(), settings.DefaultEnvironmentSettings(), eventBus, logger)
	engine := testutil.NewMockEngine()
	controller := playback.NewController(nil, engine, store, eventBus, logger)
	defer controller.Close()

	// Markdown-heavy input so the sanitizer has real work to do
	fragment := "**Deck** check `one two` three, [link](http://example.com) and _more_. "
	raw := strings.Repeat(fragment, config.TextChars/len(fragment)+1)[:config.TextChars]

	// Collect baseline memory
	runtime.GC()
	var memStart runtime.MemStats
	runtime.ReadMemStats(&memStart)

	sanitizeLatencies := make([]time.Duration, 0, config.Iterations)
	speakLatencies := make([]time.Duration, 0, config.Iterations)
	settingsLatencies := make([]time.Duration, 0, config.Iterations)
	cycleLatencies := make([]time.Duration, 0, config.Iterations)

	successCount := 0
	failCount := 0

	startTime := time.Now()

	for i := 0; i < config.Iterations; i++ {
		iterStart := time.Now()

		// Step 1: sanitize
		sanitizeStart := time.Now()
		clean := speech.Sanitize(raw)
		sanitizeLatency := time.Since(sanitizeStart)
		if clean == "" {
			t.Logf("Iteration %d: sanitizer emptied the text", i)
			failCount++
			continue
		}
		sanitizeLatencies = append(sanitizeLatencies, sanitizeLatency)

		// Step 2: speak start
		speakStart := time.Now()
		controller.SetText(raw)
		controller.Speak()
		speakLatency := time.Since(speakStart)
		if controller.Status() != playback.StatusSpeaking {
			t.Logf("Iteration %d: speak did not start", i)
			failCount++
			continue
		}
		speakLatencies = append(speakLatencies, speakLatency)

		// Step 3: settings round trip
		rate := 0.5 + float64(i%16)*0.1
		settingsStart := time.Now()
		applied := store.UpdateVoice(settings.VoiceUpdate{Rate: &rate})
		settingsLatency := time.Since(settingsStart)
		if applied.Rate < settings.RateMin || applied.Rate > settings.RateMax {
			t.Logf("Iteration %d: rate escaped its bounds: %f", i, applied.Rate)
			failCount++
			continue
		}
		settingsLatencies = append(settingsLatencies, settingsLatency)

		// Step 4: finish the utterance and complete the cycle
		engine.FinishActive()
		if controller.Status() != playback.StatusIdle {
			t.Logf("Iteration %d: cycle did not return to idle", i)
			failCount++
			continue
		}
		cycleLatencies = append(cycleLatencies, time.Since(iterStart))

		successCount++

		if (i+1)%50 == 0 {
			t.Logf("Progress: %d/%d iterations complete", i+1, config.Iterations)
		}
	}

	totalDuration := time.Since(startTime)

	require.Equal(t, config.Iterations, successCount+failCount,
		"Every iteration should be accounted for")

	// Collect final memory
	runtime.GC()
	var memEnd runtime.MemStats
	runtime.ReadMemStats(&memEnd)

	return PerformanceReport{
		Config:          config,
		SanitizeLatency: calculateLatencyMetrics(sanitizeLatencies),
		SpeakLatency:    calculateLatencyMetrics(speakLatencies),
		SettingsLatency: calculateLatencyMetrics(settingsLatencies),
		CycleLatency:    calculateLatencyMetrics(cycleLatencies),
		Memory: MemoryMetrics{
			Baseline:    memStart.Alloc,
			Final:       memEnd.Alloc,
			AllocBytes:  memEnd.TotalAlloc - memStart.TotalAlloc,
			TotalAllocs: memEnd.Mallocs - memStart.Mallocs,
		},
		SuccessRate:    float64(successCount) / float64(config.Iterations) * 100,
		Duration:       totalDuration,
		IterationsRun:  successCount,
		IterationsFail: failCount,
	}
}

// calculateLatencyMetrics computes statistical metrics for latency data
func calculateLatencyMetrics(latencies []time.Duration) LatencyMetrics {
	if len(latencies) == 0 {
		return LatencyMetrics{}
	}

	// Sort for percentile calculation
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	min := sorted[0]
	max := sorted[len(sorted)-1]
	median := sorted[len(sorted)/2]
	p95 := sorted[int(float64(len(sorted))*0.95)]
	p99 := sorted[int(float64(len(sorted))*0.99)]

	var sum time.Duration
	for _, lat := range latencies {
		sum += lat
	}
	mean := sum / time.Duration(len(latencies))

	return LatencyMetrics{
		Min:    min,
		Max:    max,
		Mean:   mean,
		Median: median,
		P95:    p95,
		P99:    p99,
	}
}

// printPerformanceReport prints a detailed performance report
func printPerformanceReport(t *testing.T, report PerformanceReport) {
	t.Log("\n========================================")
	t.Log("      PLAYBACK PERFORMANCE REPORT")
	t.Log("========================================\n")

	t.Logf("Configuration:")
	t.Logf("  Iterations:        %d", report.Config.Iterations)
	t.Logf("  Text Length:       %d chars\n", report.Config.TextChars)

	t.Logf("Execution Summary:")
	t.Logf("  Total Duration:    %v", report.Duration)
	t.Logf("  Success Rate:      %.2f%% (%d/%d)", report.SuccessRate, report.IterationsRun, report.Config.Iterations)
	t.Logf("  Failed:            %d\n", report.IterationsFail)

	printLatencyTable(t, "Sanitize", report.SanitizeLatency)
	printLatencyTable(t, "Speak", report.SpeakLatency)
	printLatencyTable(t, "Settings", report.SettingsLatency)
	printLatencyTable(t, "Cycle", report.CycleLatency)

	t.Logf("\nMemory Usage:")
	t.Logf("  Baseline:          %s", formatBytes(report.Memory.Baseline))
	t.Logf("  Final:             %s", formatBytes(report.Memory.Final))
	t.Logf("  Total Allocated:   %s", formatBytes(report.Memory.AllocBytes))
	t.Logf("  Total Allocs:      %d", report.Memory.TotalAllocs)

	t.Log("\n========================================")
}

// printLatencyTable prints a formatted latency metrics table
func printLatencyTable(t *testing.T, name string, metrics LatencyMetrics) {
	t.Logf("\n%s Latency:", name)
	t.Logf("  Min:     %v", metrics.Min)
	t.Logf("  Mean:    %v", metrics.Mean)
	t.Logf("  Median:  %v", metrics.Median)
	t.Logf("  P95:     %v", metrics.P95)
	t.Logf("  P99:     %v", metrics.P99)
	t.Logf("  Max:     %v", metrics.Max)
}

// validatePerformanceCriteria checks if performance meets targets
func validatePerformanceCriteria(t *testing.T, report PerformanceReport) {
	t.Log("\n========================================")
	t.Log("      PERFORMANCE VALIDATION")
	t.Log("========================================\n")

	// Success rate: Should be > 95%
	if report.SuccessRate < 95.0 {
		t.Errorf("❌ Success rate %.2f%% below target (95%%)", report.SuccessRate)
	} else {
		t.Logf("✅ Success rate: %.2f%%", report.SuccessRate)
	}

	// Full cycle: all in-process, P95 should be < 50ms
	if report.CycleLatency.P95 > 50*time.Millisecond {
		t.Errorf("❌ Cycle P95 latency %v exceeds target 50ms", report.CycleLatency.P95)
	} else {
		t.Logf("✅ Cycle P95 latency: %v (target: 50ms)", report.CycleLatency.P95)
	}

	// Speak start: P95 should be < 20ms
	if report.SpeakLatency.P95 > 20*time.Millisecond {
		t.Errorf("❌ Speak P95 latency %v exceeds target 20ms", report.SpeakLatency.P95)
	} else {
		t.Logf("✅ Speak P95 latency: %v (target: 20ms)", report.SpeakLatency.P95)
	}

	// Sanitizer: P95 should be < 5ms for a few hundred characters
	if report.SanitizeLatency.P95 > 5*time.Millisecond {
		t.Errorf("❌ Sanitize P95 latency %v exceeds target 5ms", report.SanitizeLatency.P95)
	} else {
		t.Logf("✅ Sanitize P95 latency: %v (target: 5ms)", report.SanitizeLatency.P95)
	}

	// Memory: Should not grow unbounded (< 50% increase)
	memGrowth := float64(report.Memory.Final-report.Memory.Baseline) / float64(report.Memory.Baseline) * 100
	if memGrowth > 50 {
		t.Errorf("❌ Memory growth %.2f%% exceeds 50%%", memGrowth)
	} else {
		t.Logf("✅ Memory growth: %.2f%%", memGrowth)
	}

	t.Log("\n========================================")
}

// formatBytes formats byte count as human-readable string
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
