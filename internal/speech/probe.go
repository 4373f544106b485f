package speech

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ProbeConfig holds configuration for speech server discovery
type ProbeConfig struct {
	Ports      []int         `json:"ports"`       // Ports to scan on localhost
	CustomURLs []string      `json:"custom_urls"` // Additional URLs to check
	Timeout    time.Duration `json:"timeout"`     // Per-probe timeout
}

// DefaultProbeConfig returns sensible defaults
func DefaultProbeConfig() *ProbeConfig {
	return &ProbeConfig{
		Ports:   []int{8880, 8881, 8882, 8883, 8884},
		Timeout: 2 * time.Second,
	}
}

// Prober scans localhost for running speech servers
type Prober struct {
	config     *ProbeConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewProber creates a speech server prober
func NewProber(config *ProbeConfig, logger zerolog.Logger) *Prober {
	if config == nil {
		config = DefaultProbeConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultProbeConfig().Timeout
	}

	return &Prober{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.With().Str("component", "probe").Logger(),
	}
}

// Scan probes all configured ports and URLs in parallel and returns the
// base URLs that answered the health check, lowest port first
func (p *Prober) Scan(ctx context.Context) []string {
	var wg sync.WaitGroup
	results := make(chan string, len(p.config.Ports)+len(p.config.CustomURLs))

	for _, port := range p.config.Ports {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			url := fmt.Sprintf("http://localhost:%d", port)
			if p.probe(ctx, url) {
				results <- url
			}
		}(port)
	}

	for _, url := range p.config.CustomURLs {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			if p.probe(ctx, url) {
				results <- url
			}
		}(url)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var found []string
	for url := range results {
		found = append(found, url)
	}
	sort.Strings(found)

	if len(found) > 0 {
		p.logger.Info().
			Int("count", len(found)).
			Strs("servers", found).
			Msg("Speech servers discovered")
	}
	return found
}

// First returns the first healthy speech server, or false if none answered
func (p *Prober) First(ctx context.Context) (string, bool) {
	found := p.Scan(ctx)
	if len(found) == 0 {
		return "", false
	}
	return found[0], true
}

// probe checks a single URL for a healthy speech server
func (p *Prober) probe(ctx context.Context, baseURL string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	p.logger.Debug().Str("url", baseURL).Msg("Speech server answered health check")
	return true
}
