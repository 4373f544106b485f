package playback

import (
	"sync"
	"time"
)

// Record is one utterance in the history.
type Record struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Voice     string    `json:"voice"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Completed bool      `json:"completed"`
}

// HistoryConfig configures utterance history retention.
type HistoryConfig struct {
	// MaxRecords is the maximum number of utterances to retain (default: 50)
	MaxRecords int
	// InactivityTimeout is the duration after which history expires (default: 30 minutes)
	InactivityTimeout time.Duration
}

// DefaultHistoryConfig returns sensible defaults for utterance history.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		MaxRecords:        50,
		InactivityTimeout: 30 * time.Minute,
	}
}

// History keeps the most recent utterances for the dashboard's history tab.
// It trims old records to stay within MaxRecords and clears itself after
// a stretch of inactivity.
type History struct {
	mu           sync.RWMutex
	records      []Record
	lastActivity time.Time
	config       HistoryConfig
}

// NewHistory creates a new History with the given config.
func NewHistory(config HistoryConfig) *History {
	if config.MaxRecords <= 0 {
		config.MaxRecords = 50
	}
	if config.InactivityTimeout <= 0 {
		config.InactivityTimeout = 30 * time.Minute
	}

	return &History{
		records:      make([]Record, 0, config.MaxRecords),
		lastActivity: time.Now(),
		config:       config,
	}
}

// Add records a started utterance.
func (h *History) Add(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.isExpiredLocked() {
		h.clearLocked()
	}

	if rec.Started.IsZero() {
		rec.Started = time.Now()
	}

	h.records = append(h.records, rec)
	h.lastActivity = time.Now()

	if len(h.records) > h.config.MaxRecords {
		h.records = h.records[len(h.records)-h.config.MaxRecords:]
	}
}

// Finish marks the utterance with the given ID finished. Completed is true
// when the engine reported a natural end rather than a stop.
func (h *History) Finish(id string, completed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].ID == id {
			h.records[i].Finished = time.Now()
			h.records[i].Completed = completed
			h.lastActivity = time.Now()
			return
		}
	}
}

// Records returns a copy of the retained utterances, oldest first.
func (h *History) Records() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.isExpiredLocked() {
		return nil
	}

	result := make([]Record, len(h.records))
	copy(result, h.records)
	return result
}

// Count returns the number of retained utterances.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.isExpiredLocked() {
		return 0
	}
	return len(h.records)
}

// Clear removes all history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clearLocked()
}

// clearLocked clears records without acquiring the lock (caller must hold it).
func (h *History) clearLocked() {
	h.records = make([]Record, 0, h.config.MaxRecords)
}

// isExpiredLocked checks expiry without acquiring the lock (caller must hold it).
func (h *History) isExpiredLocked() bool {
	if len(h.records) == 0 {
		return false
	}
	return time.Since(h.lastActivity) > h.config.InactivityTimeout
}
