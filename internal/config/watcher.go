package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Watcher watches the config file for changes and reloads it
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(old, new *Config)
	logger   zerolog.Logger

	mu        sync.RWMutex
	current   *Config
	lastEvent time.Time
	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher creates a config file watcher. onChange runs after every
// successful reload with the previous and the new config.
func NewWatcher(path string, initial *Config, onChange func(old, new *Config), logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory; editors replace files rather than write in place
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fsw,
		path:     path,
		onChange: onChange,
		logger:   logger,
		current:  initial,
		done:     make(chan struct{}),
	}

	go w.watchLoop()

	return w, nil
}

// Current returns the most recently loaded valid config
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	// Saves produce bursts of write events, collapse them
	if time.Since(w.lastEvent) < 200*time.Millisecond {
		w.mu.Unlock()
		return
	}
	w.lastEvent = time.Now()
	w.mu.Unlock()

	cfg, err := loadFile(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Config reload failed, keeping previous")
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	w.logger.Info().Str("path", w.path).Msg("Configuration reloaded")

	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// loadFile parses a single config file over defaults without touching the
// global viper instance
func loadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Close stops the watcher
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
