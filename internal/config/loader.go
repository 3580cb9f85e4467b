package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/repo-research/internal/delivery"
)

// Loader owns the loaded configuration. Engine and tracker settings are
// swapped in place when the file changes; everything else needs a restart.
type Loader struct {
	v      *viper.Viper
	logger *zap.Logger

	mu       sync.RWMutex
	cfg      *Config
	handlers []func(*Config)
}

// Load reads the configuration at path
func Load(path string, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := newViper(path)
	cfg, err := read(v)
	if err != nil {
		return nil, err
	}
	return &Loader{v: v, logger: logger, cfg: cfg}, nil
}

// Config returns the configuration as loaded at startup plus any
// hot-reloaded sections.
func (l *Loader) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return *l.cfg
}

func (l *Loader) Engine() EngineConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.Engine
}

func (l *Loader) Tracker() delivery.TrackerConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.Tracker
}

// OnReload registers a callback run after a successful reload
func (l *Loader) OnReload(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, fn)
}

// Watch starts watching the config file for changes
func (l *Loader) Watch() {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.logger.Info("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		l.reload()
	})
	l.v.WatchConfig()
}

func (l *Loader) reload() {
	var next Config
	if err := l.v.Unmarshal(&next); err != nil {
		l.logger.Error("Failed to decode reloaded config, keeping previous", zap.Error(err))
		return
	}
	expandSecrets(&next)
	if err := next.Validate(); err != nil {
		l.logger.Error("Reloaded config invalid, keeping previous", zap.Error(err))
		return
	}
	l.apply(&next)
}

func (l *Loader) apply(next *Config) {
	l.mu.Lock()
	updated := *l.cfg
	updated.Engine = next.Engine
	updated.Tracker = next.Tracker
	l.cfg = &updated
	handlers := append([]func(*Config){}, l.handlers...)
	l.mu.Unlock()

	l.logger.Info("Engine and tracker settings reloaded",
		zap.Int("readiness_attempts", updated.Engine.ReadinessAttempts),
		zap.Int("max_concurrency", updated.Engine.MaxConcurrency),
		zap.String("tracker_provider", updated.Tracker.Provider),
	)
	for _, fn := range handlers {
		fn(&updated)
	}
}
