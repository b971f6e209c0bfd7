package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

type Manager struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup
	logger   *log.Logger
	onChange []func(*Config)
}

// NewManager loads the config at the standard path.
func NewManager(logger *log.Logger) (*Manager, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath, logger)
}

func NewManagerAt(configPath string, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("config")

	config, err := LoadFile(configPath)
	if err != nil {
		logger.Error("failed to load initial configuration", "err", err)
		return nil, err
	}

	if err := config.Validate(); err != nil {
		logger.Warn("validation warning", "err", err)
	}

	m := &Manager{
		config: config,
		path:   configPath,
		logger: logger,
	}

	logger.Debug("initialized", "path", configPath)
	return m, nil
}

func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	configCopy := *m.config
	configCopy.Server.AllowedOrigins = append([]string(nil), m.config.Server.AllowedOrigins...)
	return &configCopy
}

func (m *Manager) Path() string {
	return m.path
}

// OnChange registers fn to run after every successful reload. Register
// before StartWatching.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

func (m *Manager) StartWatching(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	m.watcher = watcher

	// watch the directory: editors replace the file on save
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return err
	}

	m.wg.Add(1)
	go m.watchLoop(ctx)

	m.logger.Info("watching for changes", "path", m.path)
	return nil
}

func (m *Manager) Stop() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.wg.Wait()
}

func (m *Manager) watchLoop(ctx context.Context) {
	defer m.wg.Done()
	configFileName := filepath.Base(m.path)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != configFileName {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				m.logger.Info("file change detected, reloading", "file", event.Name)
				m.Reload()
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("watcher error", "err", err)

		case <-ctx.Done():
			return
		}
	}
}

// Reload re-reads the file. An unreadable or invalid file keeps the
// previous configuration.
func (m *Manager) Reload() bool {
	newConfig, err := LoadFile(m.path)
	if err != nil {
		m.logger.Error("failed to reload config", "err", err)
		return false
	}

	if err := newConfig.Validate(); err != nil {
		m.logger.Error("invalid config after reload", "err", err)
		return false
	}

	m.mu.Lock()
	m.config = newConfig
	hooks := append([]func(*Config){}, m.onChange...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(m.GetConfig())
	}

	m.logger.Info("configuration reloaded")
	return true
}
