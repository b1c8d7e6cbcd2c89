package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "remindbot/pkg/logx"
)

// Manager holds the current config and re-loads it when the file changes
// on disk. Editors often replace the file (rename + create), so the watch
// covers the parent directory and filters by name.
type Manager struct {
	path string
	log  logx.Logger

	mu  sync.RWMutex
	cfg *Config

	onChange []func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewManager(path string, log logx.Logger) (*Manager, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, log: log, cfg: cfg}, nil
}

// Current returns the last successfully loaded config.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// OnChange registers a callback invoked after each successful reload.
// Register before Watch; callbacks run on the watch goroutine.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// Watch starts watching the config file until ctx is done or Close is
// called. A failed reload keeps the previous config and logs the error.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}

	m.mu.Lock()
	m.watcher = w
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		// Debounce: editors fire several events per save.
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(250 * time.Millisecond)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.log.Warn("config watch error", logx.Err(err))
			case <-pending:
				pending = nil
				m.reload()
			}
		}
	}()
	return nil
}

func (m *Manager) Close() {
	m.mu.Lock()
	w := m.watcher
	done := m.done
	m.watcher = nil
	m.mu.Unlock()

	if w != nil {
		_ = w.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func (m *Manager) reload() {
	cfg, err := Load(m.path)
	if err != nil {
		m.log.Warn("config reload failed, keeping previous config", logx.Err(err))
		return
	}

	m.mu.Lock()
	m.cfg = cfg
	callbacks := append([](func(*Config))(nil), m.onChange...)
	m.mu.Unlock()

	m.log.Info("config reloaded", logx.String("path", m.path))
	for _, fn := range callbacks {
		fn(cfg)
	}
}
