package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "modbot/pkg/logx"
)

// Update is published to subscribers after a reload was validated.
type Update struct {
	Config   *Config
	Settings *Settings
	Changed  []string // top-level sections that differ from the previous config
}

type ConfigManager struct {
	path   string
	getenv func(string) string

	mu       sync.RWMutex
	cfg      *Config
	settings *Settings
	lastHash uint64

	subsMu sync.Mutex
	subs   []chan Update

	log logx.Logger
}

type Option func(*ConfigManager)

// WithEnv replaces os.Getenv (tests).
func WithEnv(getenv func(string) string) Option {
	return func(m *ConfigManager) { m.getenv = getenv }
}

func NewConfigManager(path string, opts ...Option) *ConfigManager {
	m := &ConfigManager{path: path, getenv: os.Getenv}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

func (m *ConfigManager) Path() string { return m.path }

// Parse reads the config file (JSON or YAML) with unknown fields rejected and
// overlays the environment. A missing file yields an empty config so that an
// env-only deployment works.
func (m *ConfigManager) Parse() (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(m.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		jb, err := coerceToJSONBytes(m.path, b)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(jb)) > 0 {
			dec := json.NewDecoder(bytes.NewReader(jb))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", m.path, err)
			}
			if err := dec.Decode(&struct{}{}); err != io.EOF {
				if err == nil {
					return nil, fmt.Errorf("parse %s: trailing data", m.path)
				}
				return nil, err
			}
		}
	}
	if err := applyEnv(&cfg, m.getenv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load parses, validates and commits the config.
func (m *ConfigManager) Load() (*Config, *Settings, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, nil, err
	}
	st, err := cfg.Resolve()
	if err != nil {
		return nil, nil, err
	}
	m.commit(cfg, st)
	return cfg, st, nil
}

func (m *ConfigManager) commit(cfg *Config, st *Settings) {
	m.mu.Lock()
	m.cfg = cfg
	m.settings = st
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *ConfigManager) Settings() *Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (m *ConfigManager) Subscribe(buffer int) chan Update {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Update, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *ConfigManager) Unsubscribe(ch chan Update) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

// publish delivers the latest update, dropping the oldest queued one for slow
// subscribers.
func (m *ConfigManager) publish(u Update) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- u:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
			m.log.Debug("config update dropped (subscriber slow)")
		}
	}
}

// Reload re-reads the file and, if it changed and is valid, commits and
// publishes it. Invalid configs are logged and ignored.
func (m *ConfigManager) Reload() (bool, error) {
	cfg, err := m.Parse()
	if err != nil {
		return false, err
	}
	h := hashConfig(cfg)
	m.mu.RLock()
	prev := m.cfg
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		return false, nil
	}
	st, err := cfg.Resolve()
	if err != nil {
		return false, err
	}
	m.commit(cfg, st)
	m.publish(Update{Config: cfg, Settings: st, Changed: ChangedSections(prev, cfg)})
	return true, nil
}

// Watch reloads the config on file changes until ctx is done. Events are
// debounced because editors often write a file in several steps.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	var (
		timer   *time.Timer
		timerMu sync.Mutex
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			changed, err := m.Reload()
			switch {
			case err != nil:
				m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			case changed:
				m.log.Info("config reloaded", logx.String("path", m.path))
			default:
				m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("config watcher closed")
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("config watcher closed")
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}

// ChangedSections lists top-level sections whose values differ. Secrets are
// never included, only section names.
func ChangedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var out []string
	if oldCfg.Telegram != newCfg.Telegram {
		out = append(out, "telegram")
	}
	if oldCfg.Moderation != newCfg.Moderation {
		out = append(out, "moderation")
	}
	if oldCfg.Logging != newCfg.Logging {
		out = append(out, "logging")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if oldCfg.Digest != newCfg.Digest {
		out = append(out, "digest")
	}
	return out
}
