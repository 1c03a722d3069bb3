package botcfg

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ConfigFileName is the settings file inside the data directory.
const ConfigFileName = "bot_config.json"

// JSONStore persists Settings to bot_config.json. A single mutex guards the
// read-modify-write cycle; the in-memory copy is the source of truth between
// writes.
type JSONStore struct {
	path   string
	logger *slog.Logger

	mu  sync.Mutex
	cur Settings
}

// NewJSONStore loads bot_config.json from dataDir, creating it with defaults
// (seeded with initialMode) when missing or unreadable.
func NewJSONStore(dataDir string, initialMode Mode, logger *slog.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s := &JSONStore{
		path:   filepath.Join(dataDir, ConfigFileName),
		logger: logger,
	}

	cur, err := s.load()
	switch {
	case err == nil:
		s.cur = cur
	case errors.Is(err, fs.ErrNotExist):
		s.cur = defaultSettings(initialMode)
		if err := s.write(s.cur); err != nil {
			return nil, err
		}
	default:
		// A corrupt file is replaced with defaults, matching the
		// load-or-default contract. The old content is unrecoverable
		// anyway once the next mutation rewrites the file.
		logger.Warn("bot config unreadable, resetting to defaults", "path", s.path, "error", err)
		s.cur = defaultSettings(initialMode)
		if err := s.write(s.cur); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *JSONStore) load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Settings{}, err
	}
	var cfg Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if _, ok := ParseMode(string(cfg.Mode)); !ok {
		cfg.Mode = ModeNormal
	}
	if cfg.Users == nil {
		cfg.Users = map[string]User{}
	}
	return cfg, nil
}

func (s *JSONStore) write(cfg Settings) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bot config: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Get returns a snapshot of the current settings.
func (s *JSONStore) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.clone()
}

// Update applies fn under the store lock and persists the result.
func (s *JSONStore) Update(fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur.clone()
	if err := fn(&next); err != nil {
		return s.cur.clone(), err
	}
	if err := s.write(next); err != nil {
		return s.cur.clone(), err
	}
	s.cur = next
	s.logger.Debug("bot config saved", "path", s.path)
	return next.clone(), nil
}
