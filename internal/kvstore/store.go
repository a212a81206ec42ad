// Package kvstore is the reload-surviving local key-value store holding the
// screen identity, the last content fingerprint and kiosk settings.
package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const stateFilename = "state.json"

// Persisted keys
const (
	KeyScreenID      = "screen_id"
	KeyFingerprint   = "content_fingerprint"
	KeyKioskMode     = "kiosk_mode"
	KeyKioskPassword = "kiosk_exit_password"
	KeyLastActivity  = "last_activity"
	KeyLastCommand   = "last_command_id"
)

// FileStore keeps every key in memory and rewrites one JSON file on each write.
// The file is replaced with a rename so a crash never leaves a partial write.
type FileStore struct {
	logger *zap.Logger
	fs     afero.Fs
	path   string

	mu   sync.RWMutex
	data map[string]string
}

// New opens (or creates) the store in dir
func New(logger *zap.Logger, fs afero.Fs, dir string) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &FileStore{
		logger: logger,
		fs:     fs,
		path:   filepath.Join(dir, stateFilename),
		data:   make(map[string]string),
	}

	raw, err := afero.ReadFile(fs, s.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			// A corrupt state file must not brick the device; start over unpaired
			logger.Warn("State file is corrupt, starting empty", zap.String("path", s.path), zap.Error(err))
			s.data = make(map[string]string)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	logger.Debug("State store opened", zap.String("path", s.path), zap.Int("keys", len(s.data)))
	return s, nil
}

// Get returns the value stored under key
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key, replacing any previous value
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.data[key]
	s.data[key] = value
	if err := s.flushLocked(); err != nil {
		if existed {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.data[key]
	if !existed {
		return nil
	}
	delete(s.data, key)
	if err := s.flushLocked(); err != nil {
		s.data[key] = prev
		return err
	}
	return nil
}

// Clear removes every key
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.data
	s.data = make(map[string]string)
	if err := s.flushLocked(); err != nil {
		s.data = prev
		return err
	}
	s.logger.Info("Local state cleared")
	return nil
}

func (s *FileStore) flushLocked() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
