package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
)

// ManagedStore is the read-only admin settings area. It is backed by a YAML
// file that an administrator owns; extbridge never writes it.
type ManagedStore struct {
	path   string
	logger zerolog.Logger

	mu    sync.RWMutex
	items map[string]any
	err   error
}

// NewManagedStore loads path once. A missing or unreadable file is not an
// error: every GetItem then reports nothing.
func NewManagedStore(path string) *ManagedStore {
	s := &ManagedStore{
		path:   path,
		logger: zerolog.Nop(),
	}
	s.reload()
	return s
}

// SetLogger sets the logger used for reload diagnostics.
func (s *ManagedStore) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// GetItem returns the admin value stored under key. The second result is
// false when the key is absent or the file could not be read.
func (s *ManagedStore) GetItem(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil || s.items == nil {
		return nil, false
	}
	v, ok := s.items[key]
	return v, ok
}

// Err reports the last load error, if any.
func (s *ManagedStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *ManagedStore) reload() {
	items, err := readManaged(s.path)
	s.mu.Lock()
	s.items, s.err = items, err
	s.mu.Unlock()
}

func readManaged(path string) (map[string]any, error) {
	if path == "" {
		return nil, exterrors.New(exterrors.ErrCodeConfigLoad, "managed storage not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, exterrors.Wrap(err, exterrors.ErrCodeConfigLoad, "reading managed storage").
			WithContext("path", path)
	}
	var items map[string]any
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, exterrors.Wrap(err, exterrors.ErrCodeConfigParse, "parsing managed storage").
			WithContext("path", path)
	}
	if items == nil {
		items = map[string]any{}
	}
	return items, nil
}

// Watch reloads the store whenever the file is written, created or renamed
// into place. It blocks until ctx is done. The parent directory is watched so
// editors that replace the file atomically are picked up.
func (s *ManagedStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeConfigLoad, "creating managed storage watcher")
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeConfigLoad, "watching managed storage").
			WithContext("dir", dir)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			s.reload()
			if err := s.Err(); err != nil {
				s.logger.Debug().Err(err).Msg("managed storage reload failed")
			} else {
				s.logger.Info().Str("path", s.path).Msg("managed storage reloaded")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(err).Msg("managed storage watcher error")
		}
	}
}
