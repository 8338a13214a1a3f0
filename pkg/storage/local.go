package storage

// LocalStorage is a synchronous string store over the settings table.
// Failures are logged and otherwise ignored: reads then return "".
type LocalStorage struct {
	store *Store
}

// LocalStorage returns the local storage view of s.
func (s *Store) LocalStorage() *LocalStorage {
	return &LocalStorage{store: s}
}

// GetItem returns the value of key, or "" when missing.
func (l *LocalStorage) GetItem(key string) string {
	values, err := l.store.GetSettings([]string{key})
	if err != nil {
		l.store.logger.Debug().Err(err).Str("key", key).Msg("local storage read failed")
		return ""
	}
	return values[key]
}

// SetItem stores value under key. An empty value removes the key.
func (l *LocalStorage) SetItem(key, value string) {
	if err := l.store.SetSetting(key, value); err != nil {
		l.store.logger.Debug().Err(err).Str("key", key).Msg("local storage write failed")
	}
}

// RemoveItem deletes key.
func (l *LocalStorage) RemoveItem(key string) {
	if err := l.store.DeleteSettings([]string{key}); err != nil {
		l.store.logger.Debug().Err(err).Str("key", key).Msg("local storage remove failed")
	}
}

// Clear deletes every item.
func (l *LocalStorage) Clear() {
	if err := l.store.ClearSettings(); err != nil {
		l.store.logger.Debug().Err(err).Msg("local storage clear failed")
	}
}
