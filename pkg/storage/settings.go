package storage

import (
	"strings"
)

// GetSettings loads settings for the provided keys.
func (s *Store) GetSettings(keys []string) (map[string]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	rows, err := s.db.Query("SELECT key, value FROM settings WHERE key IN ("+placeholders(len(keys))+")", stringArgs(keys)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		result[key] = value
	}
	return result, rows.Err()
}

// SetSetting upserts a setting value. Empty value deletes the row.
func (s *Store) SetSetting(key, value string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	value = strings.TrimSpace(value)
	err := withBusyRetry(func() error {
		if value == "" {
			_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
			return err
		}
		_, err := s.db.Exec(`
			INSERT INTO settings (key, value, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, key, value)
		return err
	})
	if err == nil {
		s.notify(newEvent(EventSettingSet, []string{key}))
	}
	return err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return "?" + strings.Repeat(",?", n-1)
}

func stringArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	return args
}

// DeleteSettings removes the given keys.
func (s *Store) DeleteSettings(keys []string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if len(keys) == 0 {
		return nil
	}
	return withBusyRetry(func() error {
		_, err := s.db.Exec(`DELETE FROM settings WHERE key IN (`+placeholders(len(keys))+`)`, stringArgs(keys)...)
		return err
	})
}

// ClearSettings removes every setting.
func (s *Store) ClearSettings() error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	return withBusyRetry(func() error {
		_, err := s.db.Exec(`DELETE FROM settings`)
		return err
	})
}
