package storage

import (
	"encoding/json"
	"sort"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
)

// CacheGet returns the stored JSON value of each key that exists. A nil keys
// slice returns every entry.
func (s *Store) CacheGet(keys []string) (map[string]json.RawMessage, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	out := make(map[string]json.RawMessage, len(keys))
	if keys != nil && len(keys) == 0 {
		return out, nil
	}

	query := `SELECT key, value FROM cache_storage`
	var args []any
	if keys != nil {
		query += ` WHERE key IN (` + placeholders(len(keys)) + `)`
		args = stringArgs(keys)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, exterrors.Wrap(err, exterrors.ErrCodeStorageRead, "read cache storage")
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, exterrors.Wrap(err, exterrors.ErrCodeStorageRead, "scan cache storage")
		}
		out[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, exterrors.Wrap(err, exterrors.ErrCodeStorageRead, "read cache storage")
	}
	return out, nil
}

// CacheSet writes every item in one transaction. Values must be valid JSON.
func (s *Store) CacheSet(items map[string]json.RawMessage) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if len(items) == 0 {
		return nil
	}
	keys := make([]string, 0, len(items))
	for key, value := range items {
		if !json.Valid(value) {
			return exterrors.New(exterrors.ErrCodeInvalidInput, "cache value is not valid JSON").
				WithContext("key", key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	err := withBusyRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO cache_storage (key, value, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, key := range keys {
			if _, err := stmt.Exec(key, string(items[key])); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeStorageWrite, "write cache storage")
	}
	s.notify(newEvent(EventCacheSet, keys))
	return nil
}

// CacheRemove deletes keys. Missing keys are ignored.
func (s *Store) CacheRemove(keys []string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if len(keys) == 0 {
		return nil
	}
	err := withBusyRetry(func() error {
		_, err := s.db.Exec(`DELETE FROM cache_storage WHERE key IN (`+placeholders(len(keys))+`)`, stringArgs(keys)...)
		return err
	})
	if err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeStorageWrite, "remove cache storage keys")
	}
	s.notify(newEvent(EventCacheRemoved, keys))
	return nil
}

// CacheClear deletes every cache entry.
func (s *Store) CacheClear() error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	err := withBusyRetry(func() error {
		_, err := s.db.Exec(`DELETE FROM cache_storage`)
		return err
	})
	if err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeStorageWrite, "clear cache storage")
	}
	s.notify(newEvent(EventCacheCleared, nil))
	return nil
}

// CacheBytesInUse sums key and value lengths of the given keys, or of every
// entry when keys is nil.
func (s *Store) CacheBytesInUse(keys []string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrStoreClosed
	}
	if keys != nil && len(keys) == 0 {
		return 0, nil
	}
	query := `SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))), 0) FROM cache_storage`
	var args []any
	if keys != nil {
		query += ` WHERE key IN (` + placeholders(len(keys)) + `)`
		args = stringArgs(keys)
	}
	var n int64
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, exterrors.Wrap(err, exterrors.ErrCodeStorageRead, "measure cache storage")
	}
	return n, nil
}
