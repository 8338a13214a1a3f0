// Package syncstore provides the quota-limited key/value store settings are
// synced through. Values are strings; the cloud chunker stores JSON slices.
package syncstore

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"golang.org/x/time/rate"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
)

// Quotas are the documented limits of a sync store.
type Quotas struct {
	QuotaBytes                  int
	QuotaBytesPerItem           int
	MaxItems                    int
	MaxWriteOperationsPerMinute int
}

// DefaultQuotas mirrors the limits browsers document for their sync areas.
func DefaultQuotas() Quotas {
	return Quotas{
		QuotaBytes:                  102400,
		QuotaBytesPerItem:           8192,
		MaxItems:                    512,
		MaxWriteOperationsPerMinute: 120,
	}
}

// Store is a batched key/value store with quotas.
type Store interface {
	// Get returns the value of every key in defaults, or the default when
	// the key is missing. A nil map returns every stored item.
	Get(ctx context.Context, defaults map[string]string) (map[string]string, error)
	Set(ctx context.Context, items map[string]string) error
	Remove(ctx context.Context, keys []string) error
	Quotas() Quotas
}

// Marshal encodes v as JSON without escaping <, > and &. Browsers measure
// stored values this way.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ItemSize is the number of bytes an item counts against quotas: the key
// plus the JSON encoding of the value.
func ItemSize(key, value string) int {
	encoded, err := Marshal(value)
	if err != nil {
		return len(key) + len(value)
	}
	return len(key) + len(encoded)
}

func checkItem(q Quotas, key, value string) error {
	if q.QuotaBytesPerItem > 0 && ItemSize(key, value) > q.QuotaBytesPerItem {
		return exterrors.New(exterrors.ErrCodeQuotaBytesPerItem, "item exceeds per-item quota").
			WithContext("key", key).
			WithContext("size", ItemSize(key, value))
	}
	return nil
}

func newWriteLimiter(q Quotas) *rate.Limiter {
	if q.MaxWriteOperationsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(q.MaxWriteOperationsPerMinute)), q.MaxWriteOperationsPerMinute)
}

func allowWrite(l *rate.Limiter) error {
	if !l.Allow() {
		return exterrors.New(exterrors.ErrCodeMaxWriteOps, "write operation rate exceeded").
			WithRetryable(true)
	}
	return nil
}
