package syncstore

import (
	"context"
	"maps"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
)

// MemoryStore is an in-process Store that enforces every quota.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[string]string
	bytes   int
	quotas  Quotas
	limiter *rate.Limiter
	partial bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithPartialWrites makes a multi-key Set apply items in key order up to the
// first one that breaks a quota, as some hosts do.
func WithPartialWrites(enabled bool) MemoryOption {
	return func(s *MemoryStore) { s.partial = enabled }
}

// WithLimiter replaces the write-rate limiter.
func WithLimiter(l *rate.Limiter) MemoryOption {
	return func(s *MemoryStore) {
		if l != nil {
			s.limiter = l
		}
	}
}

// NewMemoryStore creates an empty store with quotas q.
func NewMemoryStore(q Quotas, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		items:   make(map[string]string),
		quotas:  q,
		limiter: newWriteLimiter(q),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Quotas() Quotas { return s.quotas }

func (s *MemoryStore) Get(ctx context.Context, defaults map[string]string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if defaults == nil {
		return maps.Clone(s.items), nil
	}
	out := make(map[string]string, len(defaults))
	for key, def := range defaults {
		if v, ok := s.items[key]; ok {
			out[key] = v
		} else {
			out[key] = def
		}
	}
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, items map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := allowWrite(s.limiter); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if s.partial {
		for _, key := range keys {
			if err := s.fits(key, items[key]); err != nil {
				return err
			}
			s.put(key, items[key])
		}
		return nil
	}

	bytes, count := s.bytes, len(s.items)
	for _, key := range keys {
		value := items[key]
		if err := checkItem(s.quotas, key, value); err != nil {
			return err
		}
		if old, ok := s.items[key]; ok {
			bytes -= ItemSize(key, old)
		} else {
			count++
		}
		bytes += ItemSize(key, value)
	}
	if err := s.checkTotals(bytes, count); err != nil {
		return err
	}
	for _, key := range keys {
		s.put(key, items[key])
	}
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := allowWrite(s.limiter); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if old, ok := s.items[key]; ok {
			s.bytes -= ItemSize(key, old)
			delete(s.items, key)
		}
	}
	return nil
}

// BytesInUse returns the quota bytes currently used.
func (s *MemoryStore) BytesInUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Len returns the number of stored items.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// fits checks a single item against the store as it is now.
func (s *MemoryStore) fits(key, value string) error {
	if err := checkItem(s.quotas, key, value); err != nil {
		return err
	}
	bytes, count := s.bytes+ItemSize(key, value), len(s.items)
	if old, ok := s.items[key]; ok {
		bytes -= ItemSize(key, old)
	} else {
		count++
	}
	return s.checkTotals(bytes, count)
}

func (s *MemoryStore) checkTotals(bytes, count int) error {
	if s.quotas.QuotaBytes > 0 && bytes > s.quotas.QuotaBytes {
		return exterrors.New(exterrors.ErrCodeQuotaBytes, "store exceeds total quota").
			WithContext("bytes", bytes)
	}
	if s.quotas.MaxItems > 0 && count > s.quotas.MaxItems {
		return exterrors.New(exterrors.ErrCodeMaxItems, "store exceeds item count").
			WithContext("items", count)
	}
	return nil
}

func (s *MemoryStore) put(key, value string) {
	if old, ok := s.items[key]; ok {
		s.bytes -= ItemSize(key, old)
	}
	s.items[key] = value
	s.bytes += ItemSize(key, value)
}
