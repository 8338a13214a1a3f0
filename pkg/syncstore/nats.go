package syncstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
)

const natsKVConcurrency = 8

// NATSStore is a Store backed by a JetStream KeyValue bucket. The bucket's
// MaxValueSize and MaxBytes carry the per-item and total quotas; the item
// count and write rate are enforced here.
type NATSStore struct {
	kv      jetstream.KeyValue
	quotas  Quotas
	limiter *rate.Limiter
}

// NewNATSStore opens bucket, creating it when missing.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, bucket string, q Quotas) (*NATSStore, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		cfg := jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "extbridge cloud sync",
			History:     1,
			Storage:     jetstream.FileStorage,
		}
		if q.QuotaBytesPerItem > 0 {
			cfg.MaxValueSize = int32(q.QuotaBytesPerItem)
		}
		if q.QuotaBytes > 0 {
			cfg.MaxBytes = int64(q.QuotaBytes) * 2 // headers and subjects count against the stream
		}
		kv, err = js.CreateKeyValue(ctx, cfg)
	}
	if err != nil {
		return nil, exterrors.Wrap(err, exterrors.ErrCodeHostUnavailable, "open sync bucket").
			WithContext("bucket", bucket)
	}
	return &NATSStore{kv: kv, quotas: q, limiter: newWriteLimiter(q)}, nil
}

func (s *NATSStore) Quotas() Quotas { return s.quotas }

func (s *NATSStore) Get(ctx context.Context, defaults map[string]string) (map[string]string, error) {
	if defaults == nil {
		keys, err := s.keys(ctx)
		if err != nil {
			return nil, err
		}
		defaults = make(map[string]string, len(keys))
		for _, key := range keys {
			defaults[key] = ""
		}
	}

	type result struct{ key, value string }
	results := make(chan result, len(defaults))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(natsKVConcurrency)
	for key, def := range defaults {
		g.Go(func() error {
			entry, err := s.kv.Get(gctx, EscapeKey(key))
			switch {
			case errors.Is(err, jetstream.ErrKeyNotFound):
				results <- result{key, def}
				return nil
			case err != nil:
				return exterrors.Wrap(err, exterrors.ErrCodeStorageRead, "sync get").WithContext("key", key)
			}
			results <- result{key, string(entry.Value())}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	out := make(map[string]string, len(defaults))
	for r := range results {
		out[r.key] = r.value
	}
	return out, nil
}

// Set writes items concurrently. Like the hosts it stands in for, a failure
// part way through leaves earlier items written.
func (s *NATSStore) Set(ctx context.Context, items map[string]string) error {
	if err := allowWrite(s.limiter); err != nil {
		return err
	}
	for key, value := range items {
		if err := checkItem(s.quotas, key, value); err != nil {
			return err
		}
	}
	if s.quotas.MaxItems > 0 {
		keys, err := s.keys(ctx)
		if err != nil {
			return err
		}
		existing := make(map[string]struct{}, len(keys))
		for _, key := range keys {
			existing[key] = struct{}{}
		}
		count := len(existing)
		for key := range items {
			if _, ok := existing[key]; !ok {
				count++
			}
		}
		if count > s.quotas.MaxItems {
			return exterrors.New(exterrors.ErrCodeMaxItems, "store exceeds item count").
				WithContext("items", count)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(natsKVConcurrency)
	for key, value := range items {
		g.Go(func() error {
			if _, err := s.kv.Put(gctx, EscapeKey(key), []byte(value)); err != nil {
				return classifyPutError(err, key)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *NATSStore) Remove(ctx context.Context, keys []string) error {
	if err := allowWrite(s.limiter); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(natsKVConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			err := s.kv.Purge(gctx, EscapeKey(key))
			if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
				return exterrors.Wrap(err, exterrors.ErrCodeStorageWrite, "sync remove").WithContext("key", key)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *NATSStore) keys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, exterrors.Wrap(err, exterrors.ErrCodeStorageRead, "sync keys")
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, UnescapeKey(k))
	}
	return out, nil
}

func classifyPutError(err error, key string) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "maximum payload"), strings.Contains(msg, "message size exceeds"):
		return exterrors.Wrap(err, exterrors.ErrCodeQuotaBytesPerItem, "sync set").WithContext("key", key)
	case strings.Contains(msg, "maximum bytes"), strings.Contains(msg, "insufficient resources"):
		return exterrors.Wrap(err, exterrors.ErrCodeQuotaBytes, "sync set").WithContext("key", key)
	}
	return exterrors.Wrap(err, exterrors.ErrCodeStorageWrite, "sync set").WithContext("key", key)
}

// EscapeKey maps an arbitrary key onto the KeyValue key alphabet. Bytes
// outside [-_/a-zA-Z0-9] become =XX; '=' itself is escaped.
func EscapeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if isKVKeyByte(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "=%02X", c)
	}
	return b.String()
}

// UnescapeKey reverses EscapeKey. Malformed escapes are kept verbatim.
func UnescapeKey(key string) string {
	if !strings.Contains(key, "=") {
		return key
	}
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		if key[i] == '=' && i+2 < len(key) {
			if c, err := strconv.ParseUint(key[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(c))
				i += 2
				continue
			}
		}
		b.WriteByte(key[i])
	}
	return b.String()
}

func isKVKeyByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '/':
		return true
	}
	return false
}
