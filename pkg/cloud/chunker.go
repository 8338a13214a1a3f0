// Package cloud stores JSON documents in a quota-limited sync store by
// splitting them into indexed chunks terminated by an empty sentinel.
package cloud

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/odvcencio/extbridge/pkg/syncstore"
	"github.com/odvcencio/extbridge/pkg/telemetry"
)

// ChunkCountPerFetch is the stride of the coarse chunk-count probe. It must
// be a power of two.
const ChunkCountPerFetch = 16

// Flavor reports host feature tokens such as "firefox".
type Flavor interface {
	Has(token string) bool
}

// LocalStorage is the small synchronous store device options live in.
type LocalStorage interface {
	GetItem(key string) string
	SetItem(key, value string)
}

// Entry is the envelope a pushed document is stored in.
type Entry struct {
	Source string          `json:"source"`
	Tstamp int64           `json:"tstamp"`
	Data   json.RawMessage `json:"data"`
	Size   int             `json:"size"`
}

// Chunker pushes and pulls chunked documents.
//
//go:generate mockgen -package=cloud -destination=mock_store_test.go github.com/odvcencio/extbridge/pkg/syncstore Store
type Chunker struct {
	store syncstore.Store
	local LocalStorage

	mu           sync.RWMutex
	flavor       Flavor
	maxChunkSize int
	fixedChunk   int
	options      Options

	maxChunkCountPerItem int
	maxStorageSize       int

	now    func() time.Time
	events telemetry.Publisher
	logger zerolog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithLogger sets the chunker logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Chunker) { c.logger = logger }
}

// WithEvents publishes push and pull events to p.
func WithEvents(p telemetry.Publisher) Option {
	return func(c *Chunker) { c.events = p }
}

// WithChunkSize pins the maximum chunk size instead of deriving it from the
// store's per-item quota and the flavor.
func WithChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.fixedChunk = n
		}
	}
}

// WithClock replaces time.Now for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Chunker) {
		if now != nil {
			c.now = now
		}
	}
}

// NewChunker creates a chunker over store. local holds the device name and
// may be nil.
func NewChunker(store syncstore.Store, local LocalStorage, flavor Flavor, opts ...Option) *Chunker {
	q := store.Quotas()
	c := &Chunker{
		store:  store,
		local:  local,
		flavor: flavor,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	maxItems := q.MaxItems
	if maxItems <= 0 {
		maxItems = syncstore.DefaultQuotas().MaxItems
	}
	c.maxChunkCountPerItem = int(math.Floor(float64(maxItems)*0.75)) &^ (ChunkCountPerFetch - 1)
	c.maxStorageSize = q.QuotaBytes
	if c.maxStorageSize <= 0 {
		c.maxStorageSize = syncstore.DefaultQuotas().QuotaBytes
	}
	c.maxChunkSize = c.evalMaxChunkSize()
	c.options = Options{
		DefaultDeviceName: DefaultDeviceName(),
		DeviceName:        c.loadDeviceName(),
	}
	return c
}

// SetFlavor replaces the host flavor and re-derives the chunk size.
func (c *Chunker) SetFlavor(f Flavor) {
	c.mu.Lock()
	c.flavor = f
	c.maxChunkSize = c.evalMaxChunkSize()
	c.mu.Unlock()
}

// MaxChunkSize returns the current maximum chunk size in bytes.
func (c *Chunker) MaxChunkSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxChunkSize
}

// MaxChunkCountPerItem returns how many chunks one document may span.
func (c *Chunker) MaxChunkCountPerItem() int {
	return c.maxChunkCountPerItem
}

// evalMaxChunkSize must be called with mu held or before c is shared.
func (c *Chunker) evalMaxChunkSize() int {
	if c.fixedChunk > 0 {
		return c.fixedChunk
	}
	perItem := c.store.Quotas().QuotaBytesPerItem
	if perItem <= 0 {
		perItem = syncstore.DefaultQuotas().QuotaBytesPerItem
	}
	ratio := 0.75
	if c.flavor != nil && c.flavor.Has("firefox") {
		ratio = 0.6
	}
	return int(math.Floor(float64(perItem) * ratio))
}

func (c *Chunker) isFirefox() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flavor != nil && c.flavor.Has("firefox")
}

// Push stores data under key. It returns the store's write error, if any;
// trailing chunks of a previous, longer document are removed either way.
func (c *Chunker) Push(ctx context.Context, key string, data any) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "cloud.push", telemetry.AttrDataKey.String(key))
	defer func() {
		telemetry.EndSpan(span, err)
		metricPush.WithLabelValues(resultLabel(err)).Inc()
	}()

	item, err := c.envelope(data)
	if err != nil {
		return err
	}

	chunks := splitChunks(item, c.MaxChunkSize())
	n := len(chunks)
	span.SetAttributes(telemetry.AttrChunkCount.Int(n))

	bin := make(map[string]string, n+1)
	for i, chunk := range chunks {
		bin[chunkKey(key, i)] = chunk
	}
	bin[chunkKey(key, n)] = ""

	err = c.store.Set(ctx, bin)
	start := n + 1
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Int("chunks", n).Msg("cloud push failed")
		// A failed multi-key write may have been applied in part.
		if c.isFirefox() {
			start = 0
		}
	} else {
		metricChunksWritten.Observe(float64(n))
	}

	c.deleteChunks(ctx, key, start)

	if err == nil {
		c.publish(telemetry.EventCloudPushed, key, n)
	}
	return err
}

// Pull returns the document stored under key, or nil when there is none or
// it cannot be decoded.
func (c *Chunker) Pull(ctx context.Context, key string) (entry *Entry, err error) {
	ctx, span := telemetry.StartSpan(ctx, "cloud.pull", telemetry.AttrDataKey.String(key))
	defer func() {
		telemetry.EndSpan(span, err)
		result := resultLabel(err)
		if err == nil && entry == nil {
			result = "empty"
		}
		metricPull.WithLabelValues(result).Inc()
	}()

	coarse, err := c.coarseChunkCount(ctx, key)
	if err != nil || coarse == 0 {
		return nil, err
	}

	defaults := make(map[string]string, coarse)
	for i := 0; i < coarse; i++ {
		defaults[chunkKey(key, i)] = ""
	}
	bin, err := c.store.Get(ctx, defaults)
	if err != nil {
		return nil, err
	}

	var buf []byte
	n := 0
	for ; n < coarse; n++ {
		slice := bin[chunkKey(key, n)]
		if slice == "" {
			break
		}
		buf = append(buf, slice...)
	}
	span.SetAttributes(telemetry.AttrChunkCount.Int(n))

	var e Entry
	if err := json.Unmarshal(buf, &e); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cloud entry is not valid JSON")
		return nil, nil
	}
	c.publish(telemetry.EventCloudPulled, key, n)
	return &e, nil
}

// coarseChunkCount probes every ChunkCountPerFetch-th index and returns the
// stride boundary past the last non-empty probe.
func (c *Chunker) coarseChunkCount(ctx context.Context, key string) (int, error) {
	defaults := make(map[string]string, c.maxChunkCountPerItem/ChunkCountPerFetch)
	for i := 0; i < c.maxChunkCountPerItem; i += ChunkCountPerFetch {
		defaults[chunkKey(key, i)] = ""
	}
	bin, err := c.store.Get(ctx, defaults)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := 0; i < c.maxChunkCountPerItem; i += ChunkCountPerFetch {
		if bin[chunkKey(key, i)] == "" {
			break
		}
		count = i + ChunkCountPerFetch
	}
	return count, nil
}

// deleteChunks removes indices [start, limit). Errors are logged only.
func (c *Chunker) deleteChunks(ctx context.Context, key string, start int) {
	limit := c.maxChunkCountPerItem
	if perStorage := int(math.Ceil(float64(c.maxStorageSize) / float64(c.MaxChunkSize()))); perStorage < limit {
		limit = perStorage
	}
	if start >= limit {
		return
	}
	keys := make([]string, 0, limit-start)
	for i := start; i < limit; i++ {
		keys = append(keys, chunkKey(key, i))
	}
	if err := c.store.Remove(ctx, keys); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Int("from", start).Msg("cloud chunk cleanup failed")
	}
}

// envelope wraps data the way pull expects it. Size is the length of the
// envelope encoded with size 0.
func (c *Chunker) envelope(data any) ([]byte, error) {
	raw, err := syncstore.Marshal(data)
	if err != nil {
		return nil, err
	}
	e := Entry{
		Source: c.deviceNameOrDefault(),
		Tstamp: c.now().UnixMilli(),
		Data:   raw,
	}
	sized, err := syncstore.Marshal(e)
	if err != nil {
		return nil, err
	}
	e.Size = len(sized)
	return syncstore.Marshal(e)
}

func (c *Chunker) publish(t telemetry.EventType, key string, chunks int) {
	if c.events == nil {
		return
	}
	c.events.Publish(telemetry.Event{
		Type: t,
		Data: map[string]any{"key": key, "chunks": chunks},
	})
}

func chunkKey(key string, i int) string {
	return key + strconv.Itoa(i)
}

// splitChunks cuts s into pieces of at most size bytes without splitting a
// UTF-8 sequence. A rune wider than size gets a chunk of its own.
func splitChunks(s []byte, size int) []string {
	if size <= 0 {
		size = 1
	}
	var out []string
	for len(s) > 0 {
		end := size
		if end >= len(s) {
			out = append(out, string(s))
			break
		}
		for end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
		if end == 0 {
			_, w := utf8.DecodeRune(s)
			end = w
		}
		out = append(out, string(s[:end]))
		s = s[end:]
	}
	return out
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
