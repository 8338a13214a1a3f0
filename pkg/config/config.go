package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
)

// Default configuration values exported for documentation and validation
const (
	DefaultBind              = "127.0.0.1:4489"
	DefaultMaxPorts          = 128
	DefaultBusBackend        = BusBackendNone
	DefaultSyncBackend       = SyncBackendMemory
	DefaultSyncBucket        = "extbridge_sync"
	DefaultQuotaBytes        = 102400
	DefaultQuotaBytesPerItem = 8192
	DefaultMaxItems          = 512
	DefaultMaxWriteOpsPerMin = 120
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "console"
	DefaultServiceName       = "extbridge"
)

const (
	BusBackendNone   = "none"
	BusBackendMemory = "memory"
	BusBackendNATS   = "nats"

	SyncBackendMemory = "memory"
	SyncBackendNATS   = "nats"
)

// Config represents the complete extbridge configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Bus       BusConfig       `yaml:"bus"`
	Sync      SyncConfig      `yaml:"sync"`
	Storage   StorageConfig   `yaml:"storage"`
	Flavor    FlavorConfig    `yaml:"flavor"`
	Managed   ManagedConfig   `yaml:"managed"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig controls the websocket port server.
type ServerConfig struct {
	Bind           string   `yaml:"bind"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxPorts       int      `yaml:"max_ports"` // Concurrent websocket ports
}

// BusConfig selects the message bus used for the bus port substrate and host bridge.
type BusConfig struct {
	Backend string        `yaml:"backend"` // none, memory, nats
	URL     string        `yaml:"url"`
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
}

// SyncConfig describes the quota-limited cloud store.
type SyncConfig struct {
	Backend                     string `yaml:"backend"` // memory, nats
	Bucket                      string `yaml:"bucket"`
	QuotaBytes                  int    `yaml:"quota_bytes"`
	QuotaBytesPerItem           int    `yaml:"quota_bytes_per_item"`
	MaxItems                    int    `yaml:"max_items"`
	MaxWriteOperationsPerMinute int    `yaml:"max_write_operations_per_minute"`
}

// StorageConfig points at the local sqlite database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// FlavorConfig describes the host environment's feature profile.
// Soup holds tokens such as "firefox", "chromium" or "user_stylesheet".
type FlavorConfig struct {
	Soup  []string `yaml:"soup"`
	Major int      `yaml:"major"`
}

// Has reports whether the flavor soup contains token.
func (f FlavorConfig) Has(token string) bool {
	for _, s := range f.Soup {
		if s == token {
			return true
		}
	}
	return false
}

// ManagedConfig locates the read-only admin settings file.
type ManagedConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// LoggingConfig controls the root logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Tracing     bool   `yaml:"tracing"`
	ServiceName string `yaml:"service_name"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:     DefaultBind,
			MaxPorts: DefaultMaxPorts,
		},
		Bus: BusConfig{
			Backend: DefaultBusBackend,
			URL:     "nats://localhost:4222",
			Name:    "extbridge",
			Timeout: 5 * time.Second,
		},
		Sync: SyncConfig{
			Backend:                     DefaultSyncBackend,
			Bucket:                      DefaultSyncBucket,
			QuotaBytes:                  DefaultQuotaBytes,
			QuotaBytesPerItem:           DefaultQuotaBytesPerItem,
			MaxItems:                    DefaultMaxItems,
			MaxWriteOperationsPerMinute: DefaultMaxWriteOpsPerMin,
		},
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		Flavor: FlavorConfig{
			Soup: []string{"chromium"},
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultServiceName,
		},
	}
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.Getenv("HOME")
	}
	if home == "" {
		return filepath.Join(".extbridge", "extbridge.db")
	}
	return filepath.Join(home, ".extbridge", "extbridge.db")
}

// Load loads configuration from default locations with proper precedence
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// User config (~/.extbridge/config.yaml)
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".extbridge", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, exterrors.Wrap(err, exterrors.ErrCodeConfigLoad, "loading user config").
				WithContext("path", userConfigPath)
		}
	}

	// Project config (./.extbridge/config.yaml)
	projectConfigPath := filepath.Join(".", ".extbridge", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, exterrors.Wrap(err, exterrors.ErrCodeConfigLoad, "loading project config").
			WithContext("path", projectConfigPath)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, exterrors.Wrap(err, exterrors.ErrCodeConfigLoad, "loading config").
			WithContext("path", path)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("EXTBRIDGE_BIND")); v != "" {
		cfg.Server.Bind = v
	}
	if v := strings.TrimSpace(os.Getenv("EXTBRIDGE_BUS_BACKEND")); v != "" {
		cfg.Bus.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("EXTBRIDGE_NATS_URL")); v != "" {
		cfg.Bus.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("EXTBRIDGE_SYNC_BACKEND")); v != "" {
		cfg.Sync.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("EXTBRIDGE_SYNC_BUCKET")); v != "" {
		cfg.Sync.Bucket = v
	}
	if v := strings.TrimSpace(os.Getenv("EXTBRIDGE_SYNC_MAX_WRITES_PER_MINUTE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.MaxWriteOperationsPerMinute = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("EXTBRIDGE_STORAGE_PATH")); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("EXTBRIDGE_FLAVOR"); strings.TrimSpace(v) != "" {
		cfg.Flavor.Soup = splitCommaList(v)
	}
	if v := strings.TrimSpace(os.Getenv("EXTBRIDGE_MANAGED_PATH")); v != "" {
		cfg.Managed.Path = v
	}
	if val, ok := envBool("EXTBRIDGE_MANAGED_WATCH"); ok {
		cfg.Managed.Watch = val
	}
	if v := strings.TrimSpace(os.Getenv("EXTBRIDGE_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("EXTBRIDGE_LOG_FORMAT")); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if val, ok := envBool("EXTBRIDGE_TRACING"); ok {
		cfg.Telemetry.Tracing = val
	}
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func isLoopbackBindAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	switch strings.ToLower(host) {
	case "localhost":
		return true
	case "0.0.0.0", "::":
		return false
	default:
		ip := net.ParseIP(host)
		if ip == nil {
			return false
		}
		return ip.IsLoopback()
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	invalid := func(field string, value any, msg string) error {
		return exterrors.New(exterrors.ErrCodeConfigInvalid, msg).
			WithContext("field", field).
			WithContext("value", value)
	}

	if strings.TrimSpace(c.Server.Bind) == "" {
		return invalid("server.bind", c.Server.Bind, "bind address is required")
	}
	if c.Server.MaxPorts <= 0 {
		return invalid("server.max_ports", c.Server.MaxPorts, "max_ports must be positive")
	}

	switch c.Bus.Backend {
	case BusBackendNone, BusBackendMemory:
	case BusBackendNATS:
		if strings.TrimSpace(c.Bus.URL) == "" {
			return invalid("bus.url", c.Bus.URL, "nats bus requires a url")
		}
	default:
		return invalid("bus.backend", c.Bus.Backend, fmt.Sprintf("unknown bus backend (want %s, %s or %s)",
			BusBackendNone, BusBackendMemory, BusBackendNATS))
	}
	if c.Bus.Timeout < 0 {
		return invalid("bus.timeout", c.Bus.Timeout, "timeout must not be negative")
	}

	switch c.Sync.Backend {
	case SyncBackendMemory:
	case SyncBackendNATS:
		if c.Bus.Backend != BusBackendNATS {
			return invalid("sync.backend", c.Sync.Backend, "nats sync store requires bus.backend nats")
		}
		if strings.TrimSpace(c.Sync.Bucket) == "" {
			return invalid("sync.bucket", c.Sync.Bucket, "nats sync store requires a bucket")
		}
	default:
		return invalid("sync.backend", c.Sync.Backend, "unknown sync backend")
	}
	if c.Sync.QuotaBytes <= 0 {
		return invalid("sync.quota_bytes", c.Sync.QuotaBytes, "quota must be positive")
	}
	if c.Sync.QuotaBytesPerItem <= 0 || c.Sync.QuotaBytesPerItem > c.Sync.QuotaBytes {
		return invalid("sync.quota_bytes_per_item", c.Sync.QuotaBytesPerItem,
			"per-item quota must be positive and no larger than quota_bytes")
	}
	if c.Sync.MaxItems < 16 {
		return invalid("sync.max_items", c.Sync.MaxItems, "max_items must be at least 16")
	}
	if c.Sync.MaxWriteOperationsPerMinute <= 0 {
		return invalid("sync.max_write_operations_per_minute", c.Sync.MaxWriteOperationsPerMinute,
			"write rate must be positive")
	}

	if strings.TrimSpace(c.Storage.Path) == "" {
		return invalid("storage.path", c.Storage.Path, "storage path is required")
	}

	if c.Managed.Watch && strings.TrimSpace(c.Managed.Path) == "" {
		return invalid("managed.watch", c.Managed.Watch, "watching requires managed.path")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level", c.Logging.Level, "unknown log level")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return invalid("logging.format", c.Logging.Format, "unknown log format")
	}

	return nil
}

// ValidationWarnings returns non-fatal warnings about the configuration.
func (c *Config) ValidationWarnings() []string {
	var warnings []string
	if !isLoopbackBindAddress(c.Server.Bind) {
		warnings = append(warnings, fmt.Sprintf("server.bind %q is not a loopback address; ports are unauthenticated", c.Server.Bind))
	}
	if c.Sync.Backend == SyncBackendMemory {
		warnings = append(warnings, "sync.backend is memory; cloud data does not survive restarts")
	}
	return warnings
}
