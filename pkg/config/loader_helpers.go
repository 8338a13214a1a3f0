package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
	"github.com/odvcencio/extbridge/pkg/paths"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeConfigParse, "parsing YAML")
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeConfigParse, "parsing YAML")
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if strings.TrimSpace(override.Server.Bind) != "" {
		base.Server.Bind = override.Server.Bind
	}
	if override.Server.AllowedOrigins != nil {
		base.Server.AllowedOrigins = append([]string{}, override.Server.AllowedOrigins...)
	}
	if override.Server.MaxPorts != 0 {
		base.Server.MaxPorts = override.Server.MaxPorts
	}

	if override.Bus.Backend != "" {
		base.Bus.Backend = strings.ToLower(override.Bus.Backend)
	}
	if override.Bus.URL != "" {
		base.Bus.URL = override.Bus.URL
	}
	if override.Bus.Name != "" {
		base.Bus.Name = override.Bus.Name
	}
	if override.Bus.Timeout != 0 {
		base.Bus.Timeout = override.Bus.Timeout
	}

	if override.Sync.Backend != "" {
		base.Sync.Backend = strings.ToLower(override.Sync.Backend)
	}
	if override.Sync.Bucket != "" {
		base.Sync.Bucket = override.Sync.Bucket
	}
	if override.Sync.QuotaBytes != 0 {
		base.Sync.QuotaBytes = override.Sync.QuotaBytes
	}
	if override.Sync.QuotaBytesPerItem != 0 {
		base.Sync.QuotaBytesPerItem = override.Sync.QuotaBytesPerItem
	}
	if override.Sync.MaxItems != 0 {
		base.Sync.MaxItems = override.Sync.MaxItems
	}
	if override.Sync.MaxWriteOperationsPerMinute != 0 {
		base.Sync.MaxWriteOperationsPerMinute = override.Sync.MaxWriteOperationsPerMinute
	}

	if override.Storage.Path != "" {
		base.Storage.Path = expandHomeDir(override.Storage.Path)
	}

	if fieldSet(raw, "flavor", "soup") {
		base.Flavor.Soup = append([]string{}, override.Flavor.Soup...)
	}
	if override.Flavor.Major != 0 {
		base.Flavor.Major = override.Flavor.Major
	}

	if override.Managed.Path != "" {
		base.Managed.Path = expandHomeDir(override.Managed.Path)
	}
	if fieldSet(raw, "managed", "watch") {
		base.Managed.Watch = override.Managed.Watch
	}

	if override.Logging.Level != "" {
		base.Logging.Level = strings.ToLower(override.Logging.Level)
	}
	if override.Logging.Format != "" {
		base.Logging.Format = strings.ToLower(override.Logging.Format)
	}

	if fieldSet(raw, "telemetry", "tracing") {
		base.Telemetry.Tracing = override.Telemetry.Tracing
	}
	if override.Telemetry.ServiceName != "" {
		base.Telemetry.ServiceName = override.Telemetry.ServiceName
	}
}

// fieldSet reports whether the raw YAML document contains the nested key path,
// so explicit false and empty values can override defaults.
func fieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}

func expandHomeDir(path string) string {
	return paths.ExpandHome(path)
}
