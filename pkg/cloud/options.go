package cloud

import (
	"runtime"
)

const deviceNameKey = "deviceName"

// Options are the device settings stamped onto pushed entries.
type Options struct {
	DefaultDeviceName string `json:"defaultDeviceName"`
	DeviceName        string `json:"deviceName"`
}

// OptionsUpdate changes Options. Nil fields are left alone.
type OptionsUpdate struct {
	DeviceName *string `json:"deviceName,omitempty"`
}

// GetOptions returns the current device options.
func (c *Chunker) GetOptions() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.options
}

// SetOptions applies u, persists the device name and returns the result.
func (c *Chunker) SetOptions(u OptionsUpdate) Options {
	c.mu.Lock()
	if u.DeviceName != nil {
		c.options.DeviceName = *u.DeviceName
		if c.local != nil {
			c.local.SetItem(deviceNameKey, *u.DeviceName)
		}
	}
	opts := c.options
	c.mu.Unlock()
	return opts
}

func (c *Chunker) deviceNameOrDefault() string {
	opts := c.GetOptions()
	if opts.DeviceName != "" {
		return opts.DeviceName
	}
	return opts.DefaultDeviceName
}

func (c *Chunker) loadDeviceName() string {
	if c.local == nil {
		return ""
	}
	return c.local.GetItem(deviceNameKey)
}

// DefaultDeviceName names the platform the way browsers report it to pages,
// e.g. "Linux x86_64", "Win32" or "MacIntel".
func DefaultDeviceName() string {
	return platformName(runtime.GOOS, runtime.GOARCH)
}

func platformName(goos, goarch string) string {
	switch goos {
	case "windows":
		return "Win32"
	case "darwin":
		return "MacIntel"
	case "linux", "freebsd", "openbsd", "netbsd":
		name := "Linux"
		if goos != "linux" {
			name = map[string]string{"freebsd": "FreeBSD", "openbsd": "OpenBSD", "netbsd": "NetBSD"}[goos]
		}
		switch goarch {
		case "amd64":
			return name + " x86_64"
		case "386":
			return name + " i686"
		case "arm64":
			return name + " aarch64"
		case "arm":
			return name + " armv7l"
		}
		return name + " " + goarch
	}
	return goos
}
