// Package browser wraps go-rod with the session primitives the portal
// workflow needs: tolerant clicking across selector variants, type-and-verify
// input, bounded waits and download monitoring.
package browser

import "time"

// Config holds browser launch and interaction settings.
type Config struct {
	DebuggerURL         string   `yaml:"debugger_url"`
	Launch              []string `yaml:"launch"`
	Headless            bool     `yaml:"headless"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
	ElementTimeoutMs    int      `yaml:"element_timeout_ms"`
	TypeRetries         int      `yaml:"type_retries"`
	DownloadDir         string   `yaml:"download_dir"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            false,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
		ElementTimeoutMs:    10000,
		TypeRetries:         3,
	}
}

// NavigationTimeout returns the page navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// ElementTimeout returns the default wait for a single element.
func (c Config) ElementTimeout() time.Duration {
	if c.ElementTimeoutMs == 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ElementTimeoutMs) * time.Millisecond
}

// TypeRetryCount returns how many attempts type-and-verify makes.
func (c Config) TypeRetryCount() int {
	if c.TypeRetries == 0 {
		return 3
	}
	return c.TypeRetries
}
