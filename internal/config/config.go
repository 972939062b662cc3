package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/hpungsan/clipnest/internal/rules"
)

// Storage backends for the history persistence sink.
const (
	StorageSQLite = "sqlite"
	StorageJSON   = "json"
)

// FileName is the config file inside the base directory.
const FileName = "config.json"

// Config holds application configuration.
// Pointer fields distinguish "unset" from a meaningful zero when merging.
type Config struct {
	// HistoryLimit is the maximum number of retained non-pinned entries (> 0)
	HistoryLimit int `json:"history_limit,omitempty"`

	// MinTextLength drops plain-text captures shorter than this (in runes).
	// Links and code are always kept.
	MinTextLength *int `json:"min_text_length,omitempty"`

	// DedupWindowMinutes is the window in which a repeated capture replaces
	// the earlier copy at insert time.
	DedupWindowMinutes *int `json:"dedup_window_minutes,omitempty"`

	// MonitoringEnabled pauses the poller when false.
	MonitoringEnabled *bool `json:"monitoring_enabled,omitempty"`

	// PersistenceEnabled saves history after every mutation when true.
	PersistenceEnabled *bool `json:"persistence_enabled,omitempty"`

	// PollIntervalMS is the clipboard polling interval.
	PollIntervalMS int `json:"poll_interval_ms,omitempty"`

	// SnipWindowSeconds is how long a screenshot tool sighting lends its
	// verdict to images that arrive afterwards.
	SnipWindowSeconds int `json:"snip_window_seconds,omitempty"`

	// Storage selects the persistence sink: "sqlite" or "json".
	Storage string `json:"storage,omitempty"`

	// LogLevel is DEBUG, INFO, WARN or ERROR.
	LogLevel string `json:"log_level,omitempty"`

	// Rules are evaluated in declaration order against every capture.
	// A non-nil overlay list replaces the base list.
	Rules []rules.Rule `json:"rules,omitempty"`

	// ScreenshotTools adds window-title fragments to the built-in table.
	ScreenshotTools []string `json:"screenshot_tools,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		HistoryLimit:       100,
		MinTextLength:      intPtr(2),
		DedupWindowMinutes: intPtr(3),
		MonitoringEnabled:  boolPtr(true),
		PersistenceEnabled: boolPtr(true),
		PollIntervalMS:     500,
		SnipWindowSeconds:  3,
		Storage:            StorageSQLite,
		LogLevel:           "INFO",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.clipnest.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, FileName))
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
// Comments and trailing commas are accepted.
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(std, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", configPath, err)
	}
	return cfg, nil
}

// Save writes cfg to baseDir/config.json atomically.
func Save(baseDir string, cfg *Config) error {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return fmt.Errorf("failed to create base directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return atomic.WriteFile(filepath.Join(baseDir, FileName), bytes.NewReader(data))
}

// Validate rejects values the history cannot run with.
func (c *Config) Validate() error {
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be greater than 0")
	}
	if c.MinTextLength != nil && *c.MinTextLength < 0 {
		return fmt.Errorf("min_text_length must not be negative")
	}
	if c.DedupWindowMinutes != nil && *c.DedupWindowMinutes < 0 {
		return fmt.Errorf("dedup_window_minutes must not be negative")
	}
	if c.PollIntervalMS < 0 {
		return fmt.Errorf("poll_interval_ms must not be negative")
	}
	switch c.Storage {
	case StorageSQLite, StorageJSON:
	default:
		return fmt.Errorf("storage must be one of: sqlite, json")
	}
	for i, r := range c.Rules {
		if err := rules.Validate(r); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	return nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if set, else base
	result.HistoryLimit = firstNonZero(overlay.HistoryLimit, base.HistoryLimit)
	result.PollIntervalMS = firstNonZero(overlay.PollIntervalMS, base.PollIntervalMS)
	result.SnipWindowSeconds = firstNonZero(overlay.SnipWindowSeconds, base.SnipWindowSeconds)
	result.DBMaxOpenConns = firstNonZero(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstNonZero(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.Storage = strings.ToLower(strings.TrimSpace(overlay.Storage))
	if result.Storage == "" {
		result.Storage = base.Storage
	}
	result.LogLevel = overlay.LogLevel
	if result.LogLevel == "" {
		result.LogLevel = base.LogLevel
	}

	result.MinTextLength = firstSet(overlay.MinTextLength, base.MinTextLength)
	result.DedupWindowMinutes = firstSet(overlay.DedupWindowMinutes, base.DedupWindowMinutes)
	result.MonitoringEnabled = firstSet(overlay.MonitoringEnabled, base.MonitoringEnabled)
	result.PersistenceEnabled = firstSet(overlay.PersistenceEnabled, base.PersistenceEnabled)

	// Rules are ordered; the overlay list replaces rather than merges
	if overlay.Rules != nil {
		result.Rules = append([]rules.Rule{}, overlay.Rules...)
	} else if base.Rules != nil {
		result.Rules = append([]rules.Rule{}, base.Rules...)
	}

	// Arrays: merge and deduplicate
	result.ScreenshotTools = mergeStringSlice(base.ScreenshotTools, overlay.ScreenshotTools)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// MinLength returns MinTextLength or 0 when unset.
func (c *Config) MinLength() int {
	if c.MinTextLength == nil {
		return 0
	}
	return *c.MinTextLength
}

// DedupWindow returns the dedup window as a duration.
func (c *Config) DedupWindow() time.Duration {
	if c.DedupWindowMinutes == nil {
		return 0
	}
	return time.Duration(*c.DedupWindowMinutes) * time.Minute
}

// Monitoring reports whether the poller should capture.
func (c *Config) Monitoring() bool {
	return c.MonitoringEnabled == nil || *c.MonitoringEnabled
}

// Persistence reports whether history should be saved.
func (c *Config) Persistence() bool {
	return c.PersistenceEnabled == nil || *c.PersistenceEnabled
}

// PollInterval returns the polling interval, defaulting to 500ms.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// SnipWindow returns the recent-snip window.
func (c *Config) SnipWindow() time.Duration {
	return time.Duration(c.SnipWindowSeconds) * time.Second
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstSet[T any](overlay, base *T) *T {
	if overlay != nil {
		v := *overlay
		return &v
	}
	if base != nil {
		v := *base
		return &v
	}
	return nil
}

func intPtr(v int) *int { return &v }
func boolPtr(v bool) *bool { return &v }

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
