// Package config loads client configuration from .quill.yaml plus
// environment overrides.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default backfill window thresholds. These are tuned values, not hard
// invariants; .quill.yaml can override any of them.
const (
	DefaultPrimaryLimit  = 12
	DefaultMaxRenderable = 80
	DefaultAnchorMin     = 6
	DefaultPageSize      = 200
	DefaultMaxPages      = 25
)

// Thresholds bounds the backfill window fetch.
type Thresholds struct {
	// PrimaryLimit caps how many primary (user/assistant/summary)
	// messages the rendered window targets.
	PrimaryLimit int `yaml:"primary_limit"`
	// MaxRenderable hard-caps the rendered message count.
	MaxRenderable int `yaml:"max_renderable"`
	// AnchorMin is how many user/assistant messages must be present
	// before paging stops early.
	AnchorMin int `yaml:"anchor_min"`
	// PageSize is the per-request message count.
	PageSize int `yaml:"page_size"`
	// MaxPages bounds worst-case latency on tool-call-heavy histories.
	MaxPages int `yaml:"max_pages"`
}

// Config holds client configuration from .quill.yaml.
type Config struct {
	BaseURL    string     `yaml:"base_url"`
	Token      string     `yaml:"token"`
	AgentID    string     `yaml:"agent_id"`
	Backfill   *bool      `yaml:"backfill"`
	Thresholds Thresholds `yaml:"thresholds"`
}

// Load reads .quill.yaml from dir, applies defaults for missing values,
// then environment overrides (QUILL_BASE_URL, QUILL_TOKEN, QUILL_AGENT_ID,
// QUILL_BACKFILL=off). A missing file yields the default config.
func Load(dir string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(filepath.Join(dir, ".quill.yaml"))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("QUILL_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("QUILL_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("QUILL_AGENT_ID"); v != "" {
		cfg.AgentID = v
	}
	if os.Getenv("QUILL_BACKFILL") == "off" {
		off := false
		cfg.Backfill = &off
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8283"
	}
	t := &c.Thresholds
	if t.PrimaryLimit <= 0 {
		t.PrimaryLimit = DefaultPrimaryLimit
	}
	if t.MaxRenderable <= 0 {
		t.MaxRenderable = DefaultMaxRenderable
	}
	if t.AnchorMin <= 0 {
		t.AnchorMin = DefaultAnchorMin
	}
	if t.PageSize <= 0 {
		t.PageSize = DefaultPageSize
	}
	if t.MaxPages <= 0 {
		t.MaxPages = DefaultMaxPages
	}
}

// BackfillEnabled reports whether resume should rebuild display history.
// Backfill defaults on; turning it off degrades resume to
// approval-detection only.
func (c *Config) BackfillEnabled() bool {
	return c.Backfill == nil || *c.Backfill
}

// DefaultThresholds returns the built-in window bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PrimaryLimit:  DefaultPrimaryLimit,
		MaxRenderable: DefaultMaxRenderable,
		AnchorMin:     DefaultAnchorMin,
		PageSize:      DefaultPageSize,
		MaxPages:      DefaultMaxPages,
	}
}
