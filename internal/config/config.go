// Package config handles proofwatch configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level proofwatch configuration.
type Config struct {
	ServiceURL     string         `yaml:"service_url"`
	Language       string         `yaml:"language"`
	Automatic      bool           `yaml:"automatic"`
	ChunkWordLimit int            `yaml:"chunk_word_limit"`
	Debounce       DebounceConfig `yaml:"debounce"`
	Request        RequestConfig  `yaml:"request"`
	Cache          CacheConfig    `yaml:"cache"`
	Serve          ServeConfig    `yaml:"serve"`
}

// DebounceConfig controls how long edits settle before a check fires.
type DebounceConfig struct {
	Document time.Duration `yaml:"document"` // full-document pass
	Node     time.Duration `yaml:"node"`     // per-block incremental pass
}

// RequestConfig controls outgoing check requests.
type RequestConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	RatePerSec float64       `yaml:"rate_per_sec"` // 0 disables throttling
	Burst      int           `yaml:"burst"`
}

// CacheConfig controls the on-disk response cache. An empty path disables it.
type CacheConfig struct {
	Path string        `yaml:"path"`
	TTL  time.Duration `yaml:"ttl"`
}

// ServeConfig is the HTTP API listener.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ServiceURL:     "https://api.languagetool.org/v2",
		Language:       "auto",
		Automatic:      true,
		ChunkWordLimit: 500,
		Debounce: DebounceConfig{
			Document: time.Second,
			Node:     500 * time.Millisecond,
		},
		Request: RequestConfig{
			Timeout: 10 * time.Second,
			Burst:   1,
		},
		Cache: CacheConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:8082",
		},
	}
}

// Load reads a YAML configuration file. Fields absent from the file keep
// their defaults, so `automatic: false` survives while an omitted key means
// automatic checking stays on.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize clamps out-of-range values back to their defaults.
func (c *Config) normalize() {
	def := Default()
	if c.ServiceURL == "" {
		c.ServiceURL = def.ServiceURL
	}
	if c.Language == "" {
		c.Language = def.Language
	}
	if c.ChunkWordLimit <= 0 {
		c.ChunkWordLimit = def.ChunkWordLimit
	}
	if c.Debounce.Document <= 0 {
		c.Debounce.Document = def.Debounce.Document
	}
	if c.Debounce.Node <= 0 {
		c.Debounce.Node = def.Debounce.Node
	}
	if c.Request.Timeout <= 0 {
		c.Request.Timeout = def.Request.Timeout
	}
	if c.Request.RatePerSec < 0 {
		c.Request.RatePerSec = 0
	}
	if c.Request.Burst < 1 {
		c.Request.Burst = 1
	}
	if c.Cache.TTL < 0 {
		c.Cache.TTL = 0
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = def.Serve.Addr
	}
}
