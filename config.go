package proofwatch

import "github.com/hazyhaar/proofwatch/internal/config"

// Config aliases the full configuration so callers can construct one without
// reaching into internal packages.
type (
	Config         = config.Config
	DebounceConfig = config.DebounceConfig
	RequestConfig  = config.RequestConfig
	CacheConfig    = config.CacheConfig
	ServeConfig    = config.ServeConfig
)

// DefaultConfig returns the built-in defaults: the public LanguageTool
// endpoint, automatic checking on, 500-word chunks.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }
