package config

import (
	toml "github.com/pelletier/go-toml/v2"
)

// TOML renders the effective configuration. Secrets are masked.
func (c *Config) TOML() ([]byte, error) {
	masked := *c
	if masked.Store.PostgresDSN != "" {
		masked.Store.PostgresDSN = "*****"
	}
	return toml.Marshal(masked)
}
