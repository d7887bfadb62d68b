// Package config loads, validates, and normalizes the daemon configuration
// from TOML, with environment variable overrides for secrets.
package config
