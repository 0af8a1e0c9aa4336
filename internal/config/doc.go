// Package config loads, normalizes, and validates the TOML configuration
// shared by the adforge daemon and CLI.
package config
