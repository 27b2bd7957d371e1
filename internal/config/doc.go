// Package config loads, validates, and normalizes the groovesheet TOML
// configuration. All tunables are named fields with defaults; construction
// sites receive a fully resolved Config rather than reading the environment.
package config
