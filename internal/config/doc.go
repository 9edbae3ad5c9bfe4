// Package config loads, normalizes, and validates arkiv configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob
// the daemon and CLI need: data and package directories, catalog and
// preservation service endpoints, delay windows, worker counts, and lock
// lease durations.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
