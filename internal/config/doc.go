// Package config loads, normalizes, and validates notesync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// NOTESYNC_AUTH_TOKEN. The Config type centralizes every knob the daemon and
// CLI need, so the local database, socket, lock files, and remote account are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
