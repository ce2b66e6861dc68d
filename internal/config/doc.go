// Package config loads, normalizes, and validates songpack configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SONGPACK_SOURCE. The Config type centralizes every knob the build pipeline
// and CLI need: where packages live, where the bundle goes, how assets are
// materialized, which descriptor fields are plain text, and what info.json
// advertises to the player.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
