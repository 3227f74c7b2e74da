// Package config loads, normalizes, and validates vitae configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VITAE_LLM_API_KEY and VITAE_STORE_DSN. The Config type centralizes every
// knob the daemon and CLI need, so the job store, generation provider, and
// worker pool are configured in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
