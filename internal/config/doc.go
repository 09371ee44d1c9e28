// Package config loads, normalizes, and validates VibeDispatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GITHUB_OWNER, AGGREGATOR_API_URL, and DISCORD_WEBHOOK_URL, including values
// sourced from a .env file. The Config type centralizes every knob the CLI
// needs so the gh adapter, ledger, and notification clients are configured in
// one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
