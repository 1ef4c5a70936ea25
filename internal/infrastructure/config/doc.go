// Package config loads and validates RackBridge Core configuration.
//
// Configuration is layered: hardcoded defaults, then a YAML file, then
// environment variable overrides (RACKBRIDGE_SECTION_KEY). The loaded
// Config is immutable after startup; components receive the sections they
// need by value.
//
// Secrets (broker password, TSDB token) are never serialised back out:
// Redacted() produces the copy served by GET /api/config.
package config
