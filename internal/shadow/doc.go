// Package shadow holds the in-memory twin of every gateway and module:
// per-module telemetry entries and per-device metadata entries.
//
// Two disjoint operations act on metadata. Merge (info frames) only
// overwrites with non-null incoming values and never removes modules.
// Reconcile (heartbeats) treats the heartbeat as authoritative for
// presence and removes modules it no longer names, while preserving
// firmware versions that only info frames supply. Both return ordered
// human-readable change descriptions and both are idempotent.
package shadow
