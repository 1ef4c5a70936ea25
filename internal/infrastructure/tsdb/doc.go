// Package tsdb mirrors numeric telemetry (temperature, humidity, noise)
// into InfluxDB for time-series dashboards.
//
// The mirror is optional and strictly best-effort: write errors are
// reported through a callback and never gate the relational persistence
// path.
package tsdb
