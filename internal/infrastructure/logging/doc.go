// Package logging provides structured logging for RackBridge Core.
//
// It wraps log/slog with the configured level, format and output, and tags
// every record with the service name and version. Pipeline components take
// a narrow Logger interface so tests can substitute a noop implementation.
package logging
