// Package api serves the HTTP read surface: health, redacted config,
// live shadow views, history queries and command submission.
//
// The API is read-mostly; the only mutating route is POST /api/commands,
// which validates and forwards a downlink command without waiting for
// the device's response. Responses arrive asynchronously as
// *_RESP events on the push stream.
package api
