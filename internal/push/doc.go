// Package push streams normalized events to WebSocket clients.
//
// A dedicated HTTP listener upgrades connections on the configured
// path; every event published on the internal bus is broadcast to all
// connected clients as a JSON frame. Slow clients drop frames rather
// than stalling the pipeline.
package push
