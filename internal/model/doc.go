// Package model defines the shared object model: the Intermediate Form
// frames emitted by the protocol decoders, the normalized events
// consumed by persistence and the push stream, and outbound command
// requests.
//
// Both device families converge on these types; nothing downstream of
// the decoders depends on source framing.
package model
