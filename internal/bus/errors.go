package bus

// ErrorEvent is the payload published on TopicError when a stage fails
// to process input. It deliberately carries context, not the raw bytes:
// raw payloads are logged at debug level by the stage itself.
type ErrorEvent struct {
	// Source names the failing stage ("decoder.familyb", "persist", ...).
	Source string `json:"source"`

	// DeviceID is set when the failure is attributable to a gateway.
	DeviceID string `json:"deviceId,omitempty"`

	// Topic is the broker topic the offending payload arrived on, if any.
	Topic string `json:"topic,omitempty"`

	// Detail is a human-readable description of what went wrong.
	Detail string `json:"detail"`
}
