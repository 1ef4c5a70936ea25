package command

import "errors"

// Sentinel errors for command building.
var (
	// ErrMissingField indicates a required request field is absent or
	// out of range.
	ErrMissingField = errors.New("command: missing required field")

	// ErrUnsupported indicates the kind/family pair has no frame.
	ErrUnsupported = errors.New("command: unsupported command")
)
