package familyb

import "errors"

// Sentinel errors for FamilyB decoding.
var (
	// ErrBadFrame indicates a length or range violation in the frame.
	ErrBadFrame = errors.New("familyb: malformed frame")

	// ErrUnknownHeader indicates an unrecognized frame header.
	ErrUnknownHeader = errors.New("familyb: unknown frame header")
)
