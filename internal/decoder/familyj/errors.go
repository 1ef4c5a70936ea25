package familyj

import "errors"

// Sentinel errors for FamilyJ decoding.
var (
	// ErrBadJSON indicates the payload is not valid JSON.
	ErrBadJSON = errors.New("familyj: invalid json")

	// ErrMissingField indicates a required identity field is absent.
	ErrMissingField = errors.New("familyj: missing required field")
)
