package persist

import "errors"

// Sentinel errors for the persistence layer.
var (
	// ErrUnknownTable indicates a history query for a table outside
	// the whitelist.
	ErrUnknownTable = errors.New("persist: unknown table")
)
