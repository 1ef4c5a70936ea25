// Package familyj decodes the structured JSON gateway protocol.
//
// Envelopes are discriminated by msg_type. Field names vary between
// firmware revisions, so lookups run through alias lists; numbers may
// arrive as JSON numbers or strings. Unknown msg_type values decode to
// kind UNKNOWN with the raw body preserved rather than failing.
package familyj
