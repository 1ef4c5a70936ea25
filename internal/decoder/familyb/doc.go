// Package familyb decodes the compact binary gateway protocol.
//
// Frames are big-endian throughout, carry a trailing four-byte message
// id, and are discriminated first by topic suffix and then by header
// byte. Temperature, humidity and noise values use a sign-magnitude
// fixed-point encoding where an all-zero pair means "no reading".
package familyb
