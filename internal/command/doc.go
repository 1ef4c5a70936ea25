// Package command translates normalized command requests into
// protocol-specific downlink frames: compact byte sequences for
// FamilyB, msg_type-keyed JSON envelopes for FamilyJ.
package command
