// Package ingest subscribes to the per-family uplink topics and turns
// raw broker payloads into decoded frames on the internal bus.
//
// Each family's payloads go through its own decoder; frames that fail
// to decode are reported on the error topic and dropped, never crashing
// the pipeline.
package ingest
