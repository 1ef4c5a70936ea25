// Package persist routes normalized events into the relational store.
//
// Events buffer per target table and flush in batches, either when the
// combined buffer fills or on a timer. Telemetry readings pivot from
// per-sensor lists into fixed columns (temp_index10..15, hum_index10..15,
// noise_index16..18); device metadata upserts on device_id; everything
// else appends. A failed batch keeps its buffer and retries on the
// next cycle.
package persist
