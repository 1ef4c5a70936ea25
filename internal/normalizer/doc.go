// Package normalizer is the behavioral core of the pipeline. It
// consumes intermediate-form frames, maintains the device shadow,
// derives logical events (tag attach/detach, topology and firmware
// changes) by diffing against cached state, and plans self-healing and
// warmup queries on every heartbeat.
//
// Frames are sharded across workers by device id, so processing is
// strictly serial per device and emitted events preserve per-module
// receive order. Warmup command plans are dispatched with a fixed
// stagger to protect the downstream serial fieldbus.
package normalizer
