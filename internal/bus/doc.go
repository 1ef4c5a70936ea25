// Package bus is the in-process publish/subscribe backbone wiring the
// pipeline stages together: decoders publish intermediate frames, the
// normalizer publishes events, persistence and the push stream consume
// them, and every stage can raise error notices.
//
// Delivery is at-most-once per subscriber: a full inbox drops the
// message and increments a counter surfaced by the health endpoint.
package bus
