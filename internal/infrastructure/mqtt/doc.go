// Package mqtt provides the broker client for RackBridge Core.
//
// It wraps eclipse/paho.mqtt.golang with automatic reconnection (exponential
// backoff, unbounded retries), tracked subscriptions restored on reconnect,
// Last Will and Testament for offline detection, and panic-recovering
// message handlers.
//
// Both device families share the one client: inbound frames arrive on
// `{uploadRoot}/+/#` per family, outbound command frames are published on
// `{downloadRoot}/{deviceId}`.
package mqtt
