package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "BDownload/1022")
//   - payload: The message payload (raw bytes for FamilyB, JSON for FamilyJ)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishDownlink publishes an outbound command frame on the download topic
// for the given family root and device, using the configured default QoS.
//
// Example:
//
//	err := client.PublishDownlink("BDownload", "1022", frame)
func (c *Client) PublishDownlink(downloadRoot, deviceID string, payload []byte) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidTopic)
	}
	return c.Publish(DownlinkTopic(downloadRoot, deviceID), payload, byte(c.cfg.QoS), false)
}
