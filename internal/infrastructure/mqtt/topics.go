package mqtt

import "strings"

// SystemStatusTopic carries the middleware's own online/offline status,
// including the LWT crash message.
const SystemStatusTopic = "rackbridge/system/status"

// UplinkPattern returns the subscription pattern for a family's upload root.
//
// Example: UplinkPattern("BUpload") -> "BUpload/+/#"
func UplinkPattern(uploadRoot string) string {
	return uploadRoot + "/+/#"
}

// DownlinkTopic returns the publish topic for outbound commands to a device.
//
// Example: DownlinkTopic("JDownload", "GW-9001") -> "JDownload/GW-9001"
func DownlinkTopic(downloadRoot, deviceID string) string {
	return downloadRoot + "/" + deviceID
}

// TopicRoot returns the first segment of an MQTT topic. The family of an
// inbound frame is an observable property of this root.
func TopicRoot(topic string) string {
	if i := strings.IndexByte(topic, '/'); i >= 0 {
		return topic[:i]
	}
	return topic
}

// TopicDeviceID returns the second segment of an uplink topic, which names
// the publishing gateway.
//
// Example: TopicDeviceID("BUpload/1022/LabelState") -> "1022"
func TopicDeviceID(topic string) string {
	parts := strings.SplitN(topic, "/", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
