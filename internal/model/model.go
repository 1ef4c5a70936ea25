package model

import "time"

// Family identifies the gateway protocol family.
type Family string

// Supported device families.
const (
	// FamilyB speaks the compact big-endian binary protocol.
	FamilyB Family = "B"

	// FamilyJ speaks the structured JSON protocol.
	FamilyJ Family = "J"
)

// MaxModuleIndex returns the highest valid module index for a family.
func MaxModuleIndex(f Family) int {
	if f == FamilyB {
		return 5
	}
	return 24
}

// Kind discriminates frame and event types.
type Kind string

// Inbound and normalized event kinds.
const (
	KindHeartbeat      Kind = "HEARTBEAT"
	KindRFIDSnapshot   Kind = "RFID_SNAPSHOT"
	KindRFIDEvent      Kind = "RFID_EVENT"
	KindTempHum        Kind = "TEMP_HUM"
	KindNoiseLevel     Kind = "NOISE_LEVEL"
	KindDoorState      Kind = "DOOR_STATE"
	KindDeviceMetadata Kind = "DEVICE_METADATA"
	KindMetaChanged    Kind = "META_CHANGED_EVENT"
	KindQryColorResp   Kind = "QRY_COLOR_RESP"
	KindSetColorResp   Kind = "SET_COLOR_RESP"
	KindClearAlarmResp Kind = "CLEAR_ALARM_RESP"

	// KindDeviceStatus is emitted by the watchdog when enabled.
	KindDeviceStatus Kind = "DEVICE_STATUS"
)

// Intermediate-form-only kinds. These never appear on normalized
// events: the normalizer folds them into DEVICE_METADATA and
// META_CHANGED_EVENT.
const (
	KindDeviceInfo    Kind = "DEVICE_INFO"
	KindModuleInfo    Kind = "MODULE_INFO"
	KindDevModInfo    Kind = "DEV_MOD_INFO"
	KindUTotalChanged Kind = "UTOTAL_CHANGED"
	KindUnknown       Kind = "UNKNOWN"
)

// Outbound command kinds.
const (
	KindQryRFIDSnapshot Kind = "QRY_RFID_SNAPSHOT"
	KindQryTempHum      Kind = "QRY_TEMP_HUM"
	KindQryDoorState    Kind = "QRY_DOOR_STATE"
	KindQryNoiseLevel   Kind = "QRY_NOISE_LEVEL"
	KindQryColor        Kind = "QRY_COLOR"
	KindQryDeviceInfo   Kind = "QRY_DEVICE_INFO"
	KindQryModuleInfo   Kind = "QRY_MODULE_INFO"
	KindQryDevModInfo   Kind = "QRY_DEV_MOD_INFO"
	KindSetColor        Kind = "SET_COLOR"
	KindClearAlarm      Kind = "CLEAR_ALARM"
)

// DeviceLevel reports whether events of this kind carry moduleIndex 0
// and moduleId "0" at the root.
func DeviceLevel(k Kind) bool {
	switch k {
	case KindHeartbeat, KindDeviceMetadata, KindMetaChanged,
		KindQryColorResp, KindSetColorResp, KindClearAlarmResp,
		KindDeviceStatus:
		return true
	}
	return false
}

// Sensor index normalization. RFID indices pass through unchanged
// (1..54); temperature/humidity and noise are shifted into disjoint
// ranges of the unified space.
const (
	tempHumIndexShift = 9  // source thIndex 1..6 -> 10..15
	noiseIndexShift   = 15 // source nsIndex 1..3 -> 16..18
)

// TempHumSensorIndex maps a source thIndex (1..6) to the unified
// sensor index space (10..15).
func TempHumSensorIndex(thIndex int) int { return thIndex + tempHumIndexShift }

// NoiseSensorIndex maps a source nsIndex (1..3) to the unified sensor
// index space (16..18).
func NoiseSensorIndex(nsIndex int) int { return nsIndex + noiseIndexShift }

// RFIDReading is one occupied U-position.
type RFIDReading struct {
	SensorIndex int    `json:"sensorIndex"`
	TagID       string `json:"tagId"`
	IsAlarm     bool   `json:"isAlarm"`
}

// TempHumReading is one temperature/humidity sensor. Nil means the
// sensor reported no value.
type TempHumReading struct {
	SensorIndex int      `json:"sensorIndex"`
	Temp        *float64 `json:"temp"`
	Hum         *float64 `json:"hum"`
}

// NoiseReading is one noise sensor.
type NoiseReading struct {
	SensorIndex int      `json:"sensorIndex"`
	Noise       *float64 `json:"noise"`
}

// DoorReading carries door states. Single-door modules use DoorState,
// dual-door modules use Door1State/Door2State. Nil means not reported.
type DoorReading struct {
	DoorState  *int `json:"doorState"`
	Door1State *int `json:"door1State"`
	Door2State *int `json:"door2State"`
}

// ModuleData is per-module content within an intermediate frame. Only
// the slices relevant to the frame kind are populated.
type ModuleData struct {
	ModuleIndex int
	ModuleID    string
	UTotal      int
	FwVer       string

	RFID    []RFIDReading
	TempHum []TempHumReading
	Noise   []NoiseReading
	Door    *DoorReading

	// Action is set for FamilyJ RFID_EVENT notifications
	// ("ATTACHED" or "DETACHED").
	Action string
}

// DeviceInfo is device-level metadata carried by info frames.
// Empty string means the frame did not carry the field.
type DeviceInfo struct {
	Model     string
	FwVer     string
	IP        string
	Netmask   string
	GatewayIP string
	MAC       string
}

// CommandEcho is the decoded body of a FamilyB 0xAA response or the
// FamilyJ result envelope.
type CommandEcho struct {
	ModuleIndex int
	Result      string // "Success" or "Failure"
	OriginalReq string // hex rendering of the echoed request
	ColorMap    []int  // QRY_COLOR_RESP only
}

// Frame is the Intermediate Form: the decoder output both families
// converge on. The normalizer never inspects source framing again.
type Frame struct {
	Family    Family
	DeviceID  string
	Kind      Kind
	MessageID string
	Topic     string

	Modules  []ModuleData
	Device   *DeviceInfo
	Response *CommandEcho

	// Raw preserves the source body for UNKNOWN frames.
	Raw []byte

	ReceivedAt time.Time
}

// Event is a normalized event: the push stream payload and the
// persistence input. Payload is always an ordered list of records
// whose concrete type depends on Kind.
type Event struct {
	DeviceID    string `json:"deviceId"`
	Family      Family `json:"deviceFamily"`
	Kind        Kind   `json:"kind"`
	MessageID   string `json:"messageId"`
	ModuleIndex int    `json:"moduleIndex"`
	ModuleID    string `json:"moduleId"`
	Payload     []any  `json:"payload"`

	// Device-level fields, set only on DEVICE_METADATA.
	IP        string `json:"ip,omitempty"`
	MAC       string `json:"mac,omitempty"`
	FwVer     string `json:"fwVer,omitempty"`
	Netmask   string `json:"netmask,omitempty"`
	GatewayIP string `json:"gatewayIp,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// HeartbeatRecord is one heartbeat slot.
type HeartbeatRecord struct {
	ModuleIndex int    `json:"moduleIndex"`
	ModuleID    string `json:"moduleId"`
	UTotal      int    `json:"uTotal"`
}

// RFID event actions.
const (
	ActionAttached = "ATTACHED"
	ActionDetached = "DETACHED"
	ActionAlarmOn  = "ALARM_ON"
	ActionAlarmOff = "ALARM_OFF"
)

// RFIDEventRecord is one derived attach/detach/alarm change.
type RFIDEventRecord struct {
	SensorIndex int    `json:"sensorIndex"`
	TagID       string `json:"tagId"`
	Action      string `json:"action"`
	IsAlarm     bool   `json:"isAlarm"`
}

// ActiveModule is one entry of a metadata entry's module list.
type ActiveModule struct {
	ModuleIndex int    `json:"moduleIndex"`
	ModuleID    string `json:"moduleId"`
	FwVer       string `json:"fwVer,omitempty"`
	UTotal      int    `json:"uTotal"`
}

// MetaChangeRecord is one human-readable topology change description.
type MetaChangeRecord struct {
	Description string `json:"description"`
}

// CommandResultRecord is the payload of a command response event.
type CommandResultRecord struct {
	ModuleIndex int    `json:"moduleIndex"`
	Result      string `json:"result"`
	OriginalReq string `json:"originalReq"`
	ColorMap    []int  `json:"colorMap,omitempty"`
}

// DeviceStatusRecord is the payload of a watchdog DEVICE_STATUS event.
type DeviceStatusRecord struct {
	ModuleIndex int    `json:"moduleIndex"`
	ModuleID    string `json:"moduleId"`
	IsOnline    bool   `json:"isOnline"`
}

// ColorAssignment pairs one U-position with a color code for SET_COLOR.
type ColorAssignment struct {
	SensorIndex int `json:"sensorIndex"`
	ColorCode   int `json:"colorCode"`
}

// CommandRequest is a normalized outbound command, built into a
// protocol frame by the command builder.
type CommandRequest struct {
	DeviceID    string            `json:"deviceId"`
	Family      Family            `json:"deviceFamily"`
	Kind        Kind              `json:"kind"`
	ModuleIndex int               `json:"moduleIndex,omitempty"`
	ModuleID    string            `json:"moduleId,omitempty"`
	SensorIndex int               `json:"sensorIndex,omitempty"`
	Colors      []ColorAssignment `json:"colors,omitempty"`

	// CommandID correlates the request with API responses and logs.
	CommandID string `json:"commandId,omitempty"`
}

// ModuleScoped reports whether a command kind addresses one module and
// therefore requires a module index.
func ModuleScoped(k Kind) bool {
	switch k {
	case KindQryRFIDSnapshot, KindQryTempHum, KindQryDoorState,
		KindQryNoiseLevel, KindQryColor, KindSetColor, KindClearAlarm:
		return true
	}
	return false
}
