package familyb

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

// Frame header bytes.
const (
	headerDoor       = 0xBA
	headerHeartbeat  = 0xCC
	headerHeartbeat2 = 0xCB
	headerSnapshot   = 0xBB
	headerInfo       = 0xEF
	headerResponse   = 0xAA

	infoDevice = 0x01
	infoModule = 0x02

	cmdSetColor   = 0xE1
	cmdClearAlarm = 0xE2
	cmdQryColor   = 0xE4

	resultSuccess = 0xA1
	resultFailure = 0xA0
)

const (
	messageIDLen = 4

	heartbeatSlots   = 10
	heartbeatSlotLen = 6
	heartbeatLen     = 1 + heartbeatSlots*heartbeatSlotLen + messageIDLen

	snapshotHeaderLen = 9 // header, moduleIndex, moduleId(4), reserved, uTotal, count
	snapshotItemLen   = 6 // uIndex, alarm, tagId(4)

	tempHumSensors = 6
	tempHumItemLen = 5 // addr, tInt, tFrac, hInt, hFrac
	tempHumLen     = 5 + tempHumSensors*tempHumItemLen + messageIDLen

	noiseSensors = 3
	noiseItemLen = 3 // addr, nInt, nFrac
	noiseLen     = 5 + noiseSensors*noiseItemLen + messageIDLen

	doorLen = 1 + 1 + 4 + 1 + messageIDLen

	deviceInfoLen = 2 + 2 + 4 + 4 + 4 + 4 + 6 + messageIDLen

	moduleInfoItemLen = 5 // moduleIndex, fwVer(4)

	responseMinLen = 1 + 4 + 1 + 2 + messageIDLen
)

// Decoder parses FamilyB binary frames into the intermediate form.
//
// The zero value is ready to use; Decoder carries no state.
type Decoder struct{}

// New creates a FamilyB decoder.
func New() *Decoder { return &Decoder{} }

// Family returns the protocol family this decoder serves.
func (d *Decoder) Family() model.Family { return model.FamilyB }

// Decode parses one raw frame.
//
// Message kind is identified by strict precedence: topic suffix first,
// then the leading header byte(s). The device identifier comes from the
// topic for uplinks and from the embedded device id for 0xAA command
// responses.
//
// Parameters:
//   - topic: Broker topic the frame arrived on
//   - payload: Raw frame bytes
//
// Returns:
//   - *model.Frame: Decoded intermediate form
//   - error: DecodeError describing the length or range violation
func (d *Decoder) Decode(topic string, payload []byte) (*model.Frame, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrBadFrame)
	}

	deviceID := topicDeviceID(topic)
	now := time.Now().UTC()

	switch {
	case strings.HasSuffix(topic, "/LabelState"):
		return d.decodeSnapshot(topic, deviceID, payload, now)
	case strings.HasSuffix(topic, "/TemHum"):
		return d.decodeTempHum(topic, deviceID, payload, now)
	case strings.HasSuffix(topic, "/Noise"):
		return d.decodeNoise(topic, deviceID, payload, now)
	}

	switch payload[0] {
	case headerDoor:
		return d.decodeDoor(topic, deviceID, payload, now)
	case headerHeartbeat, headerHeartbeat2:
		return d.decodeHeartbeat(topic, deviceID, payload, now)
	case headerSnapshot:
		return d.decodeSnapshot(topic, deviceID, payload, now)
	case headerInfo:
		if len(payload) < 2 {
			return nil, fmt.Errorf("%w: truncated info frame", ErrBadFrame)
		}
		switch payload[1] {
		case infoDevice:
			return d.decodeDeviceInfo(topic, deviceID, payload, now)
		case infoModule:
			return d.decodeModuleInfo(topic, deviceID, payload, now)
		}
		return nil, fmt.Errorf("%w: info subtype 0x%02X", ErrUnknownHeader, payload[1])
	case headerResponse:
		return d.decodeResponse(topic, payload, now)
	}

	return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownHeader, payload[0])
}

// decodeHeartbeat parses the fixed ten-slot heartbeat frame. Slots with
// a zero module id or an out-of-range index are skipped; a heartbeat
// with zero surviving slots is still a valid frame.
func (d *Decoder) decodeHeartbeat(topic, deviceID string, p []byte, now time.Time) (*model.Frame, error) {
	if len(p) != heartbeatLen {
		return nil, fmt.Errorf("%w: heartbeat length %d, want %d", ErrBadFrame, len(p), heartbeatLen)
	}

	modules := make([]model.ModuleData, 0, heartbeatSlots)
	for i := 0; i < heartbeatSlots; i++ {
		off := 1 + i*heartbeatSlotLen
		idx := int(p[off])
		id := binary.BigEndian.Uint32(p[off+1 : off+5])
		uTotal := int(p[off+5])

		if id == 0 || idx < 1 || idx > model.MaxModuleIndex(model.FamilyB) {
			continue
		}
		modules = append(modules, model.ModuleData{
			ModuleIndex: idx,
			ModuleID:    formatModuleID(id),
			UTotal:      uTotal,
		})
	}

	return &model.Frame{
		Family:     model.FamilyB,
		DeviceID:   deviceID,
		Kind:       model.KindHeartbeat,
		MessageID:  trailingMessageID(p),
		Topic:      topic,
		Modules:    modules,
		ReceivedAt: now,
	}, nil
}

// decodeSnapshot parses a full RFID inventory frame.
func (d *Decoder) decodeSnapshot(topic, deviceID string, p []byte, now time.Time) (*model.Frame, error) {
	if len(p) < snapshotHeaderLen+messageIDLen {
		return nil, fmt.Errorf("%w: snapshot length %d", ErrBadFrame, len(p))
	}

	count := int(p[8])
	want := snapshotHeaderLen + count*snapshotItemLen + messageIDLen
	if len(p) != want {
		return nil, fmt.Errorf("%w: snapshot length %d, want %d for count %d", ErrBadFrame, len(p), want, count)
	}

	readings := make([]model.RFIDReading, 0, count)
	for i := 0; i < count; i++ {
		off := snapshotHeaderLen + i*snapshotItemLen
		readings = append(readings, model.RFIDReading{
			SensorIndex: int(p[off]),
			IsAlarm:     p[off+1] != 0,
			TagID:       strings.ToUpper(hex.EncodeToString(p[off+2 : off+6])),
		})
	}

	return &model.Frame{
		Family:    model.FamilyB,
		DeviceID:  deviceID,
		Kind:      model.KindRFIDSnapshot,
		MessageID: trailingMessageID(p),
		Topic:     topic,
		Modules: []model.ModuleData{{
			ModuleIndex: int(p[1]),
			ModuleID:    formatModuleID(binary.BigEndian.Uint32(p[2:6])),
			UTotal:      int(p[7]),
			RFID:        readings,
		}},
		ReceivedAt: now,
	}, nil
}

// decodeTempHum parses the six-sensor temperature/humidity frame.
// Sensor addresses of zero mean an unpopulated slot and are skipped.
func (d *Decoder) decodeTempHum(topic, deviceID string, p []byte, now time.Time) (*model.Frame, error) {
	if len(p) != tempHumLen {
		return nil, fmt.Errorf("%w: temp/hum length %d, want %d", ErrBadFrame, len(p), tempHumLen)
	}

	readings := make([]model.TempHumReading, 0, tempHumSensors)
	for i := 0; i < tempHumSensors; i++ {
		off := 5 + i*tempHumItemLen
		addr := int(p[off])
		if addr == 0 {
			continue
		}
		if addr > tempHumSensors {
			return nil, fmt.Errorf("%w: temp/hum sensor address %d", ErrBadFrame, addr)
		}
		readings = append(readings, model.TempHumReading{
			SensorIndex: model.TempHumSensorIndex(addr),
			Temp:        fixedPoint(p[off+1], p[off+2]),
			Hum:         fixedPoint(p[off+3], p[off+4]),
		})
	}

	return &model.Frame{
		Family:    model.FamilyB,
		DeviceID:  deviceID,
		Kind:      model.KindTempHum,
		MessageID: trailingMessageID(p),
		Topic:     topic,
		Modules: []model.ModuleData{{
			ModuleIndex: int(p[0]),
			ModuleID:    formatModuleID(binary.BigEndian.Uint32(p[1:5])),
			TempHum:     readings,
		}},
		ReceivedAt: now,
	}, nil
}

// decodeNoise parses the three-sensor noise frame.
func (d *Decoder) decodeNoise(topic, deviceID string, p []byte, now time.Time) (*model.Frame, error) {
	if len(p) != noiseLen {
		return nil, fmt.Errorf("%w: noise length %d, want %d", ErrBadFrame, len(p), noiseLen)
	}

	readings := make([]model.NoiseReading, 0, noiseSensors)
	for i := 0; i < noiseSensors; i++ {
		off := 5 + i*noiseItemLen
		addr := int(p[off])
		if addr == 0 {
			continue
		}
		if addr > noiseSensors {
			return nil, fmt.Errorf("%w: noise sensor address %d", ErrBadFrame, addr)
		}
		readings = append(readings, model.NoiseReading{
			SensorIndex: model.NoiseSensorIndex(addr),
			Noise:       fixedPoint(p[off+1], p[off+2]),
		})
	}

	return &model.Frame{
		Family:    model.FamilyB,
		DeviceID:  deviceID,
		Kind:      model.KindNoiseLevel,
		MessageID: trailingMessageID(p),
		Topic:     topic,
		Modules: []model.ModuleData{{
			ModuleIndex: int(p[0]),
			ModuleID:    formatModuleID(binary.BigEndian.Uint32(p[1:5])),
			Noise:       readings,
		}},
		ReceivedAt: now,
	}, nil
}

// decodeDoor parses a single door state change frame.
func (d *Decoder) decodeDoor(topic, deviceID string, p []byte, now time.Time) (*model.Frame, error) {
	if len(p) != doorLen {
		return nil, fmt.Errorf("%w: door length %d, want %d", ErrBadFrame, len(p), doorLen)
	}

	state := int(p[6])
	return &model.Frame{
		Family:    model.FamilyB,
		DeviceID:  deviceID,
		Kind:      model.KindDoorState,
		MessageID: trailingMessageID(p),
		Topic:     topic,
		Modules: []model.ModuleData{{
			ModuleIndex: int(p[1]),
			ModuleID:    formatModuleID(binary.BigEndian.Uint32(p[2:6])),
			Door:        &model.DoorReading{DoorState: &state},
		}},
		ReceivedAt: now,
	}, nil
}

// decodeDeviceInfo parses the device network identity frame.
func (d *Decoder) decodeDeviceInfo(topic, deviceID string, p []byte, now time.Time) (*model.Frame, error) {
	if len(p) != deviceInfoLen {
		return nil, fmt.Errorf("%w: device info length %d, want %d", ErrBadFrame, len(p), deviceInfoLen)
	}

	return &model.Frame{
		Family:    model.FamilyB,
		DeviceID:  deviceID,
		Kind:      model.KindDeviceInfo,
		MessageID: trailingMessageID(p),
		Topic:     topic,
		Device: &model.DeviceInfo{
			Model:     strconv.Itoa(int(binary.BigEndian.Uint16(p[2:4]))),
			FwVer:     formatFwVer(p[4:8]),
			IP:        formatIP(p[8:12]),
			Netmask:   formatIP(p[12:16]),
			GatewayIP: formatIP(p[16:20]),
			MAC:       formatMAC(p[20:26]),
		},
		ReceivedAt: now,
	}, nil
}

// decodeModuleInfo parses the per-module firmware listing. The frame
// carries a variable number of five-byte entries.
func (d *Decoder) decodeModuleInfo(topic, deviceID string, p []byte, now time.Time) (*model.Frame, error) {
	body := len(p) - 2 - messageIDLen
	if body < 0 || body%moduleInfoItemLen != 0 {
		return nil, fmt.Errorf("%w: module info length %d", ErrBadFrame, len(p))
	}

	n := body / moduleInfoItemLen
	modules := make([]model.ModuleData, 0, n)
	for i := 0; i < n; i++ {
		off := 2 + i*moduleInfoItemLen
		modules = append(modules, model.ModuleData{
			ModuleIndex: int(p[off]),
			FwVer:       formatFwVer(p[off+1 : off+5]),
		})
	}

	return &model.Frame{
		Family:     model.FamilyB,
		DeviceID:   deviceID,
		Kind:       model.KindModuleInfo,
		MessageID:  trailingMessageID(p),
		Topic:      topic,
		Modules:    modules,
		ReceivedAt: now,
	}, nil
}

// decodeResponse parses a 0xAA command acknowledgement. The device id
// is embedded in the frame, not taken from the topic.
func (d *Decoder) decodeResponse(topic string, p []byte, now time.Time) (*model.Frame, error) {
	if len(p) < responseMinLen {
		return nil, fmt.Errorf("%w: response length %d", ErrBadFrame, len(p))
	}

	deviceID := strconv.FormatUint(uint64(binary.BigEndian.Uint32(p[1:5])), 10)

	result := "Failure"
	switch p[5] {
	case resultSuccess:
		result = "Success"
	case resultFailure:
	default:
		return nil, fmt.Errorf("%w: result byte 0x%02X", ErrBadFrame, p[5])
	}

	var kind model.Kind
	echo := &model.CommandEcho{Result: result}
	end := len(p) - messageIDLen

	switch p[6] {
	case cmdQryColor:
		kind = model.KindQryColorResp
		if end < 8 {
			return nil, fmt.Errorf("%w: color response too short", ErrBadFrame)
		}
		echo.OriginalReq = strings.ToUpper(hex.EncodeToString(p[6:8]))
		echo.ModuleIndex = int(p[7])
		colors := make([]int, 0, end-8)
		for _, b := range p[8:end] {
			colors = append(colors, int(b))
		}
		echo.ColorMap = colors
	case cmdSetColor, cmdClearAlarm:
		if p[6] == cmdSetColor {
			kind = model.KindSetColorResp
		} else {
			kind = model.KindClearAlarmResp
		}
		if end < 8 {
			return nil, fmt.Errorf("%w: response echo too short", ErrBadFrame)
		}
		echo.OriginalReq = strings.ToUpper(hex.EncodeToString(p[6:end]))
		echo.ModuleIndex = int(p[7])
	default:
		return nil, fmt.Errorf("%w: response command 0x%02X", ErrUnknownHeader, p[6])
	}

	return &model.Frame{
		Family:     model.FamilyB,
		DeviceID:   deviceID,
		Kind:       kind,
		MessageID:  trailingMessageID(p),
		Topic:      topic,
		Response:   echo,
		ReceivedAt: now,
	}, nil
}

// fixedPoint decodes one signed fixed-point sensor value. A pair of
// zero bytes means the sensor reported nothing. The high bit of the
// integer byte is the sign flag; the fraction byte is hundredths,
// applied in the signed direction.
func fixedPoint(intB, fracB byte) *float64 {
	if intB == 0 && fracB == 0 {
		return nil
	}

	v := float64(intB&0x7F) + float64(fracB)/100
	if intB&0x80 != 0 {
		v = -v
	}
	v = math.Round(v*100) / 100
	return &v
}

// formatModuleID renders the four-byte module identifier the way the
// devices print it: as a decimal number.
func formatModuleID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

// formatFwVer renders a four-byte firmware version as dotted decimal.
func formatFwVer(b []byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

// formatIP renders four bytes as a dotted IPv4 address.
func formatIP(b []byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

// formatMAC renders six bytes as a colon-separated MAC address.
func formatMAC(b []byte) string {
	parts := make([]string, len(b))
	for i, x := range b {
		parts[i] = fmt.Sprintf("%02X", x)
	}
	return strings.Join(parts, ":")
}

// trailingMessageID renders the big-endian message id from the last
// four bytes of the frame.
func trailingMessageID(p []byte) string {
	id := binary.BigEndian.Uint32(p[len(p)-messageIDLen:])
	return strconv.FormatUint(uint64(id), 10)
}

// topicDeviceID extracts the device id from the second topic segment
// of `{uploadRoot}/{deviceId}/...`.
func topicDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
