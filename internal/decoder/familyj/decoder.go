package familyj

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

// Decoder parses FamilyJ JSON envelopes into the intermediate form.
//
// The zero value is ready to use; Decoder carries no state.
type Decoder struct{}

// New creates a FamilyJ decoder.
func New() *Decoder { return &Decoder{} }

// Family returns the protocol family this decoder serves.
func (d *Decoder) Family() model.Family { return model.FamilyJ }

// msgTypeKinds maps the msg_type discriminator to frame kinds.
// Misspellings ("devies", "nofity") are part of the wire protocol.
var msgTypeKinds = map[string]model.Kind{
	"heart_beat_req":                        model.KindHeartbeat,
	"u_state_resp":                          model.KindRFIDSnapshot,
	"u_state_changed_notify_req":            model.KindRFIDEvent,
	"temper_humidity_exception_nofity_req":  model.KindTempHum,
	"temper_humidity_resp":                  model.KindTempHum,
	"door_state_changed_notify_req":         model.KindDoorState,
	"door_state_resp":                       model.KindDoorState,
	"devies_init_req":                       model.KindDevModInfo,
	"devices_changed_req":                   model.KindUTotalChanged,
	"u_color":                               model.KindQryColorResp,
	"set_module_property_result_req":        model.KindSetColorResp,
	"clear_u_warning":                       model.KindClearAlarmResp,
}

// Decode parses one JSON envelope.
//
// Unknown msg_type values are not an error: they produce a frame of
// kind UNKNOWN with the raw body preserved.
//
// Parameters:
//   - topic: Broker topic the message arrived on
//   - payload: UTF-8 JSON text
//
// Returns:
//   - *model.Frame: Decoded intermediate form
//   - error: DecodeError when the JSON does not parse or required
//     identity fields are missing
func (d *Decoder) Decode(topic string, payload []byte) (*model.Frame, error) {
	var env map[string]any
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadJSON, err)
	}

	msgType := getString(env, "msg_type")
	kind, known := msgTypeKinds[msgType]
	now := time.Now().UTC()

	frame := &model.Frame{
		Family:     model.FamilyJ,
		Kind:       kind,
		MessageID:  messageID(env),
		Topic:      topic,
		ReceivedAt: now,
	}

	if !known {
		frame.Kind = model.KindUnknown
		frame.Raw = append([]byte(nil), payload...)
		frame.DeviceID = deviceID(env, nil)
		return frame, nil
	}

	data := getArray(env, "data")
	frame.DeviceID = deviceID(env, data)
	if frame.DeviceID == "" {
		return nil, fmt.Errorf("%w: no device identifier in %s", ErrMissingField, msgType)
	}

	switch kind {
	case model.KindHeartbeat:
		frame.Modules = decodeHeartbeat(data)
	case model.KindRFIDSnapshot:
		frame.Modules = decodeSnapshot(data)
	case model.KindRFIDEvent:
		frame.Modules = decodeRFIDEvent(data)
	case model.KindTempHum:
		frame.Modules = decodeTempHum(data)
	case model.KindDoorState:
		frame.Modules = decodeDoor(data)
	case model.KindDevModInfo:
		frame.Device = decodeDevice(env)
		frame.Modules = decodeModuleList(data)
	case model.KindUTotalChanged:
		frame.Modules = decodeModuleList(data)
	case model.KindQryColorResp:
		frame.Response = decodeColorResp(env, data)
	case model.KindSetColorResp, model.KindClearAlarmResp:
		frame.Response = decodeResult(env, data)
	}

	return frame, nil
}

// deviceID picks the gateway identifier. Heartbeats identify the
// gateway through its own entry in the module list (module_type
// "mt_gw"); everything else carries a device field on the envelope.
func deviceID(env map[string]any, data []map[string]any) string {
	for _, item := range data {
		if getString(item, "module_type") == "mt_gw" {
			if sn := getString(item, "module_sn"); sn != "" {
				return sn
			}
		}
	}
	return getString(env, "gateway_sn", "gateway_id", "device_id", "dev_id", "sn")
}

// decodeHeartbeat extracts the module presence list. The gateway's own
// mt_gw entry is identity, not a module, and is skipped.
func decodeHeartbeat(data []map[string]any) []model.ModuleData {
	modules := make([]model.ModuleData, 0, len(data))
	for _, item := range data {
		if getString(item, "module_type") == "mt_gw" {
			continue
		}
		idx, ok := getInt(item, "module_index", "host_gateway_port_index", "index")
		if !ok {
			continue
		}
		modules = append(modules, model.ModuleData{
			ModuleIndex: idx,
			ModuleID:    getString(item, "module_sn", "extend_module_sn", "module_id"),
			UTotal:      intOrZero(item, "module_u_num"),
		})
	}
	return modules
}

// decodeSnapshot groups flat U-position records by module. Records
// whose tag_code is null or empty are occupied-slot noise and dropped.
func decodeSnapshot(data []map[string]any) []model.ModuleData {
	return groupByModule(data, func(mod *model.ModuleData, item map[string]any) {
		uIndex, ok := getInt(item, "u_index")
		if !ok {
			return
		}
		tagID := getString(item, "tag_code")
		if tagID == "" {
			return
		}
		mod.RFID = append(mod.RFID, model.RFIDReading{
			SensorIndex: uIndex,
			TagID:       tagID,
			IsAlarm:     intOrZero(item, "warning") == 1,
		})
	})
}

// decodeRFIDEvent extracts attach/detach notifications. The action is
// derived from the state transition.
func decodeRFIDEvent(data []map[string]any) []model.ModuleData {
	return groupByModule(data, func(mod *model.ModuleData, item map[string]any) {
		uIndex, ok := getInt(item, "u_index")
		if !ok {
			return
		}
		newState := intOrZero(item, "new_state")
		oldState := intOrZero(item, "old_state")
		switch {
		case newState == 1 && oldState == 0:
			mod.Action = model.ActionAttached
		case newState == 0 && oldState == 1:
			mod.Action = model.ActionDetached
		}
		mod.RFID = append(mod.RFID, model.RFIDReading{
			SensorIndex: uIndex,
			TagID:       getString(item, "tag_code"),
			IsAlarm:     intOrZero(item, "warning") == 1,
		})
	})
}

// decodeTempHum groups sensor records by module, applying the unified
// sensor index shift. A raw zero reading collapses to null.
func decodeTempHum(data []map[string]any) []model.ModuleData {
	return groupByModule(data, func(mod *model.ModuleData, item map[string]any) {
		pos, ok := getInt(item, "temper_position")
		if !ok {
			return
		}
		mod.TempHum = append(mod.TempHum, model.TempHumReading{
			SensorIndex: model.TempHumSensorIndex(pos),
			Temp:        nonZeroFloat(item, "temper_swot"),
			Hum:         nonZeroFloat(item, "hygrometer_swot"),
		})
	})
}

// decodeDoor extracts door states. Single-door modules carry
// new_state; dual-door modules carry new_state1/new_state2.
func decodeDoor(data []map[string]any) []model.ModuleData {
	return groupByModule(data, func(mod *model.ModuleData, item map[string]any) {
		door := &model.DoorReading{}
		if v, ok := getInt(item, "new_state"); ok {
			door.DoorState = &v
		}
		if v, ok := getInt(item, "new_state1"); ok {
			door.Door1State = &v
		}
		if v, ok := getInt(item, "new_state2"); ok {
			door.Door2State = &v
		}
		mod.Door = door
	})
}

// decodeDevice extracts gateway-level network identity.
func decodeDevice(env map[string]any) *model.DeviceInfo {
	dev := &model.DeviceInfo{
		IP:    getString(env, "gateway_ip"),
		MAC:   getString(env, "gateway_mac"),
		FwVer: getString(env, "gateway_sw_version", "version"),
	}
	if dev.IP == "" && dev.MAC == "" && dev.FwVer == "" {
		return nil
	}
	return dev
}

// decodeModuleList extracts per-module metadata entries.
func decodeModuleList(data []map[string]any) []model.ModuleData {
	modules := make([]model.ModuleData, 0, len(data))
	for _, item := range data {
		if getString(item, "module_type") == "mt_gw" {
			continue
		}
		idx, ok := getInt(item, "module_index", "host_gateway_port_index", "index")
		if !ok {
			continue
		}
		modules = append(modules, model.ModuleData{
			ModuleIndex: idx,
			ModuleID:    getString(item, "module_sn", "extend_module_sn", "module_id"),
			FwVer:       getString(item, "module_sw_version"),
			UTotal:      intOrZero(item, "module_u_num"),
		})
	}
	return modules
}

// decodeColorResp extracts the per-position color listing.
func decodeColorResp(env map[string]any, data []map[string]any) *model.CommandEcho {
	echo := &model.CommandEcho{Result: resultString(env)}
	if len(data) == 0 {
		return echo
	}

	item := data[0]
	if idx, ok := getInt(item, "host_gateway_port_index", "module_index", "index"); ok {
		echo.ModuleIndex = idx
	}
	for _, c := range getArray(item, "u_color_data") {
		code, ok := getInt(c, "code", "color_code")
		if !ok {
			continue
		}
		echo.ColorMap = append(echo.ColorMap, code)
	}
	return echo
}

// decodeResult extracts a bare success/failure acknowledgement.
func decodeResult(env map[string]any, data []map[string]any) *model.CommandEcho {
	echo := &model.CommandEcho{Result: resultString(env)}
	if len(data) > 0 {
		if idx, ok := getInt(data[0], "host_gateway_port_index", "module_index", "index"); ok {
			echo.ModuleIndex = idx
		}
	}
	return echo
}

// resultString maps the numeric result field: zero is success.
func resultString(env map[string]any) string {
	if intOrZero(env, "result") == 0 {
		return "Success"
	}
	return "Failure"
}

// groupByModule folds a flat record list into per-module entries,
// ordered by module index. Records without a module index are dropped.
func groupByModule(data []map[string]any, apply func(*model.ModuleData, map[string]any)) []model.ModuleData {
	byIndex := make(map[int]*model.ModuleData)
	for _, item := range data {
		idx, ok := getInt(item, "module_index", "host_gateway_port_index", "index")
		if !ok {
			continue
		}
		mod, exists := byIndex[idx]
		if !exists {
			mod = &model.ModuleData{ModuleIndex: idx}
			byIndex[idx] = mod
		}
		if id := getString(item, "module_sn", "extend_module_sn", "module_id"); id != "" {
			mod.ModuleID = id
		}
		if u := intOrZero(item, "module_u_num"); u != 0 {
			mod.UTotal = u
		}
		apply(mod, item)
	}

	indices := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	modules := make([]model.ModuleData, 0, len(indices))
	for _, idx := range indices {
		modules = append(modules, *byIndex[idx])
	}
	return modules
}
