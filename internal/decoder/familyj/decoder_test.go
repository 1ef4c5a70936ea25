package familyj

import (
	"errors"
	"testing"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

func TestDecodeHeartbeat(t *testing.T) {
	payload := []byte(`{
		"msg_type": "heart_beat_req",
		"uuid_number": 123456,
		"data": [
			{"module_type": "mt_gw", "module_sn": "GW-J-1"},
			{"module_index": 1, "module_sn": "MOD-A", "module_u_num": 42},
			{"module_index": 2, "module_sn": "MOD-B", "module_u_num": 48}
		]
	}`)

	got, err := New().Decode("JUpload/GW-J-1/up", payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got.Kind != model.KindHeartbeat {
		t.Errorf("Kind = %v, want HEARTBEAT", got.Kind)
	}
	if got.DeviceID != "GW-J-1" {
		t.Errorf("DeviceID = %q, want GW-J-1 (from mt_gw entry)", got.DeviceID)
	}
	if got.MessageID != "123456" {
		t.Errorf("MessageID = %q, want 123456", got.MessageID)
	}
	if len(got.Modules) != 2 {
		t.Fatalf("len(Modules) = %d, want 2 (mt_gw skipped)", len(got.Modules))
	}
	if got.Modules[0].ModuleID != "MOD-A" || got.Modules[0].UTotal != 42 {
		t.Errorf("Modules[0] = %+v", got.Modules[0])
	}
}

func TestDecodeSnapshotDropsEmptyTags(t *testing.T) {
	payload := []byte(`{
		"msg_type": "u_state_resp",
		"gateway_sn": "GW-J-2",
		"uuid_number": "abc-1",
		"data": [
			{"module_index": 1, "module_sn": "MOD-A", "u_index": 3, "tag_code": "AABBCCDD", "warning": 0},
			{"module_index": 1, "module_sn": "MOD-A", "u_index": 4, "tag_code": "", "warning": 0},
			{"module_index": 1, "module_sn": "MOD-A", "u_index": 5, "tag_code": null, "warning": 1},
			{"module_index": 1, "module_sn": "MOD-A", "u_index": 6, "tag_code": "11223344", "warning": 1}
		]
	}`)

	got, err := New().Decode("JUpload/GW-J-2/up", payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got.DeviceID != "GW-J-2" {
		t.Errorf("DeviceID = %q, want GW-J-2", got.DeviceID)
	}
	if len(got.Modules) != 1 {
		t.Fatalf("len(Modules) = %d, want 1", len(got.Modules))
	}
	rfid := got.Modules[0].RFID
	if len(rfid) != 2 {
		t.Fatalf("len(RFID) = %d, want 2 (empty tags dropped)", len(rfid))
	}
	if rfid[0].SensorIndex != 3 || rfid[0].TagID != "AABBCCDD" || rfid[0].IsAlarm {
		t.Errorf("RFID[0] = %+v", rfid[0])
	}
	if rfid[1].SensorIndex != 6 || !rfid[1].IsAlarm {
		t.Errorf("RFID[1] = %+v", rfid[1])
	}
}

func TestDecodeRFIDEventActions(t *testing.T) {
	tests := []struct {
		name     string
		newState int
		oldState int
		want     string
	}{
		{"attach", 1, 0, model.ActionAttached},
		{"detach", 0, 1, model.ActionDetached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(`{
				"msg_type": "u_state_changed_notify_req",
				"gateway_sn": "GW-J-1",
				"uuid_number": 9,
				"data": [{"module_index": 2, "extend_module_sn": "MOD-B", "u_index": 7,
					"tag_code": "CAFEBABE", "new_state": ` + itoa(tt.newState) + `, "old_state": ` + itoa(tt.oldState) + `}]
			}`)

			got, err := New().Decode("JUpload/GW-J-1/up", payload)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.Kind != model.KindRFIDEvent {
				t.Errorf("Kind = %v, want RFID_EVENT", got.Kind)
			}
			mod := got.Modules[0]
			if mod.Action != tt.want {
				t.Errorf("Action = %q, want %q", mod.Action, tt.want)
			}
			if mod.ModuleID != "MOD-B" {
				t.Errorf("ModuleID = %q, want MOD-B", mod.ModuleID)
			}
		})
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	return "1"
}

func TestDecodeTempHumZeroCollapsesToNull(t *testing.T) {
	payload := []byte(`{
		"msg_type": "temper_humidity_resp",
		"gateway_sn": "GW-J-1",
		"uuid_number": 5,
		"data": [
			{"module_index": 1, "temper_position": 1, "temper_swot": 25.5, "hygrometer_swot": 60},
			{"module_index": 1, "temper_position": 2, "temper_swot": 0, "hygrometer_swot": 55}
		]
	}`)

	got, err := New().Decode("JUpload/GW-J-1/up", payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	readings := got.Modules[0].TempHum
	if len(readings) != 2 {
		t.Fatalf("len(TempHum) = %d, want 2", len(readings))
	}
	if readings[0].SensorIndex != 10 {
		t.Errorf("SensorIndex = %d, want 10", readings[0].SensorIndex)
	}
	if readings[0].Temp == nil || *readings[0].Temp != 25.5 {
		t.Errorf("Temp = %v, want 25.5", readings[0].Temp)
	}
	if readings[1].Temp != nil {
		t.Errorf("zero temper_swot should collapse to nil, got %v", *readings[1].Temp)
	}
	if readings[1].Hum == nil || *readings[1].Hum != 55 {
		t.Errorf("Hum = %v, want 55", readings[1].Hum)
	}
}

func TestDecodeDoorDualState(t *testing.T) {
	payload := []byte(`{
		"msg_type": "door_state_changed_notify_req",
		"gateway_sn": "GW-J-1",
		"uuid_number": 6,
		"data": [{"index": 3, "module_sn": "MOD-C", "new_state1": 1, "new_state2": 0}]
	}`)

	got, err := New().Decode("JUpload/GW-J-1/up", payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	door := got.Modules[0].Door
	if door == nil {
		t.Fatal("Door is nil")
	}
	if door.DoorState != nil {
		t.Errorf("DoorState = %v, want nil for dual-door", *door.DoorState)
	}
	if door.Door1State == nil || *door.Door1State != 1 {
		t.Errorf("Door1State = %v, want 1", door.Door1State)
	}
	if door.Door2State == nil || *door.Door2State != 0 {
		t.Errorf("Door2State = %v, want 0", door.Door2State)
	}
}

func TestDecodeDevModInfo(t *testing.T) {
	payload := []byte(`{
		"msg_type": "devies_init_req",
		"gateway_sn": "GW-J-1",
		"gateway_ip": "10.0.0.5",
		"gateway_mac": "AA:BB:CC:DD:EE:FF",
		"uuid_number": 7,
		"data": [
			{"module_index": 1, "module_sn": "MOD-A", "module_sw_version": "2.1.0", "module_u_num": 42}
		]
	}`)

	got, err := New().Decode("JUpload/GW-J-1/up", payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got.Kind != model.KindDevModInfo {
		t.Errorf("Kind = %v, want DEV_MOD_INFO", got.Kind)
	}
	if got.Device == nil || got.Device.IP != "10.0.0.5" || got.Device.MAC != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Device = %+v", got.Device)
	}
	if len(got.Modules) != 1 || got.Modules[0].FwVer != "2.1.0" {
		t.Errorf("Modules = %+v", got.Modules)
	}
}

func TestDecodeUnknownMsgType(t *testing.T) {
	payload := []byte(`{"msg_type": "firmware_push_notify", "gateway_sn": "GW-J-9", "uuid_number": 1}`)

	got, err := New().Decode("JUpload/GW-J-9/up", payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got.Kind != model.KindUnknown {
		t.Errorf("Kind = %v, want UNKNOWN", got.Kind)
	}
	if len(got.Raw) == 0 {
		t.Error("Raw body not preserved")
	}
	if got.DeviceID != "GW-J-9" {
		t.Errorf("DeviceID = %q, want GW-J-9", got.DeviceID)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := New().Decode("JUpload/GW-J-1/up", []byte(`{not json`))
	if !errors.Is(err, ErrBadJSON) {
		t.Errorf("error = %v, want ErrBadJSON", err)
	}
}

func TestDecodeMissingDeviceID(t *testing.T) {
	_, err := New().Decode("JUpload/x/up", []byte(`{"msg_type": "u_state_resp", "uuid_number": 1, "data": []}`))
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("error = %v, want ErrMissingField", err)
	}
}

func TestMessageIDCoercion(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"number", `{"msg_type": "heart_beat_req", "gateway_sn": "G", "uuid_number": 42, "data": []}`, "42"},
		{"string", `{"msg_type": "heart_beat_req", "gateway_sn": "G", "uuid_number": "a-b-c", "data": []}`, "a-b-c"},
		{"absent", `{"msg_type": "heart_beat_req", "gateway_sn": "G", "data": []}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Decode("JUpload/G/up", []byte(tt.payload))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.MessageID != tt.want {
				t.Errorf("MessageID = %q, want %q", got.MessageID, tt.want)
			}
		})
	}
}
