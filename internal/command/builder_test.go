package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

func TestBuildFamilyBFrames(t *testing.T) {
	tests := []struct {
		name string
		cmd  model.CommandRequest
		want []byte
	}{
		{
			"query rfid snapshot",
			model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindQryRFIDSnapshot, ModuleIndex: 2},
			[]byte{0xE9, 0x01, 2},
		},
		{
			"query temp hum",
			model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindQryTempHum, ModuleIndex: 1},
			[]byte{0xE9, 0x02, 1},
		},
		{
			"query door state",
			model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindQryDoorState, ModuleIndex: 3},
			[]byte{0xE9, 0x03, 3},
		},
		{
			"query noise",
			model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindQryNoiseLevel, ModuleIndex: 1},
			[]byte{0xE9, 0x04, 1},
		},
		{
			"query device info",
			model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindQryDeviceInfo},
			[]byte{0xEF, 0x01, 0x00},
		},
		{
			"query module info",
			model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindQryModuleInfo},
			[]byte{0xEF, 0x02, 0x00},
		},
		{
			"query color",
			model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindQryColor, ModuleIndex: 4},
			[]byte{0xE4, 4},
		},
		{
			"clear alarm",
			model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindClearAlarm, ModuleIndex: 1, SensorIndex: 12},
			[]byte{0xE2, 1, 12},
		},
		{
			"set color",
			model.CommandRequest{
				DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindSetColor, ModuleIndex: 2,
				Colors: []model.ColorAssignment{{SensorIndex: 3, ColorCode: 1}, {SensorIndex: 4, ColorCode: 5}},
			},
			[]byte{0xE1, 2, 3, 1, 4, 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Build(tt.cmd)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Build() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestBuildFamilyJSetColor(t *testing.T) {
	payload, err := Build(model.CommandRequest{
		DeviceID: "GW-J-1", Family: model.FamilyJ, Kind: model.KindSetColor, ModuleIndex: 2,
		Colors: []model.ColorAssignment{{SensorIndex: 7, ColorCode: 3}},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var env map[string]any
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if env["msg_type"] != "set_module_property_req" {
		t.Errorf("msg_type = %v", env["msg_type"])
	}
	if env["set_property_type"] != float64(8001) {
		t.Errorf("set_property_type = %v, want 8001", env["set_property_type"])
	}
	data := env["data"].([]any)[0].(map[string]any)
	if data["host_gateway_port_index"] != float64(2) {
		t.Errorf("host_gateway_port_index = %v", data["host_gateway_port_index"])
	}
	colors := data["u_color_data"].([]any)[0].(map[string]any)
	if colors["u_index"] != float64(7) || colors["color_code"] != float64(3) {
		t.Errorf("u_color_data = %v", colors)
	}
}

func TestBuildFamilyJClearAlarm(t *testing.T) {
	payload, err := Build(model.CommandRequest{
		DeviceID: "GW-J-1", Family: model.FamilyJ, Kind: model.KindClearAlarm, ModuleIndex: 3, SensorIndex: 9,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var env map[string]any
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if env["msg_type"] != "clear_u_warning" {
		t.Errorf("msg_type = %v", env["msg_type"])
	}
	data := env["data"].([]any)[0].(map[string]any)
	if data["index"] != float64(3) {
		t.Errorf("index = %v", data["index"])
	}
	warnings := data["warning_data"].([]any)
	if len(warnings) != 1 || warnings[0] != float64(9) {
		t.Errorf("warning_data = %v", warnings)
	}
}

func TestBuildFamilyJSnapshotQueryRequiresModuleID(t *testing.T) {
	_, err := Build(model.CommandRequest{
		DeviceID: "GW-J-1", Family: model.FamilyJ, Kind: model.KindQryRFIDSnapshot, ModuleIndex: 1,
	})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("error = %v, want ErrMissingField", err)
	}

	payload, err := Build(model.CommandRequest{
		DeviceID: "GW-J-1", Family: model.FamilyJ, Kind: model.KindQryRFIDSnapshot, ModuleIndex: 1, ModuleID: "MOD-A",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var env map[string]any
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if env["msg_type"] != "u_state_req" {
		t.Errorf("msg_type = %v", env["msg_type"])
	}
	data := env["data"].([]any)[0].(map[string]any)
	if data["extend_module_sn"] != "MOD-A" {
		t.Errorf("extend_module_sn = %v", data["extend_module_sn"])
	}
	if v, present := data["u_index_list"]; !present || v != nil {
		t.Errorf("u_index_list = %v, want explicit null", v)
	}
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name string
		cmd  model.CommandRequest
	}{
		{"missing device id", model.CommandRequest{Family: model.FamilyB, Kind: model.KindQryTempHum, ModuleIndex: 1}},
		{"missing module index", model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindQryTempHum}},
		{"module index out of range", model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindQryTempHum, ModuleIndex: 6}},
		{"set color without colors", model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindSetColor, ModuleIndex: 1}},
		{"clear alarm without sensor", model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindClearAlarm, ModuleIndex: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(tt.cmd); !errors.Is(err, ErrMissingField) {
				t.Errorf("error = %v, want ErrMissingField", err)
			}
		})
	}
}

func TestBuildUnsupportedKind(t *testing.T) {
	_, err := Build(model.CommandRequest{DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindHeartbeat})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}
