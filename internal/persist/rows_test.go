package persist

import (
	"strings"
	"testing"
	"time"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, int(500*time.Millisecond), time.UTC)

func f(v float64) *float64 { return &v }

func TestTempHumPivot(t *testing.T) {
	ev := model.Event{
		DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindTempHum,
		ModuleIndex: 1, ModuleID: "A", CreatedAt: now,
		Payload: []any{
			model.TempHumReading{SensorIndex: 10, Temp: f(25.5), Hum: f(60.0)},
			model.TempHumReading{SensorIndex: 15, Temp: f(26.0), Hum: f(65.0)},
		},
	}

	rw, ok := tempHumRow(ev, now)
	if !ok {
		t.Fatal("row not produced")
	}

	// args: device_id, family, module_index, module_id,
	// temp_index10..15, hum_index10..15, parse_at, update_at.
	temps := rw.args[4:10]
	hums := rw.args[10:16]

	if temps[0] != 25.5 || temps[5] != 26.0 {
		t.Errorf("temp columns = %v", temps)
	}
	for i := 1; i <= 4; i++ {
		if temps[i] != nil {
			t.Errorf("temp_index%d = %v, want NULL", 10+i, temps[i])
		}
	}
	if hums[0] != 60.0 || hums[5] != 65.0 {
		t.Errorf("hum columns = %v", hums)
	}
	for i := 1; i <= 4; i++ {
		if hums[i] != nil {
			t.Errorf("hum_index%d = %v, want NULL", 10+i, hums[i])
		}
	}
}

func TestTempHumEmptyPayloadProducesNoRow(t *testing.T) {
	ev := model.Event{
		DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindTempHum,
		ModuleIndex: 1, ModuleID: "A", CreatedAt: now,
		Payload: []any{},
	}
	if _, ok := tempHumRow(ev, now); ok {
		t.Error("row produced for empty payload")
	}
}

func TestTempHumOutOfRangeIndexIgnored(t *testing.T) {
	ev := model.Event{
		DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindTempHum,
		ModuleIndex: 1, ModuleID: "A", CreatedAt: now,
		Payload: []any{model.TempHumReading{SensorIndex: 3, Temp: f(1)}},
	}
	if _, ok := tempHumRow(ev, now); ok {
		t.Error("row produced for out-of-range sensor index")
	}
}

func TestNoisePivot(t *testing.T) {
	ev := model.Event{
		DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindNoiseLevel,
		ModuleIndex: 2, ModuleID: "B", CreatedAt: now,
		Payload: []any{model.NoiseReading{SensorIndex: 17, Noise: f(45.5)}},
	}

	rw, ok := noiseRow(ev, now)
	if !ok {
		t.Fatal("row not produced")
	}

	noises := rw.args[4:7]
	if noises[0] != nil || noises[1] != 45.5 || noises[2] != nil {
		t.Errorf("noise columns = %v, want only noise_index17 set", noises)
	}
}

func TestRFIDEventRows(t *testing.T) {
	ev := model.Event{
		DeviceID: "GW-1", Family: model.FamilyB, Kind: model.KindRFIDEvent,
		ModuleIndex: 1, ModuleID: "A", MessageID: "42", CreatedAt: now,
		Payload: []any{
			model.RFIDEventRecord{SensorIndex: 3, TagID: "AABBCCDD", Action: model.ActionAttached},
			model.RFIDEventRecord{SensorIndex: 5, TagID: "11223344", Action: model.ActionAlarmOn, IsAlarm: true},
		},
	}

	rows := rfidEventRows(ev, now)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].args[7] != model.ActionAttached || rows[0].args[8] != 0 {
		t.Errorf("row[0] action/alarm = %v/%v", rows[0].args[7], rows[0].args[8])
	}
	if rows[1].args[7] != model.ActionAlarmOn || rows[1].args[8] != 1 {
		t.Errorf("row[1] action/alarm = %v/%v", rows[1].args[7], rows[1].args[8])
	}
}

func TestMetaDataRowIsUpsert(t *testing.T) {
	ev := model.Event{
		DeviceID: "GW-1", Family: model.FamilyJ, Kind: model.KindDeviceMetadata,
		IP: "10.0.0.5", MAC: "AA:BB", CreatedAt: now,
		Payload: []any{model.ActiveModule{ModuleIndex: 1, ModuleID: "A", UTotal: 42}},
	}

	rw := metaDataRow(ev, now)
	if !strings.Contains(rw.query, "ON CONFLICT(device_id) DO UPDATE") {
		t.Error("meta_data row is not an upsert")
	}
	modules := rw.args[7].(string)
	if !strings.Contains(modules, `"moduleId":"A"`) {
		t.Errorf("active_modules JSON = %s", modules)
	}
}

func TestDoorRowNullStates(t *testing.T) {
	one := 1
	ev := model.Event{
		DeviceID: "GW-J-1", Family: model.FamilyJ, Kind: model.KindDoorState,
		ModuleIndex: 3, ModuleID: "C", MessageID: "6", CreatedAt: now,
		Payload: []any{model.DoorReading{Door1State: &one}},
	}

	rw, ok := doorRow(ev, now)
	if !ok {
		t.Fatal("row not produced")
	}
	if rw.args[5] != nil {
		t.Errorf("door_state = %v, want NULL", rw.args[5])
	}
	if rw.args[6] != 1 {
		t.Errorf("door1_state = %v, want 1", rw.args[6])
	}
	if rw.args[7] != nil {
		t.Errorf("door2_state = %v, want NULL", rw.args[7])
	}
}

func TestTimestampFormat(t *testing.T) {
	got := ts(now)
	if got != "2026-03-01T12:00:00.500Z" {
		t.Errorf("ts() = %q", got)
	}
}

func TestRouteSkipsUnpersistedKinds(t *testing.T) {
	r := NewRouter(nil, nil, Options{}, nil)

	r.route(model.Event{Kind: model.KindUnknown, Payload: []any{}})
	r.route(model.Event{Kind: model.KindDeviceStatus, Payload: []any{}})

	if r.pending != 0 {
		t.Errorf("pending = %d, want 0", r.pending)
	}
}
