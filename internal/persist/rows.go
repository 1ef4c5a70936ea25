package persist

import (
	"encoding/json"
	"time"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

// Target table names.
const (
	tableHeartbeat    = "heartbeat"
	tableRFIDSnapshot = "rfid_snapshot"
	tableRFIDEvent    = "rfid_event"
	tableTempHum      = "temp_hum"
	tableNoiseLevel   = "noise_level"
	tableDoorEvent    = "door_event"
	tableMetaData     = "meta_data"
	tableTopChange    = "topchange_event"
	tableCmdResult    = "cmd_result"
)

// tsLayout renders UTC instants with millisecond precision.
const tsLayout = "2006-01-02T15:04:05.000Z"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func heartbeatRow(ev model.Event, now time.Time) row {
	payload, _ := json.Marshal(ev.Payload)
	return row{
		query: `INSERT INTO heartbeat (device_id, device_family, message_id, payload, parse_at, update_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
		args: []any{ev.DeviceID, string(ev.Family), ev.MessageID, string(payload), ts(ev.CreatedAt), ts(now)},
	}
}

func snapshotRow(ev model.Event, now time.Time) row {
	payload, _ := json.Marshal(ev.Payload)
	return row{
		query: `INSERT INTO rfid_snapshot (device_id, device_family, module_index, module_id, message_id, payload, parse_at, update_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		args: []any{ev.DeviceID, string(ev.Family), ev.ModuleIndex, ev.ModuleID, ev.MessageID, string(payload), ts(ev.CreatedAt), ts(now)},
	}
}

func rfidEventRows(ev model.Event, now time.Time) []row {
	rows := make([]row, 0, len(ev.Payload))
	for _, item := range ev.Payload {
		rec, ok := item.(model.RFIDEventRecord)
		if !ok {
			continue
		}
		rows = append(rows, row{
			query: `INSERT INTO rfid_event (device_id, device_family, module_index, module_id, message_id, sensor_index, tag_id, action, is_alarm, parse_at, update_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args: []any{ev.DeviceID, string(ev.Family), ev.ModuleIndex, ev.ModuleID, ev.MessageID,
				rec.SensorIndex, rec.TagID, rec.Action, boolInt(rec.IsAlarm), ts(ev.CreatedAt), ts(now)},
		})
	}
	return rows
}

// tempHumRow pivots the per-sensor list into fixed columns. Only
// columns whose sensor index appears are set; a row without any
// settable column is not written.
func tempHumRow(ev model.Event, now time.Time) (row, bool) {
	temps := make(map[int]*float64, 6)
	hums := make(map[int]*float64, 6)
	found := false
	for _, item := range ev.Payload {
		rec, ok := item.(model.TempHumReading)
		if !ok || rec.SensorIndex < 10 || rec.SensorIndex > 15 {
			continue
		}
		temps[rec.SensorIndex] = rec.Temp
		hums[rec.SensorIndex] = rec.Hum
		found = true
	}
	if !found {
		return row{}, false
	}

	args := []any{ev.DeviceID, string(ev.Family), ev.ModuleIndex, ev.ModuleID}
	for i := 10; i <= 15; i++ {
		args = append(args, nullable(temps[i]))
	}
	for i := 10; i <= 15; i++ {
		args = append(args, nullable(hums[i]))
	}
	args = append(args, ts(ev.CreatedAt), ts(now))

	return row{
		query: `INSERT INTO temp_hum (device_id, device_family, module_index, module_id,
			temp_index10, temp_index11, temp_index12, temp_index13, temp_index14, temp_index15,
			hum_index10, hum_index11, hum_index12, hum_index13, hum_index14, hum_index15,
			parse_at, update_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args: args,
	}, true
}

func noiseRow(ev model.Event, now time.Time) (row, bool) {
	noises := make(map[int]*float64, 3)
	found := false
	for _, item := range ev.Payload {
		rec, ok := item.(model.NoiseReading)
		if !ok || rec.SensorIndex < 16 || rec.SensorIndex > 18 {
			continue
		}
		noises[rec.SensorIndex] = rec.Noise
		found = true
	}
	if !found {
		return row{}, false
	}

	args := []any{ev.DeviceID, string(ev.Family), ev.ModuleIndex, ev.ModuleID}
	for i := 16; i <= 18; i++ {
		args = append(args, nullable(noises[i]))
	}
	args = append(args, ts(ev.CreatedAt), ts(now))

	return row{
		query: `INSERT INTO noise_level (device_id, device_family, module_index, module_id,
			noise_index16, noise_index17, noise_index18, parse_at, update_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args: args,
	}, true
}

func doorRow(ev model.Event, now time.Time) (row, bool) {
	if len(ev.Payload) == 0 {
		return row{}, false
	}
	rec, ok := ev.Payload[0].(model.DoorReading)
	if !ok {
		return row{}, false
	}
	return row{
		query: `INSERT INTO door_event (device_id, device_family, module_index, module_id, message_id, door_state, door1_state, door2_state, parse_at, update_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args: []any{ev.DeviceID, string(ev.Family), ev.ModuleIndex, ev.ModuleID, ev.MessageID,
			nullableInt(rec.DoorState), nullableInt(rec.Door1State), nullableInt(rec.Door2State), ts(ev.CreatedAt), ts(now)},
	}, true
}

func metaDataRow(ev model.Event, now time.Time) row {
	modules, _ := json.Marshal(ev.Payload)
	return row{
		query: `INSERT INTO meta_data (device_id, device_family, ip, mac, fw_ver, netmask, gateway_ip, active_modules, parse_at, update_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(device_id) DO UPDATE SET
				device_family = excluded.device_family,
				ip = excluded.ip,
				mac = excluded.mac,
				fw_ver = excluded.fw_ver,
				netmask = excluded.netmask,
				gateway_ip = excluded.gateway_ip,
				active_modules = excluded.active_modules,
				update_at = excluded.update_at`,
		args: []any{ev.DeviceID, string(ev.Family), ev.IP, ev.MAC, ev.FwVer, ev.Netmask, ev.GatewayIP,
			string(modules), ts(ev.CreatedAt), ts(now)},
	}
}

func metaChangeRows(ev model.Event, now time.Time) []row {
	rows := make([]row, 0, len(ev.Payload))
	for _, item := range ev.Payload {
		rec, ok := item.(model.MetaChangeRecord)
		if !ok {
			continue
		}
		rows = append(rows, row{
			query: `INSERT INTO topchange_event (device_id, device_family, message_id, description, parse_at, update_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
			args: []any{ev.DeviceID, string(ev.Family), ev.MessageID, rec.Description, ts(ev.CreatedAt), ts(now)},
		})
	}
	return rows
}

func cmdResultRow(ev model.Event, now time.Time) (row, bool) {
	if len(ev.Payload) == 0 {
		return row{}, false
	}
	rec, ok := ev.Payload[0].(model.CommandResultRecord)
	if !ok {
		return row{}, false
	}

	var colorMap any
	if rec.ColorMap != nil {
		encoded, _ := json.Marshal(rec.ColorMap)
		colorMap = string(encoded)
	}

	return row{
		query: `INSERT INTO cmd_result (device_id, device_family, kind, module_index, message_id, result, original_req, color_map, parse_at, update_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args: []any{ev.DeviceID, string(ev.Family), string(ev.Kind), rec.ModuleIndex, ev.MessageID,
			rec.Result, rec.OriginalReq, colorMap, ts(ev.CreatedAt), ts(now)},
	}, true
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullable maps a nil float pointer to SQL NULL.
func nullable(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
