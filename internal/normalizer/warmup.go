package normalizer

import (
	"time"

	"github.com/rackbridge/rackbridge-core/internal/model"
	"github.com/rackbridge/rackbridge-core/internal/shadow"
)

// planForHeartbeat builds the ordered command plan for one heartbeat:
// self-healing queries first, then per-module warmup. The plan is
// computed from shadow snapshots only; dispatch happens elsewhere.
func (s *Service) planForHeartbeat(deviceID string, family model.Family, slots []model.HeartbeatRecord, now time.Time) []model.CommandRequest {
	meta, _ := s.cache.MetadataSnapshot(deviceID)

	telemetry := make(map[int]shadow.TelemetryEntry, len(slots))
	for _, slot := range slots {
		if entry, ok := s.cache.TelemetrySnapshot(deviceID, slot.ModuleIndex); ok {
			telemetry[slot.ModuleIndex] = entry
		}
	}

	return planQueries(planInput{
		DeviceID:  deviceID,
		Family:    family,
		Meta:      meta,
		Slots:     slots,
		Telemetry: telemetry,
		Now:       now,
	}, s.opts)
}

// planInput is a point-in-time view for pure planning.
type planInput struct {
	DeviceID  string
	Family    model.Family
	Meta      shadow.MetadataEntry
	Slots     []model.HeartbeatRecord
	Telemetry map[int]shadow.TelemetryEntry
	Now       time.Time
}

// planQueries is the warmup controller. It is a pure function of the
// input snapshot, which keeps it independent of normalizer state.
//
// Self-healing runs unconditionally: missing network identity asks for
// device info, and FamilyB modules without a firmware version ask for
// module info. Warmup, when enabled, refreshes telemetry that is empty
// or stale, per module in heartbeat order: temperature/humidity, then
// the RFID snapshot, then door state.
func planQueries(in planInput, opts Options) []model.CommandRequest {
	var cmds []model.CommandRequest

	if in.Meta.IP == "" || in.Meta.MAC == "" {
		kind := model.KindQryDeviceInfo
		if in.Family == model.FamilyJ {
			kind = model.KindQryDevModInfo
		}
		cmds = append(cmds, model.CommandRequest{
			DeviceID: in.DeviceID,
			Family:   in.Family,
			Kind:     kind,
		})
	}

	if in.Family == model.FamilyB {
		for _, mod := range in.Meta.ActiveModules {
			if mod.FwVer == "" {
				cmds = append(cmds, model.CommandRequest{
					DeviceID: in.DeviceID,
					Family:   in.Family,
					Kind:     model.KindQryModuleInfo,
				})
				break
			}
		}
	}

	if !opts.WarmupEnabled {
		return cmds
	}

	for _, slot := range in.Slots {
		entry := in.Telemetry[slot.ModuleIndex]

		if len(entry.TempHum) == 0 || in.Now.Sub(entry.LastSeenTempHum) > opts.TempHumStaleness {
			cmds = append(cmds, model.CommandRequest{
				DeviceID:    in.DeviceID,
				Family:      in.Family,
				Kind:        model.KindQryTempHum,
				ModuleIndex: slot.ModuleIndex,
				ModuleID:    slot.ModuleID,
			})
		}
		if len(entry.RFID) == 0 || in.Now.Sub(entry.LastSeenRFID) > opts.RFIDStaleness {
			cmds = append(cmds, model.CommandRequest{
				DeviceID:    in.DeviceID,
				Family:      in.Family,
				Kind:        model.KindQryRFIDSnapshot,
				ModuleIndex: slot.ModuleIndex,
				ModuleID:    slot.ModuleID,
			})
		}
		if entry.DoorState == nil && entry.Door1State == nil {
			cmds = append(cmds, model.CommandRequest{
				DeviceID:    in.DeviceID,
				Family:      in.Family,
				Kind:        model.KindQryDoorState,
				ModuleIndex: slot.ModuleIndex,
				ModuleID:    slot.ModuleID,
			})
		}
	}

	return cmds
}
