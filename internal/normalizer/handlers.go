package normalizer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

// handleHeartbeat is the busiest path: it asserts module presence,
// reconciles topology, rebuilds device metadata, and plans warmup.
func (s *Service) handleHeartbeat(ctx context.Context, f *model.Frame) {
	now := s.now()

	slots := make([]model.HeartbeatRecord, 0, len(f.Modules))
	payload := make([]any, 0, len(f.Modules))
	for _, m := range f.Modules {
		if !s.validModule(f.Family, m.ModuleIndex, m.ModuleID) {
			continue
		}
		rec := model.HeartbeatRecord{
			ModuleIndex: m.ModuleIndex,
			ModuleID:    m.ModuleID,
			UTotal:      m.UTotal,
		}
		slots = append(slots, rec)
		payload = append(payload, rec)
	}

	// A heartbeat with zero surviving slots is still an assertion.
	s.emit(model.Event{
		DeviceID:  f.DeviceID,
		Family:    f.Family,
		Kind:      model.KindHeartbeat,
		MessageID: f.MessageID,
		ModuleID:  "0",
		Payload:   payload,
		CreatedAt: now,
	})

	for _, slot := range slots {
		s.cache.UpdateHeartbeat(f.DeviceID, f.Family, slot, now)
	}

	changes := s.cache.Reconcile(f.DeviceID, f.Family, slots, now)
	if len(changes) > 0 {
		s.emitMetaChanged(f, changes, now)
	}
	s.emitDeviceMetadata(f.DeviceID, f.Family, f.MessageID)

	cmds := s.planForHeartbeat(f.DeviceID, f.Family, slots, now)
	if len(cmds) > 0 {
		s.wg.Add(1)
		go s.dispatchStaggered(ctx, cmds)
	}
}

// handleSnapshot diffs each module's new RFID inventory against the
// shadow, emitting one RFID_EVENT per detected change followed by the
// full snapshot for durable history.
func (s *Service) handleSnapshot(f *model.Frame) {
	now := s.now()

	for _, m := range f.Modules {
		if !s.validModule(f.Family, m.ModuleIndex, m.ModuleID) {
			s.logger.Warn("snapshot for invalid module dropped",
				"device_id", f.DeviceID, "module_index", m.ModuleIndex, "module_id", m.ModuleID)
			continue
		}

		prior := s.cache.ReplaceRFID(f.DeviceID, f.Family, m.ModuleIndex, m.ModuleID, m.RFID, now)

		for _, rec := range diffSnapshots(prior, m.RFID) {
			s.emit(model.Event{
				DeviceID:    f.DeviceID,
				Family:      f.Family,
				Kind:        model.KindRFIDEvent,
				MessageID:   f.MessageID,
				ModuleIndex: m.ModuleIndex,
				ModuleID:    m.ModuleID,
				Payload:     []any{rec},
				CreatedAt:   now,
			})
		}

		payload := make([]any, 0, len(m.RFID))
		for _, r := range m.RFID {
			payload = append(payload, r)
		}
		s.emit(model.Event{
			DeviceID:    f.DeviceID,
			Family:      f.Family,
			Kind:        model.KindRFIDSnapshot,
			MessageID:   f.MessageID,
			ModuleIndex: m.ModuleIndex,
			ModuleID:    m.ModuleID,
			Payload:     payload,
			CreatedAt:   now,
		})
	}
}

// handleRFIDEvent: FamilyJ attach/detach notifications are not trusted
// directly; they trigger a snapshot query and the eventual response
// flows through the diffing path. FamilyB never produces this kind on
// the wire.
func (s *Service) handleRFIDEvent(f *model.Frame) {
	if f.Family != model.FamilyJ {
		s.logger.Warn("unexpected wire-level rfid event", "device_id", f.DeviceID, "family", f.Family)
		return
	}

	for _, m := range f.Modules {
		if !s.validModule(f.Family, m.ModuleIndex, m.ModuleID) {
			continue
		}
		s.requestCommand(model.CommandRequest{
			DeviceID:    f.DeviceID,
			Family:      f.Family,
			Kind:        model.KindQryRFIDSnapshot,
			ModuleIndex: m.ModuleIndex,
			ModuleID:    m.ModuleID,
		})
	}
}

// handleTempHum emits one event per module, dropping readings where
// both values are null.
func (s *Service) handleTempHum(f *model.Frame) {
	now := s.now()

	for _, m := range f.Modules {
		if !s.validModule(f.Family, m.ModuleIndex, m.ModuleID) {
			continue
		}

		kept := make([]model.TempHumReading, 0, len(m.TempHum))
		payload := make([]any, 0, len(m.TempHum))
		for _, r := range m.TempHum {
			if r.Temp == nil && r.Hum == nil {
				continue
			}
			kept = append(kept, r)
			payload = append(payload, r)
		}

		s.cache.ReplaceTempHum(f.DeviceID, f.Family, m.ModuleIndex, m.ModuleID, kept, now)
		s.emit(model.Event{
			DeviceID:    f.DeviceID,
			Family:      f.Family,
			Kind:        model.KindTempHum,
			MessageID:   f.MessageID,
			ModuleIndex: m.ModuleIndex,
			ModuleID:    m.ModuleID,
			Payload:     payload,
			CreatedAt:   now,
		})
	}
}

// handleNoise mirrors handleTempHum for the noise sensors, dropping
// null readings only.
func (s *Service) handleNoise(f *model.Frame) {
	now := s.now()

	for _, m := range f.Modules {
		if !s.validModule(f.Family, m.ModuleIndex, m.ModuleID) {
			continue
		}

		kept := make([]model.NoiseReading, 0, len(m.Noise))
		payload := make([]any, 0, len(m.Noise))
		for _, r := range m.Noise {
			if r.Noise == nil {
				continue
			}
			kept = append(kept, r)
			payload = append(payload, r)
		}

		s.cache.ReplaceNoise(f.DeviceID, f.Family, m.ModuleIndex, m.ModuleID, kept, now)
		s.emit(model.Event{
			DeviceID:    f.DeviceID,
			Family:      f.Family,
			Kind:        model.KindNoiseLevel,
			MessageID:   f.MessageID,
			ModuleIndex: m.ModuleIndex,
			ModuleID:    m.ModuleID,
			Payload:     payload,
			CreatedAt:   now,
		})
	}
}

// handleDoor validates module identity and emits a single-record event.
func (s *Service) handleDoor(f *model.Frame) {
	now := s.now()

	for _, m := range f.Modules {
		if m.Door == nil {
			continue
		}
		if !s.validModule(f.Family, m.ModuleIndex, m.ModuleID) {
			s.logger.Warn("door state for invalid module dropped",
				"device_id", f.DeviceID, "module_index", m.ModuleIndex, "module_id", m.ModuleID)
			continue
		}

		s.cache.SetDoor(f.DeviceID, f.Family, m.ModuleIndex, m.ModuleID, *m.Door, now)
		s.emit(model.Event{
			DeviceID:    f.DeviceID,
			Family:      f.Family,
			Kind:        model.KindDoorState,
			MessageID:   f.MessageID,
			ModuleIndex: m.ModuleIndex,
			ModuleID:    m.ModuleID,
			Payload:     []any{*m.Door},
			CreatedAt:   now,
		})
	}
}

// handleInfo merges device/module metadata and republishes the merged
// view.
func (s *Service) handleInfo(f *model.Frame) {
	now := s.now()

	changes := s.cache.Merge(f.DeviceID, f.Family, f.Device, f.Modules, now)
	if len(changes) > 0 {
		s.emitMetaChanged(f, changes, now)
	}
	s.emitDeviceMetadata(f.DeviceID, f.Family, f.MessageID)
}

// handleResponse passes a command acknowledgement through as a
// device-level event. No shadow update.
func (s *Service) handleResponse(f *model.Frame) {
	if f.Response == nil {
		return
	}
	s.emit(model.Event{
		DeviceID:  f.DeviceID,
		Family:    f.Family,
		Kind:      f.Kind,
		MessageID: f.MessageID,
		ModuleID:  "0",
		Payload: []any{model.CommandResultRecord{
			ModuleIndex: f.Response.ModuleIndex,
			Result:      f.Response.Result,
			OriginalReq: f.Response.OriginalReq,
			ColorMap:    f.Response.ColorMap,
		}},
	})
}

// handleUnknown forwards an unrecognized frame with its raw body so
// downstream consumers can inspect it.
func (s *Service) handleUnknown(f *model.Frame) {
	s.emit(model.Event{
		DeviceID:  f.DeviceID,
		Family:    f.Family,
		Kind:      model.KindUnknown,
		MessageID: f.MessageID,
		ModuleID:  "0",
		Payload:   []any{json.RawMessage(f.Raw)},
	})
}

// emitMetaChanged wraps change descriptions, one record each.
func (s *Service) emitMetaChanged(f *model.Frame, changes []string, now time.Time) {
	payload := make([]any, 0, len(changes))
	for _, desc := range changes {
		payload = append(payload, model.MetaChangeRecord{Description: desc})
	}
	s.emit(model.Event{
		DeviceID:  f.DeviceID,
		Family:    f.Family,
		Kind:      model.KindMetaChanged,
		MessageID: f.MessageID,
		ModuleID:  "0",
		Payload:   payload,
		CreatedAt: now,
	})
}

// emitDeviceMetadata rebuilds a DEVICE_METADATA event from the merged
// metadata entry.
func (s *Service) emitDeviceMetadata(deviceID string, family model.Family, messageID string) {
	meta, ok := s.cache.MetadataSnapshot(deviceID)
	if !ok {
		return
	}

	payload := make([]any, 0, len(meta.ActiveModules))
	for _, mod := range meta.ActiveModules {
		payload = append(payload, mod)
	}

	s.emit(model.Event{
		DeviceID:  deviceID,
		Family:    family,
		Kind:      model.KindDeviceMetadata,
		MessageID: messageID,
		ModuleID:  "0",
		Payload:   payload,
		IP:        meta.IP,
		MAC:       meta.MAC,
		FwVer:     meta.FwVer,
		Netmask:   meta.Netmask,
		GatewayIP: meta.GatewayIP,
	})
}

// EmitOfflineStatus publishes a DEVICE_STATUS event for a module the
// watchdog flipped offline. Wired as the watchdog callback when status
// events are enabled.
func (s *Service) EmitOfflineStatus(deviceID string, family model.Family, moduleIndex int, moduleID string) {
	s.emit(model.Event{
		DeviceID: deviceID,
		Family:   family,
		Kind:     model.KindDeviceStatus,
		ModuleID: "0",
		Payload: []any{model.DeviceStatusRecord{
			ModuleIndex: moduleIndex,
			ModuleID:    moduleID,
			IsOnline:    false,
		}},
	})
}
