package shadow

import (
	"testing"
	"time"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestUpdateHeartbeatCreatesEntry(t *testing.T) {
	c := New()

	c.UpdateHeartbeat("GW-1", model.FamilyB, model.HeartbeatRecord{ModuleIndex: 1, ModuleID: "1001", UTotal: 6}, t0)

	entry, ok := c.TelemetrySnapshot("GW-1", 1)
	if !ok {
		t.Fatal("entry not created")
	}
	if !entry.IsOnline || entry.ModuleID != "1001" || entry.UTotal != 6 {
		t.Errorf("entry = %+v", entry)
	}
	if !entry.LastSeenHeartbeat.Equal(t0) {
		t.Errorf("LastSeenHeartbeat = %v, want %v", entry.LastSeenHeartbeat, t0)
	}
}

func TestReplaceRFIDReturnsPrior(t *testing.T) {
	c := New()
	first := []model.RFIDReading{{SensorIndex: 3, TagID: "AABBCCDD"}}
	second := []model.RFIDReading{{SensorIndex: 5, TagID: "11223344"}}

	prior := c.ReplaceRFID("GW-1", model.FamilyB, 1, "1001", first, t0)
	if len(prior) != 0 {
		t.Errorf("first prior = %v, want empty", prior)
	}

	prior = c.ReplaceRFID("GW-1", model.FamilyB, 1, "1001", second, t0.Add(time.Minute))
	if len(prior) != 1 || prior[0].TagID != "AABBCCDD" {
		t.Errorf("second prior = %v", prior)
	}

	entry, _ := c.TelemetrySnapshot("GW-1", 1)
	if len(entry.RFID) != 1 || entry.RFID[0].SensorIndex != 5 {
		t.Errorf("shadow rfid = %v, want latest snapshot", entry.RFID)
	}
}

func TestSetDoorPreservesOtherStates(t *testing.T) {
	c := New()
	one := 1
	zero := 0

	c.SetDoor("GW-1", model.FamilyJ, 2, "MOD-B", model.DoorReading{Door1State: &one, Door2State: &zero}, t0)
	c.SetDoor("GW-1", model.FamilyJ, 2, "MOD-B", model.DoorReading{Door1State: &zero}, t0.Add(time.Second))

	entry, _ := c.TelemetrySnapshot("GW-1", 2)
	if entry.Door1State == nil || *entry.Door1State != 0 {
		t.Errorf("Door1State = %v, want 0", entry.Door1State)
	}
	if entry.Door2State == nil || *entry.Door2State != 0 {
		t.Errorf("Door2State = %v, want preserved 0", entry.Door2State)
	}
	if entry.DoorState != nil {
		t.Errorf("DoorState = %v, want nil", *entry.DoorState)
	}
}

func TestMergeOverwritesNonNullOnly(t *testing.T) {
	c := New()

	c.Merge("GW-1", model.FamilyB, &model.DeviceInfo{IP: "192.168.1.50", MAC: "AA:BB:CC:00:11:22"}, nil, t0)

	// Incoming frame without MAC must not clear the cached one.
	changes := c.Merge("GW-1", model.FamilyB, &model.DeviceInfo{IP: "192.168.1.60"}, nil, t0.Add(time.Minute))

	meta, _ := c.MetadataSnapshot("GW-1")
	if meta.MAC != "AA:BB:CC:00:11:22" {
		t.Errorf("MAC = %q, want preserved", meta.MAC)
	}
	if meta.IP != "192.168.1.60" {
		t.Errorf("IP = %q, want 192.168.1.60", meta.IP)
	}
	if len(changes) != 1 || changes[0] != "Device IP changed from 192.168.1.50 to 192.168.1.60" {
		t.Errorf("changes = %v", changes)
	}
}

func TestMergeModuleDescriptions(t *testing.T) {
	c := New()

	changes := c.Merge("GW-1", model.FamilyB, nil, []model.ModuleData{
		{ModuleIndex: 1, ModuleID: "A", UTotal: 6},
	}, t0)
	if len(changes) != 1 || changes[0] != "Module A added at Index 1" {
		t.Fatalf("add changes = %v", changes)
	}

	changes = c.Merge("GW-1", model.FamilyB, nil, []model.ModuleData{
		{ModuleIndex: 1, ModuleID: "A", FwVer: "1.0.0.5", UTotal: 6},
	}, t0.Add(time.Minute))
	if len(changes) != 0 {
		t.Errorf("initial firmware set should not describe a change: %v", changes)
	}

	changes = c.Merge("GW-1", model.FamilyB, nil, []model.ModuleData{
		{ModuleIndex: 1, ModuleID: "A", FwVer: "1.0.0.6", UTotal: 12},
	}, t0.Add(2*time.Minute))
	want := map[string]bool{
		"Module A Firmware changed from 1.0.0.5 to 1.0.0.6": true,
		"Module A U-Total changed from 6 to 12":              true,
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %v, want 2", changes)
	}
	for _, ch := range changes {
		if !want[ch] {
			t.Errorf("unexpected change %q", ch)
		}
	}
}

func TestReconcileRemovesAbsentModules(t *testing.T) {
	c := New()
	c.Merge("GW-1", model.FamilyB, nil, []model.ModuleData{
		{ModuleIndex: 1, ModuleID: "A", UTotal: 6},
		{ModuleIndex: 2, ModuleID: "B", UTotal: 6},
	}, t0)

	changes := c.Reconcile("GW-1", model.FamilyB, []model.HeartbeatRecord{
		{ModuleIndex: 1, ModuleID: "A", UTotal: 6},
	}, t0.Add(time.Minute))

	if len(changes) != 1 || changes[0] != "Module B removed from Index 2" {
		t.Errorf("changes = %v", changes)
	}

	meta, _ := c.MetadataSnapshot("GW-1")
	if len(meta.ActiveModules) != 1 || meta.ActiveModules[0].ModuleID != "A" {
		t.Errorf("ActiveModules = %v", meta.ActiveModules)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	c := New()
	slots := []model.HeartbeatRecord{
		{ModuleIndex: 2, ModuleID: "B", UTotal: 12},
		{ModuleIndex: 1, ModuleID: "A", UTotal: 6},
	}

	first := c.Reconcile("GW-1", model.FamilyB, slots, t0)
	if len(first) != 2 {
		t.Fatalf("first reconcile changes = %v, want 2 additions", first)
	}

	second := c.Reconcile("GW-1", model.FamilyB, slots, t0.Add(time.Minute))
	if len(second) != 0 {
		t.Errorf("second reconcile changes = %v, want none", second)
	}
}

func TestReconcilePreservesFirmware(t *testing.T) {
	c := New()
	c.Merge("GW-1", model.FamilyB, nil, []model.ModuleData{
		{ModuleIndex: 1, ModuleID: "A", FwVer: "1.0.0.5"},
	}, t0)

	c.Reconcile("GW-1", model.FamilyB, []model.HeartbeatRecord{
		{ModuleIndex: 1, ModuleID: "A", UTotal: 6},
	}, t0.Add(time.Minute))

	meta, _ := c.MetadataSnapshot("GW-1")
	if meta.ActiveModules[0].FwVer != "1.0.0.5" {
		t.Errorf("FwVer = %q, want preserved 1.0.0.5", meta.ActiveModules[0].FwVer)
	}
	if meta.ActiveModules[0].UTotal != 6 {
		t.Errorf("UTotal = %d, want 6 from heartbeat", meta.ActiveModules[0].UTotal)
	}
}

func TestActiveModulesOrderStable(t *testing.T) {
	c := New()
	c.Reconcile("GW-1", model.FamilyB, []model.HeartbeatRecord{
		{ModuleIndex: 3, ModuleID: "C"},
		{ModuleIndex: 1, ModuleID: "A"},
		{ModuleIndex: 2, ModuleID: "B"},
	}, t0)

	meta, _ := c.MetadataSnapshot("GW-1")
	for i, want := range []int{1, 2, 3} {
		if meta.ActiveModules[i].ModuleIndex != want {
			t.Fatalf("ActiveModules = %v, want ordered by index", meta.ActiveModules)
		}
	}
}

func TestMarkStale(t *testing.T) {
	c := New()
	c.UpdateHeartbeat("GW-1", model.FamilyB, model.HeartbeatRecord{ModuleIndex: 1, ModuleID: "A"}, t0)
	c.UpdateHeartbeat("GW-1", model.FamilyB, model.HeartbeatRecord{ModuleIndex: 2, ModuleID: "B"}, t0.Add(100*time.Second))

	flipped := c.MarkStale(120*time.Second, t0.Add(130*time.Second))
	if len(flipped) != 1 || flipped[0].ModuleIndex != 1 {
		t.Fatalf("flipped = %v, want module 1 only", flipped)
	}

	entry, _ := c.TelemetrySnapshot("GW-1", 1)
	if entry.IsOnline {
		t.Error("module 1 should be offline")
	}
	entry, _ = c.TelemetrySnapshot("GW-1", 2)
	if !entry.IsOnline {
		t.Error("module 2 should stay online")
	}

	// A fresh heartbeat restores liveness.
	c.UpdateHeartbeat("GW-1", model.FamilyB, model.HeartbeatRecord{ModuleIndex: 1, ModuleID: "A"}, t0.Add(140*time.Second))
	entry, _ = c.TelemetrySnapshot("GW-1", 1)
	if !entry.IsOnline {
		t.Error("heartbeat should restore isOnline")
	}

	// Already-offline entries are not reported again.
	again := c.MarkStale(120*time.Second, t0.Add(400*time.Second))
	if len(again) != 2 {
		t.Errorf("flipped = %v, want both modules", again)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	c := New()
	c.ReplaceRFID("GW-1", model.FamilyB, 1, "A", []model.RFIDReading{{SensorIndex: 1, TagID: "X"}}, t0)

	entry, _ := c.TelemetrySnapshot("GW-1", 1)
	entry.RFID[0].TagID = "mutated"

	fresh, _ := c.TelemetrySnapshot("GW-1", 1)
	if fresh.RFID[0].TagID != "X" {
		t.Error("snapshot mutation leaked into the cache")
	}
}

func TestTopologyAnnotatesLiveness(t *testing.T) {
	c := New()
	c.Reconcile("GW-1", model.FamilyB, []model.HeartbeatRecord{{ModuleIndex: 1, ModuleID: "A", UTotal: 6}}, t0)
	c.UpdateHeartbeat("GW-1", model.FamilyB, model.HeartbeatRecord{ModuleIndex: 1, ModuleID: "A", UTotal: 6}, t0)

	views := c.Topology()
	if len(views) != 1 {
		t.Fatalf("len(views) = %d, want 1", len(views))
	}
	if len(views[0].Modules) != 1 || !views[0].Modules[0].IsOnline {
		t.Errorf("modules = %+v", views[0].Modules)
	}
}
