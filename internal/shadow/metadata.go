package shadow

import (
	"fmt"
	"sort"
	"time"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

// Merge folds device info and module metadata into the metadata entry.
// A non-null incoming scalar overwrites the cached one; a null incoming
// scalar never does. Modules are matched by index and only ever added
// or updated, never removed.
//
// Returns the ordered list of human-readable change descriptions.
func (c *Cache) Merge(deviceID string, family model.Family, dev *model.DeviceInfo, modules []model.ModuleData, now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.metadataEntry(deviceID, family)
	var changes []string

	if dev != nil {
		if dev.IP != "" && dev.IP != entry.IP {
			if entry.IP != "" {
				changes = append(changes, fmt.Sprintf("Device IP changed from %s to %s", entry.IP, dev.IP))
			}
			entry.IP = dev.IP
		}
		if dev.FwVer != "" && dev.FwVer != entry.FwVer {
			if entry.FwVer != "" {
				changes = append(changes, fmt.Sprintf("Device Firmware changed from %s to %s", entry.FwVer, dev.FwVer))
			}
			entry.FwVer = dev.FwVer
		}
		if dev.MAC != "" {
			entry.MAC = dev.MAC
		}
		if dev.Netmask != "" {
			entry.Netmask = dev.Netmask
		}
		if dev.GatewayIP != "" {
			entry.GatewayIP = dev.GatewayIP
		}
	}

	for _, mod := range modules {
		changes = append(changes, entry.mergeModule(mod)...)
	}

	sortModules(entry.ActiveModules)
	entry.LastSeenInfo = now
	return changes
}

// mergeModule applies one incoming module record to the active list.
func (e *MetadataEntry) mergeModule(mod model.ModuleData) []string {
	existing := e.findModule(mod.ModuleIndex)
	if existing == nil {
		added := model.ActiveModule{
			ModuleIndex: mod.ModuleIndex,
			ModuleID:    mod.ModuleID,
			FwVer:       mod.FwVer,
			UTotal:      mod.UTotal,
		}
		e.ActiveModules = append(e.ActiveModules, added)
		return []string{fmt.Sprintf("Module %s added at Index %d", moduleLabel(added.ModuleID, added.ModuleIndex), added.ModuleIndex)}
	}

	var changes []string
	label := moduleLabel(existing.ModuleID, existing.ModuleIndex)

	if mod.ModuleID != "" && mod.ModuleID != "0" && mod.ModuleID != existing.ModuleID {
		if existing.ModuleID != "" {
			changes = append(changes, fmt.Sprintf("Module %s ID changed from %s to %s", label, existing.ModuleID, mod.ModuleID))
		}
		existing.ModuleID = mod.ModuleID
	}
	if mod.FwVer != "" && mod.FwVer != existing.FwVer {
		if existing.FwVer != "" {
			changes = append(changes, fmt.Sprintf("Module %s Firmware changed from %s to %s", label, existing.FwVer, mod.FwVer))
		}
		existing.FwVer = mod.FwVer
	}
	if mod.UTotal != 0 && mod.UTotal != existing.UTotal {
		if existing.UTotal != 0 {
			changes = append(changes, fmt.Sprintf("Module %s U-Total changed from %d to %d", label, existing.UTotal, mod.UTotal))
		}
		existing.UTotal = mod.UTotal
	}
	return changes
}

// Reconcile applies a heartbeat's module list as the authoritative
// presence: modules absent from the heartbeat are removed, surviving
// modules take the heartbeat's id and capacity while keeping their
// firmware version (firmware only ever comes from info frames).
//
// Returns the ordered list of change descriptions. Reconciling the
// same heartbeat twice in a row yields none on the second pass.
func (c *Cache) Reconcile(deviceID string, family model.Family, slots []model.HeartbeatRecord, now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.metadataEntry(deviceID, family)
	var changes []string

	present := make(map[int]model.HeartbeatRecord, len(slots))
	for _, slot := range slots {
		present[slot.ModuleIndex] = slot
	}

	survivors := entry.ActiveModules[:0]
	for _, mod := range entry.ActiveModules {
		slot, ok := present[mod.ModuleIndex]
		if !ok {
			changes = append(changes, fmt.Sprintf("Module %s removed from Index %d", moduleLabel(mod.ModuleID, mod.ModuleIndex), mod.ModuleIndex))
			continue
		}
		if slot.ModuleID != mod.ModuleID && slot.ModuleID != "" && slot.ModuleID != "0" {
			if mod.ModuleID != "" {
				changes = append(changes, fmt.Sprintf("Module %s ID changed from %s to %s", moduleLabel(mod.ModuleID, mod.ModuleIndex), mod.ModuleID, slot.ModuleID))
			}
			mod.ModuleID = slot.ModuleID
		}
		if slot.UTotal != mod.UTotal && slot.UTotal != 0 {
			if mod.UTotal != 0 {
				changes = append(changes, fmt.Sprintf("Module %s U-Total changed from %d to %d", moduleLabel(mod.ModuleID, mod.ModuleIndex), mod.UTotal, slot.UTotal))
			}
			mod.UTotal = slot.UTotal
		}
		survivors = append(survivors, mod)
		delete(present, mod.ModuleIndex)
	}
	entry.ActiveModules = survivors

	// Remaining slots are modules the shadow has not seen before.
	newIndices := make([]int, 0, len(present))
	for idx := range present {
		newIndices = append(newIndices, idx)
	}
	sort.Ints(newIndices)
	for _, idx := range newIndices {
		slot := present[idx]
		entry.ActiveModules = append(entry.ActiveModules, model.ActiveModule{
			ModuleIndex: slot.ModuleIndex,
			ModuleID:    slot.ModuleID,
			UTotal:      slot.UTotal,
		})
		changes = append(changes, fmt.Sprintf("Module %s added at Index %d", moduleLabel(slot.ModuleID, slot.ModuleIndex), slot.ModuleIndex))
	}

	sortModules(entry.ActiveModules)
	entry.LastSeenInfo = now
	return changes
}

// findModule returns a pointer into ActiveModules, or nil.
func (e *MetadataEntry) findModule(index int) *model.ActiveModule {
	for i := range e.ActiveModules {
		if e.ActiveModules[i].ModuleIndex == index {
			return &e.ActiveModules[i]
		}
	}
	return nil
}

// moduleLabel names a module by id when it has one, by index otherwise.
func moduleLabel(moduleID string, index int) string {
	if moduleID != "" && moduleID != "0" {
		return moduleID
	}
	return fmt.Sprintf("%d", index)
}

func sortModules(mods []model.ActiveModule) {
	sort.SliceStable(mods, func(i, j int) bool {
		return mods[i].ModuleIndex < mods[j].ModuleIndex
	})
}

func sortTelemetry(entries []TelemetryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DeviceID != entries[j].DeviceID {
			return entries[i].DeviceID < entries[j].DeviceID
		}
		return entries[i].ModuleIndex < entries[j].ModuleIndex
	})
}

func sortViews(views []DeviceView) {
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].DeviceID < views[j].DeviceID
	})
}
