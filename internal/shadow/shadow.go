package shadow

import (
	"sync"
	"time"

	"github.com/rackbridge/rackbridge-core/internal/model"
)

// TelemetryEntry is the live twin of one module, keyed
// (deviceId, moduleIndex). Entries are created lazily on first
// reference and live for the process lifetime; the watchdog marks them
// offline but never deletes them.
type TelemetryEntry struct {
	DeviceID    string       `json:"deviceId"`
	Family      model.Family `json:"deviceFamily"`
	ModuleIndex int          `json:"moduleIndex"`
	ModuleID    string       `json:"moduleId"`

	IsOnline          bool      `json:"isOnline"`
	LastSeenHeartbeat time.Time `json:"lastSeenHeartbeat"`

	UTotal int `json:"uTotal"`

	TempHum         []model.TempHumReading `json:"tempHum"`
	LastSeenTempHum time.Time              `json:"lastSeenTempHum"`

	Noise         []model.NoiseReading `json:"noise"`
	LastSeenNoise time.Time            `json:"lastSeenNoise"`

	RFID         []model.RFIDReading `json:"rfid"`
	LastSeenRFID time.Time           `json:"lastSeenRfid"`

	DoorState    *int      `json:"doorState"`
	Door1State   *int      `json:"door1State"`
	Door2State   *int      `json:"door2State"`
	LastSeenDoor time.Time `json:"lastSeenDoor"`
}

// MetadataEntry is the live twin of one gateway, keyed deviceId.
type MetadataEntry struct {
	DeviceID string       `json:"deviceId"`
	Family   model.Family `json:"deviceFamily"`

	IP        string `json:"ip"`
	MAC       string `json:"mac"`
	FwVer     string `json:"fwVer"`
	Netmask   string `json:"netmask"`
	GatewayIP string `json:"gatewayIp"`

	LastSeenInfo time.Time `json:"lastSeenInfo"`

	// ActiveModules reflects the most recent authoritative heartbeat,
	// order-stable by module index.
	ActiveModules []model.ActiveModule `json:"activeModules"`
}

type telemetryKey struct {
	deviceID    string
	moduleIndex int
}

// Cache is the in-memory device shadow. It is the only shared mutable
// state in the pipeline; every mutation is atomic at entry granularity.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	telemetry map[telemetryKey]*TelemetryEntry
	metadata  map[string]*MetadataEntry
}

// New creates an empty shadow cache.
func New() *Cache {
	return &Cache{
		telemetry: make(map[telemetryKey]*TelemetryEntry),
		metadata:  make(map[string]*MetadataEntry),
	}
}

// telemetryEntry returns the entry, creating it lazily. Caller holds mu.
func (c *Cache) telemetryEntry(deviceID string, family model.Family, moduleIndex int) *TelemetryEntry {
	key := telemetryKey{deviceID, moduleIndex}
	entry, ok := c.telemetry[key]
	if !ok {
		entry = &TelemetryEntry{
			DeviceID:    deviceID,
			Family:      family,
			ModuleIndex: moduleIndex,
		}
		c.telemetry[key] = entry
	}
	return entry
}

// metadataEntry returns the entry, creating it lazily. Caller holds mu.
func (c *Cache) metadataEntry(deviceID string, family model.Family) *MetadataEntry {
	entry, ok := c.metadata[deviceID]
	if !ok {
		entry = &MetadataEntry{DeviceID: deviceID, Family: family}
		c.metadata[deviceID] = entry
	}
	return entry
}

// UpdateHeartbeat applies one heartbeat slot: the module is online,
// its identity and capacity follow the heartbeat.
func (c *Cache) UpdateHeartbeat(deviceID string, family model.Family, slot model.HeartbeatRecord, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.telemetryEntry(deviceID, family, slot.ModuleIndex)
	entry.IsOnline = true
	entry.LastSeenHeartbeat = now
	entry.ModuleID = slot.ModuleID
	entry.UTotal = slot.UTotal
}

// ReplaceRFID swaps in a new full snapshot and returns the prior one.
// The shadow always holds the latest snapshot, never a delta.
func (c *Cache) ReplaceRFID(deviceID string, family model.Family, moduleIndex int, moduleID string, readings []model.RFIDReading, now time.Time) []model.RFIDReading {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.telemetryEntry(deviceID, family, moduleIndex)
	if moduleID != "" {
		entry.ModuleID = moduleID
	}
	prior := entry.RFID
	entry.RFID = append([]model.RFIDReading(nil), readings...)
	entry.LastSeenRFID = now
	return prior
}

// ReplaceTempHum swaps in the latest temperature/humidity readings.
func (c *Cache) ReplaceTempHum(deviceID string, family model.Family, moduleIndex int, moduleID string, readings []model.TempHumReading, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.telemetryEntry(deviceID, family, moduleIndex)
	if moduleID != "" {
		entry.ModuleID = moduleID
	}
	entry.TempHum = append([]model.TempHumReading(nil), readings...)
	entry.LastSeenTempHum = now
}

// ReplaceNoise swaps in the latest noise readings.
func (c *Cache) ReplaceNoise(deviceID string, family model.Family, moduleIndex int, moduleID string, readings []model.NoiseReading, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.telemetryEntry(deviceID, family, moduleIndex)
	if moduleID != "" {
		entry.ModuleID = moduleID
	}
	entry.Noise = append([]model.NoiseReading(nil), readings...)
	entry.LastSeenNoise = now
}

// SetDoor applies a door reading. Nil states leave the cached state
// untouched so single- and dual-door frames do not clobber each other.
func (c *Cache) SetDoor(deviceID string, family model.Family, moduleIndex int, moduleID string, door model.DoorReading, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.telemetryEntry(deviceID, family, moduleIndex)
	if moduleID != "" {
		entry.ModuleID = moduleID
	}
	if door.DoorState != nil {
		v := *door.DoorState
		entry.DoorState = &v
	}
	if door.Door1State != nil {
		v := *door.Door1State
		entry.Door1State = &v
	}
	if door.Door2State != nil {
		v := *door.Door2State
		entry.Door2State = &v
	}
	entry.LastSeenDoor = now
}

// TelemetrySnapshot returns a copy of one telemetry entry.
func (c *Cache) TelemetrySnapshot(deviceID string, moduleIndex int) (TelemetryEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.telemetry[telemetryKey{deviceID, moduleIndex}]
	if !ok {
		return TelemetryEntry{}, false
	}
	return copyTelemetry(entry), true
}

// MetadataSnapshot returns a copy of one metadata entry.
func (c *Cache) MetadataSnapshot(deviceID string) (MetadataEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.metadata[deviceID]
	if !ok {
		return MetadataEntry{}, false
	}
	return copyMetadata(entry), true
}

// DeviceTelemetry returns copies of all telemetry entries for a device,
// ordered by module index.
func (c *Cache) DeviceTelemetry(deviceID string) []TelemetryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []TelemetryEntry
	for key, entry := range c.telemetry {
		if key.deviceID == deviceID {
			out = append(out, copyTelemetry(entry))
		}
	}
	sortTelemetry(out)
	return out
}

// Topology returns copies of every metadata entry alongside its
// modules' live telemetry, for the live API.
func (c *Cache) Topology() []DeviceView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]DeviceView, 0, len(c.metadata))
	for deviceID, meta := range c.metadata {
		view := DeviceView{MetadataEntry: copyMetadata(meta)}
		for _, mod := range meta.ActiveModules {
			mv := ModuleView{ActiveModule: mod}
			if entry, ok := c.telemetry[telemetryKey{deviceID, mod.ModuleIndex}]; ok {
				mv.IsOnline = entry.IsOnline
				mv.LastSeenHeartbeat = entry.LastSeenHeartbeat
			}
			view.Modules = append(view.Modules, mv)
		}
		out = append(out, view)
	}
	sortViews(out)
	return out
}

// DeviceView is a topology listing entry: metadata plus per-module
// liveness.
type DeviceView struct {
	MetadataEntry
	Modules []ModuleView `json:"modules"`
}

// ModuleView annotates an active module with live state.
type ModuleView struct {
	model.ActiveModule
	IsOnline          bool      `json:"isOnline"`
	LastSeenHeartbeat time.Time `json:"lastSeenHeartbeat"`
}

// MarkStale flips modules offline whose last heartbeat is older than
// timeout, returning copies of the entries that changed.
func (c *Cache) MarkStale(timeout time.Duration, now time.Time) []TelemetryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var flipped []TelemetryEntry
	for _, entry := range c.telemetry {
		if !entry.IsOnline {
			continue
		}
		if now.Sub(entry.LastSeenHeartbeat) > timeout {
			entry.IsOnline = false
			flipped = append(flipped, copyTelemetry(entry))
		}
	}
	sortTelemetry(flipped)
	return flipped
}

func copyTelemetry(e *TelemetryEntry) TelemetryEntry {
	out := *e
	out.TempHum = append([]model.TempHumReading(nil), e.TempHum...)
	out.Noise = append([]model.NoiseReading(nil), e.Noise...)
	out.RFID = append([]model.RFIDReading(nil), e.RFID...)
	out.DoorState = copyInt(e.DoorState)
	out.Door1State = copyInt(e.Door1State)
	out.Door2State = copyInt(e.Door2State)
	return out
}

func copyMetadata(e *MetadataEntry) MetadataEntry {
	out := *e
	out.ActiveModules = append([]model.ActiveModule(nil), e.ActiveModules...)
	return out
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
