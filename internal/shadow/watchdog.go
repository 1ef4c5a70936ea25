package shadow

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Watchdog periodically ages out modules whose heartbeat has gone
// silent, flipping them offline in the cache.
type Watchdog struct {
	cache    *Cache
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger

	// onOffline, when set, is called once per entry that went offline.
	onOffline func(TelemetryEntry)
}

// NewWatchdog creates a watchdog over the cache.
//
// Parameters:
//   - cache: The shadow to scan
//   - timeout: Heartbeat age beyond which a module is offline
//   - interval: Scan period
//   - logger: Structured logger; nil discards output
func NewWatchdog(cache *Cache, timeout, interval time.Duration, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watchdog{
		cache:    cache,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
	}
}

// SetOnOffline registers a callback invoked for each module the
// watchdog flips offline. Must be called before Run.
func (w *Watchdog) SetOnOffline(fn func(TelemetryEntry)) {
	w.onOffline = fn
}

// Run scans until the context is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.scan(now.UTC())
		}
	}
}

func (w *Watchdog) scan(now time.Time) {
	flipped := w.cache.MarkStale(w.timeout, now)
	for _, entry := range flipped {
		w.logger.Warn("module heartbeat timed out",
			"device_id", entry.DeviceID,
			"module_index", entry.ModuleIndex,
			"last_seen", entry.LastSeenHeartbeat)
		if w.onOffline != nil {
			w.onOffline(entry)
		}
	}
}
