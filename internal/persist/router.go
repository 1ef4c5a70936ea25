package persist

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"time"

	"github.com/rackbridge/rackbridge-core/internal/bus"
	"github.com/rackbridge/rackbridge-core/internal/model"
)

// Options tunes the router's batching behavior.
type Options struct {
	// BatchSize triggers a flush when the combined buffer reaches it.
	BatchSize int

	// FlushInterval triggers a flush on elapse regardless of fill.
	FlushInterval time.Duration

	// WriteTimeout bounds one table's batched write. On timeout the
	// batch stays buffered for the next cycle.
	WriteTimeout time.Duration
}

// row is one buffered statement.
type row struct {
	query string
	args  []any
}

// Router subscribes to normalized events, buffers rows per target
// table, and flushes them in batches. Metadata rows are upserts; all
// telemetry tables are append-only.
//
// The router owns its buffers; flushing happens only on its own
// goroutine, so no locking is needed.
type Router struct {
	bus    *bus.Bus
	db     *sql.DB
	opts   Options
	logger *slog.Logger

	buffers map[string][]row
	pending int
}

// NewRouter creates a persistence router.
//
// Parameters:
//   - b: In-process bus carrying normalized events
//   - db: Open database handle with migrated schema
//   - opts: Batching knobs; zero values get defaults
//   - logger: Structured logger; nil discards output
func NewRouter(b *bus.Bus, db *sql.DB, opts Options, logger *slog.Logger) *Router {
	if opts.BatchSize < 1 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		bus:     b,
		db:      db,
		opts:    opts,
		logger:  logger,
		buffers: make(map[string][]row),
	}
}

// Run consumes events until the context is cancelled, then performs a
// final flush.
func (r *Router) Run(ctx context.Context) {
	sub := r.bus.Subscribe("persist", bus.TopicEventNormalized, 512)
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flushAll(context.Background())
			return
		case <-ticker.C:
			r.flushAll(ctx)
		case msg, ok := <-sub.C:
			if !ok {
				r.flushAll(context.Background())
				return
			}
			ev, ok := msg.Payload.(model.Event)
			if !ok {
				continue
			}
			r.route(ev)
			if r.pending >= r.opts.BatchSize {
				r.flushAll(ctx)
			}
		}
	}
}

// route turns one event into buffered rows.
func (r *Router) route(ev model.Event) {
	now := time.Now().UTC()

	switch ev.Kind {
	case model.KindHeartbeat:
		r.add(tableHeartbeat, heartbeatRow(ev, now))
	case model.KindRFIDSnapshot:
		r.add(tableRFIDSnapshot, snapshotRow(ev, now))
	case model.KindRFIDEvent:
		for _, rw := range rfidEventRows(ev, now) {
			r.add(tableRFIDEvent, rw)
		}
	case model.KindTempHum:
		if rw, ok := tempHumRow(ev, now); ok {
			r.add(tableTempHum, rw)
		}
	case model.KindNoiseLevel:
		if rw, ok := noiseRow(ev, now); ok {
			r.add(tableNoiseLevel, rw)
		}
	case model.KindDoorState:
		if rw, ok := doorRow(ev, now); ok {
			r.add(tableDoorEvent, rw)
		}
	case model.KindDeviceMetadata:
		r.add(tableMetaData, metaDataRow(ev, now))
	case model.KindMetaChanged:
		for _, rw := range metaChangeRows(ev, now) {
			r.add(tableTopChange, rw)
		}
	case model.KindQryColorResp, model.KindSetColorResp, model.KindClearAlarmResp:
		if rw, ok := cmdResultRow(ev, now); ok {
			r.add(tableCmdResult, rw)
		}
	}
}

func (r *Router) add(table string, rw row) {
	r.buffers[table] = append(r.buffers[table], rw)
	r.pending++
}

// flushAll writes every non-empty buffer, one transaction per table.
// A failed table keeps its buffer for the next cycle.
func (r *Router) flushAll(ctx context.Context) {
	for table, rows := range r.buffers {
		if len(rows) == 0 {
			continue
		}
		if err := r.flushTable(ctx, table, rows); err != nil {
			r.logger.Error("batch write failed, buffer retained",
				"table", table, "rows", len(rows), "error", err)
			r.bus.Publish(bus.TopicError, bus.ErrorEvent{
				Source: "persist",
				Detail: "batch write to " + table + " failed: " + err.Error(),
			})
			continue
		}
		r.pending -= len(rows)
		r.buffers[table] = nil
	}
	if r.pending < 0 {
		r.pending = 0
	}
}

func (r *Router) flushTable(ctx context.Context, table string, rows []row) error {
	writeCtx, cancel := context.WithTimeout(ctx, r.opts.WriteTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(writeCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rw := range rows {
		if _, err := tx.ExecContext(writeCtx, rw.query, rw.args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.logger.Debug("batch flushed", "table", table, "rows", len(rows))
	return nil
}
