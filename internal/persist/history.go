package persist

import (
	"context"
	"database/sql"
	"fmt"
)

// History query limits.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// historyTables whitelists the queryable tables. Table names are
// interpolated into SQL, so nothing outside this set may pass.
var historyTables = map[string]bool{
	tableHeartbeat:    true,
	tableRFIDSnapshot: true,
	tableRFIDEvent:    true,
	tableTempHum:      true,
	tableNoiseLevel:   true,
	tableDoorEvent:    true,
	tableMetaData:     true,
	tableTopChange:    true,
	tableCmdResult:    true,
}

// History serves read queries over the persisted tables.
type History struct {
	db *sql.DB
}

// NewHistory creates a history reader over an open database.
func NewHistory(db *sql.DB) *History {
	return &History{db: db}
}

// ValidTable reports whether the table may be queried.
func ValidTable(table string) bool {
	return historyTables[table]
}

// Query returns the most recent rows of one table as generic records,
// newest first, optionally filtered by device.
//
// Parameters:
//   - ctx: Context for cancellation
//   - table: Whitelisted table name
//   - deviceID: Filter; empty means all devices
//   - limit: Row cap; 0 means the default, values above the maximum
//     are clamped
//
// Returns:
//   - []map[string]any: One map per row, keyed by column name
//   - error: ErrUnknownTable for a non-whitelisted table, or a driver
//     error
func (h *History) Query(ctx context.Context, table, deviceID string, limit int) ([]map[string]any, error) {
	if !ValidTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := "SELECT * FROM " + table
	var args []any
	if deviceID != "" {
		query += " WHERE device_id = ?"
		args = append(args, deviceID)
	}
	query += " ORDER BY update_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("history columns %s: %w", table, err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("history scan %s: %w", table, err)
		}

		record := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		out = append(out, record)
	}
	return out, rows.Err()
}
