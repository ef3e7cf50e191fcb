package provider

import (
	"database/sql"
	"fmt"

	"github.com/roach88/resdb/internal/address"
)

// Cursor is a forward-only result set. It carries the address observers
// should watch to learn that its contents went stale.
type Cursor struct {
	*sql.Rows
	address address.Address
}

// NotificationAddress returns the queried address.
func (c *Cursor) NotificationAddress() address.Address {
	return c.address
}

// Row is one result row keyed by column name. Text and blob values are
// returned as strings.
type Row map[string]any

// ReadAll reads the remaining rows and closes the cursor.
func (c *Cursor) ReadAll() ([]Row, error) {
	defer c.Close()

	cols, err := c.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	rows := []Row{}
	for c.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := c.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		rows = append(rows, row)
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return rows, nil
}
