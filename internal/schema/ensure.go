package schema

import (
	"context"
	"fmt"

	"github.com/roach88/resdb/internal/store"
)

// Ensure creates missing tables and columns and records the version.
// A version of 0 or less uses the version declared in the schema file.
// Implements store.Schema.
func (d *Definition) Ensure(ctx context.Context, ex store.Execer, name string, version int) error {
	target := version
	if target <= 0 {
		target = d.Version
	}

	current, err := userVersion(ctx, ex)
	if err != nil {
		return fmt.Errorf("ensure %s: %w", name, err)
	}
	if current > target {
		return fmt.Errorf("ensure %s: database version %d is newer than schema version %d", name, current, target)
	}

	if _, err := ex.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("ensure %s: begin: %w", name, err)
	}
	if err := d.apply(ctx, ex, target); err != nil {
		if _, rbErr := ex.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil {
			return fmt.Errorf("ensure %s: %w (rollback: %v)", name, err, rbErr)
		}
		return fmt.Errorf("ensure %s: %w", name, err)
	}
	if _, err := ex.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("ensure %s: commit: %w", name, err)
	}
	return nil
}

// apply runs inside the ensure transaction.
func (d *Definition) apply(ctx context.Context, ex store.Execer, version int) error {
	for _, t := range d.Tables {
		if _, err := ex.ExecContext(ctx, t.createStatement()); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}

		existing, err := tableColumns(ctx, ex, t.Name)
		if err != nil {
			return err
		}
		for _, c := range t.Columns {
			if existing[c.Name] {
				continue
			}
			if c.NotNull && c.Default == nil {
				return fmt.Errorf("add column %s.%s: NOT NULL column needs a default", t.Name, c.Name)
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", store.QuoteIdent(t.Name), c.definition())
			if _, err := ex.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("add column %s.%s: %w", t.Name, c.Name, err)
			}
		}
	}

	// PRAGMA does not accept bound parameters.
	if _, err := ex.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func userVersion(ctx context.Context, ex store.Execer) (int, error) {
	var version int
	if err := ex.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

func tableColumns(ctx context.Context, ex store.Execer, table string) (map[string]bool, error) {
	rows, err := ex.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("table info %s: %w", table, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	return cols, nil
}
