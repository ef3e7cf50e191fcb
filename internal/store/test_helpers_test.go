package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// notesSchema creates a small notes table.
var notesSchema = SchemaFunc(func(ctx context.Context, ex Execer, name string, version int) error {
	_, err := ex.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS notes (
			_id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL UNIQUE,
			body TEXT
		)
	`)
	return err
})

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(Config{Path: path, Name: "test.db", Version: 1}, notesSchema)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// acquire acquires the writable session and releases it on cleanup.
func acquire(t *testing.T, s *Store) *Session {
	t.Helper()
	sess, err := s.Writable(context.Background())
	if err != nil {
		t.Fatalf("Writable() failed: %v", err)
	}
	t.Cleanup(func() { sess.Release() })
	return sess
}

// countRows returns the number of rows in table via the pool.
func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + quoteIdent(table)).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// getTableColumns returns the column names of a table.
func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("PRAGMA table_info(" + quoteIdent(table) + ")")
	if err != nil {
		t.Fatalf("table_info %s: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid       int
			name      string
			typ       string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &pk); err != nil {
			t.Fatalf("scan table_info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
