package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/resdb/internal/address"
	"github.com/roach88/resdb/internal/provider"
	"github.com/roach88/resdb/internal/schema"
	"github.com/roach88/resdb/internal/store"
)

// NotesSchema declares the tables most tests use.
const NotesSchema = `
version: 1

table: notes: {
	columns: {
		title: {type: "text", notNull: true}
		body: {type: "text"}
	}
	unique: [["title"]]
}

table: tags: {
	columns: {
		note_id: {type: "integer"}
		label: {type: "text"}
	}
}
`

// Addresses of the NotesSchema tables.
var (
	Notes = address.MustParse("content://app/notes")
	Tags  = address.MustParse("content://app/tags")
)

// NewStore opens a store in a temporary directory with the given CUE
// schema. An empty schema uses NotesSchema. The store is closed on cleanup.
func NewStore(t *testing.T, cue string) *store.Store {
	t.Helper()
	if cue == "" {
		cue = NotesSchema
	}
	def, err := schema.Parse([]byte(cue), "test.cue")
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	s, err := store.Open(store.Config{
		Path: filepath.Join(t.TempDir(), "application.db"),
		Name: "application.db",
	}, def)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// NewProvider opens a NotesSchema store and a provider over it that
// reports to a new Recorder. Sequence numbers and batch ids are
// deterministic unless opts override them.
func NewProvider(t *testing.T, opts ...provider.Option) (*provider.Provider, *store.Store, *Recorder) {
	t.Helper()
	s := NewStore(t, "")
	rec := NewRecorder()
	base := []provider.Option{
		provider.WithSequencer(NewSequence()),
		provider.WithIDGenerator(NewSequentialIDs("")),
	}
	return provider.New(s, rec, append(base, opts...)...), s, rec
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, s *store.Store, table string) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM " + store.QuoteIdent(table)).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
