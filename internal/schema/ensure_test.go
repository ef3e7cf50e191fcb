package schema

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resdb/internal/store"
)

const notesV1 = `
version: 1
table: notes: {
	columns: {
		title: {type: "text", notNull: true}
		body: {type: "text"}
	}
	unique: [["title"]]
}
`

const notesV2 = `
version: 2
table: notes: {
	columns: {
		title: {type: "text", notNull: true}
		body: {type: "text"}
		rank: {type: "integer", notNull: true, default: 7}
	}
	unique: [["title"]]
}
`

func mustParse(t *testing.T, src string) *Definition {
	t.Helper()
	def, err := Parse([]byte(src), "test.cue")
	require.NoError(t, err)
	return def
}

func openStore(t *testing.T, path string, version int, def *Definition) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Path: path, Name: "application.db", Version: version}, def)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func userVersionOf(t *testing.T, s *store.Store) int {
	t.Helper()
	var v int
	require.NoError(t, s.DB().QueryRow("PRAGMA user_version").Scan(&v))
	return v
}

func columnNames(t *testing.T, s *store.Store, table string) []string {
	t.Helper()
	rows, err := s.DB().Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestEnsureCreatesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	s := openStore(t, path, 0, mustParse(t, notesV1))

	tables, err := s.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, tables)
	assert.ElementsMatch(t, []string{"_id", "title", "body"}, columnNames(t, s, "notes"))
	assert.Equal(t, 1, userVersionOf(t, s))
}

func TestEnsureExplicitVersionWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	s := openStore(t, path, 5, mustParse(t, notesV1))

	_, err := s.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, userVersionOf(t, s))
}

func TestEnsureIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	def := mustParse(t, notesV1)
	ctx := context.Background()

	first := openStore(t, path, 0, def)
	sess, err := first.Writable(ctx)
	require.NoError(t, err)
	_, err = sess.Insert(ctx, "notes", store.Values{"title": "kept"})
	require.NoError(t, err)
	require.NoError(t, sess.Release())
	require.NoError(t, first.Close())

	second := openStore(t, path, 0, def)
	_, err = second.Tables(ctx)
	require.NoError(t, err)

	var n int
	require.NoError(t, second.DB().QueryRow("SELECT COUNT(*) FROM notes").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestEnsureUpgradeAddsColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	ctx := context.Background()

	v1 := openStore(t, path, 0, mustParse(t, notesV1))
	sess, err := v1.Writable(ctx)
	require.NoError(t, err)
	_, err = sess.Insert(ctx, "notes", store.Values{"title": "old"})
	require.NoError(t, err)
	require.NoError(t, sess.Release())
	require.NoError(t, v1.Close())

	v2 := openStore(t, path, 0, mustParse(t, notesV2))
	_, err = v2.Tables(ctx)
	require.NoError(t, err)

	assert.Contains(t, columnNames(t, v2, "notes"), "rank")
	assert.Equal(t, 2, userVersionOf(t, v2))

	var rank int
	require.NoError(t, v2.DB().QueryRow("SELECT rank FROM notes WHERE title = 'old'").Scan(&rank))
	assert.Equal(t, 7, rank)
}

func TestEnsureRefusesNewerDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	ctx := context.Background()

	v2 := openStore(t, path, 0, mustParse(t, notesV2))
	_, err := v2.Tables(ctx)
	require.NoError(t, err)
	require.NoError(t, v2.Close())

	v1 := openStore(t, path, 0, mustParse(t, notesV1))
	_, err = v1.Writable(ctx)
	require.Error(t, err)
	assert.True(t, store.IsEngineError(err))
	assert.Contains(t, err.Error(), "newer than schema version 1")
}

func TestEnsureRejectsNotNullWithoutDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	ctx := context.Background()

	v1 := openStore(t, path, 0, mustParse(t, notesV1))
	_, err := v1.Tables(ctx)
	require.NoError(t, err)
	require.NoError(t, v1.Close())

	bad := mustParse(t, `
version: 2
table: notes: columns: {
	title: {type: "text", notNull: true}
	body: {type: "text"}
	slug: {type: "text", notNull: true}
}
`)
	s := openStore(t, path, 0, bad)
	_, err = s.Writable(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT NULL column needs a default")

	// The failed upgrade rolled back.
	assert.Equal(t, 1, userVersionOf(t, s))
	assert.NotContains(t, columnNames(t, s, "notes"), "slug")
}
