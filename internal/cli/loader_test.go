package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSchemaFile(t *testing.T) {
	def, err := LoadSchema("testdata/schema.cue")
	require.NoError(t, err)
	assert.Equal(t, 1, def.Version)
	require.Len(t, def.Tables, 2)
	assert.Equal(t, "notes", def.Tables[0].Name)
}

func TestLoadSchemaDirectory(t *testing.T) {
	def, err := LoadSchema("testdata/schemadir")
	require.NoError(t, err)
	assert.Equal(t, 1, def.Version)
	require.Len(t, def.Tables, 2)
	assert.Equal(t, "notes", def.Tables[0].Name)
	assert.Equal(t, "tags", def.Tables[1].Name)
}

func TestLoadSchemaEmptyPath(t *testing.T) {
	def, err := LoadSchema("")
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestLoadSchemaNotFound(t *testing.T) {
	_, err := LoadSchema(filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Message, "schema not found")
}

func TestLoadSchemaEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not cue"), 0644))

	_, err := LoadSchema(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files found")
}

func TestLoadSchemaCompileErrorHasPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(path, []byte("table: notes: {\n"), 0644))

	_, err := LoadSchema(path)
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.True(t, loadErr.Pos.IsValid())
	assert.Contains(t, err.Error(), "bad.cue:")
}

func TestLoadSchemaInvalidTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.cue")
	require.NoError(t, os.WriteFile(path, []byte(`table: notes: columns: title: {type: "float"}`), 0644))

	_, err := LoadSchema(path)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestFindCUEFiles(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "nested")
	require.NoError(t, os.MkdirAll(subDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "root.cue"), []byte("package test"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "notcue.txt"), []byte("not a cue file"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "nested.cue"), []byte("package test"), 0644))

	files, err := FindCUEFiles(tmpDir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
