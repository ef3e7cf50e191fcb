package provider_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resdb/internal/address"
	"github.com/roach88/resdb/internal/provider"
	"github.com/roach88/resdb/internal/testutil"
)

const batchYAML = `
- op: insert
  address: content://app/notes
  values: {title: first}
- op: insert
  address: content://app/tags
  values: {label: pinned}
  value_refs: {note_id: 0}
- op: update
  address: content://app/tags
  values: {label: starred}
  where: note_id = ?
  args: [0]
  arg_refs: {0: 0}
- op: assert
  address: content://app/notes/1
  values: {title: first}
  expect_count: 1
`

func TestDecodeOperations(t *testing.T) {
	ops, err := provider.DecodeOperations(strings.NewReader(batchYAML))
	require.NoError(t, err)
	require.Len(t, ops, 4)

	assert.Equal(t, provider.OpInsert, ops[0].Type)
	assert.Equal(t, notes, ops[0].Address)
	assert.Equal(t, provider.Values{"title": "first"}, ops[0].Values)
	assert.Equal(t, map[string]int{"note_id": 0}, ops[1].ValueBackRefs)
	assert.Equal(t, "note_id = ?", ops[2].Where)
	assert.Equal(t, map[int]int{0: 0}, ops[2].SelectionBackRefs)
	assert.Equal(t, provider.OpAssert, ops[3].Type)
	require.NotNil(t, ops[3].ExpectedCount)
	assert.Equal(t, int64(1), *ops[3].ExpectedCount)

	p, s, rec := testutil.NewProvider(t)
	_, err = p.ApplyBatch(context.Background(), ops)
	require.NoError(t, err)

	var label string
	require.NoError(t, s.DB().QueryRow("SELECT label FROM tags WHERE note_id = 1").Scan(&label))
	assert.Equal(t, "starred", label)
	assert.Len(t, rec.Changes(), 2)
}

func TestDecodeOperationsEmpty(t *testing.T) {
	ops, err := provider.DecodeOperations(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDecodeOperationsErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown op", "- op: upsert\n  address: content://app/notes\n", `unknown op "upsert"`},
		{"bad address", "- op: delete\n  address: notes\n", "invalid address"},
		{"unknown field", "- op: delete\n  address: content://app/notes\n  filter: x\n", "filter"},
		{"not a list", "op: delete\n", "parse operations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.DecodeOperations(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecodedAddressIsAddressError(t *testing.T) {
	_, err := provider.DecodeOperations(strings.NewReader("- op: delete\n  address: notes\n"))
	assert.True(t, address.IsAddressError(err))
}
