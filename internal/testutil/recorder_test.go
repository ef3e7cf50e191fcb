package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resdb/internal/address"
	"github.com/roach88/resdb/internal/notify"
)

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	a := address.MustParse("content://app/notes")

	rec.Notify(context.Background(), notify.Change{Address: a, Count: 1})
	rec.Observe(notify.Change{Address: a, Count: 2})

	require.Equal(t, 2, rec.Len())
	assert.Equal(t, int64(2), rec.Changes()[1].Count)

	rec.Reset()
	assert.Equal(t, 0, rec.Len())
	assert.Empty(t, rec.Changes())
}

func TestNewProvider(t *testing.T) {
	p, s, rec := NewProvider(t)

	out, err := p.Insert(context.Background(), Notes, map[string]any{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, "content://app/notes/1", out.String())
	assert.Equal(t, 1, CountRows(t, s, "notes"))
	assert.Equal(t, []notify.Change{{Address: Notes, Count: 1, Seq: 1}}, rec.Changes())
}
