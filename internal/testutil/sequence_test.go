package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resdb/internal/notify"
	"github.com/roach88/resdb/internal/provider"
)

var _ notify.Sequencer = (*Sequence)(nil)

func TestSequence_NextAndReset(t *testing.T) {
	seq := NewSequence()
	assert.Equal(t, int64(0), seq.Current())

	assert.Equal(t, int64(1), seq.Next())
	assert.Equal(t, int64(2), seq.Next())
	assert.Equal(t, int64(2), seq.Current())
	assert.Equal(t, 2, seq.Issued())

	seq.Reset()
	assert.Equal(t, int64(0), seq.Current())
	assert.Equal(t, 0, seq.Issued())
	assert.Equal(t, int64(1), seq.Next())
}

func TestSequence_ConcurrentNextIsUnique(t *testing.T) {
	seq := NewSequence()
	const workers, calls = 50, 100

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				v := seq.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*calls)
	assert.Equal(t, int64(workers*calls), seq.Current())
}

func TestSequence_StampsProviderChanges(t *testing.T) {
	seq := NewSequence()
	p, _, rec := NewProvider(t, provider.WithSequencer(seq))
	ctx := context.Background()

	_, err := p.Insert(ctx, Notes, provider.Values{"title": "a"})
	require.NoError(t, err)
	_, err = p.Insert(ctx, Notes, provider.Values{"title": "b"})
	require.NoError(t, err)

	// An update matching nothing is not stamped.
	n, err := p.Update(ctx, Notes, provider.Values{"body": "x"}, "title = ?", []any{"missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	changes := rec.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, int64(1), changes[0].Seq)
	assert.Equal(t, int64(2), changes[1].Seq)
	assert.Equal(t, 2, seq.Issued())
}
