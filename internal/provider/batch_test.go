package provider_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resdb/internal/address"
	"github.com/roach88/resdb/internal/notify"
	"github.com/roach88/resdb/internal/provider"
	"github.com/roach88/resdb/internal/store"
	"github.com/roach88/resdb/internal/testutil"
)

// countingGateway counts writable acquisitions.
type countingGateway struct {
	*store.Store
	writable atomic.Int32
}

func (g *countingGateway) Writable(ctx context.Context) (*store.Session, error) {
	g.writable.Add(1)
	return g.Store.Writable(ctx)
}

func seedTag(t *testing.T, p *provider.Provider, rec *testutil.Recorder, label string) {
	t.Helper()
	_, err := p.Insert(context.Background(), tags, provider.Values{"label": label})
	require.NoError(t, err)
	rec.Reset()
}

func TestApplyBatchNotifiesDistinctBases(t *testing.T) {
	p, s, rec := testutil.NewProvider(t)
	seedTag(t, p, rec, "old")

	results, err := p.ApplyBatch(context.Background(), []provider.Operation{
		provider.NewInsert(notes).WithValue("title", "a"),
		provider.NewInsert(notes).WithValue("title", "b"),
		provider.NewDelete(tags).WithSelection("label = ?", "old"),
	})
	require.NoError(t, err)

	assert.Equal(t, []provider.Result{
		{Address: notes, Count: 1, RowID: 1},
		{Address: notes, Count: 1, RowID: 2},
		{Address: tags, Count: 1},
	}, results)
	assert.Equal(t, 2, testutil.CountRows(t, s, "notes"))
	assert.Equal(t, 0, testutil.CountRows(t, s, "tags"))

	assert.Equal(t, []notify.Change{
		{Address: notes, Count: 3, Batch: "batch-1", Seq: 2},
		{Address: tags, Count: 3, Batch: "batch-1", Seq: 3},
	}, rec.Changes())
}

func TestApplyBatchDeduplicatesItemAddresses(t *testing.T) {
	p, _, rec := testutil.NewProvider(t)

	_, err := p.ApplyBatch(context.Background(), []provider.Operation{
		provider.NewInsert(item(notes, 10)).WithValue("title", "a"),
		provider.NewInsert(notes).WithValue("title", "b"),
		provider.NewUpdate(item(notes, 10)).WithValue("body", "x"),
	})
	require.NoError(t, err)

	changes := rec.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, notes, changes[0].Address)
	assert.Equal(t, int64(3), changes[0].Count)
}

func TestApplyBatchFailureRollsBack(t *testing.T) {
	p, s, rec := testutil.NewProvider(t)

	results, err := p.ApplyBatch(context.Background(), []provider.Operation{
		provider.NewInsert(notes).WithValue("title", "a"),
		provider.NewInsert(notes).WithValue("title", "b"),
		provider.NewInsert(notes).WithValue("title", "a"),
	})
	require.Error(t, err)
	assert.Nil(t, results)

	var be *provider.BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 2, be.Index)
	assert.Equal(t, provider.OpInsert, be.Op)
	assert.True(t, store.IsConstraint(err))

	assert.Equal(t, 0, testutil.CountRows(t, s, "notes"))
	assert.Empty(t, rec.Changes())
}

// explodingValue panics when the driver asks for its value.
type explodingValue struct{}

func (explodingValue) Value() (driver.Value, error) {
	panic("value exploded")
}

func TestApplyBatchPanicRollsBackAndReleasesSession(t *testing.T) {
	p, s, rec := testutil.NewProvider(t)

	assert.PanicsWithValue(t, "value exploded", func() {
		_, _ = p.ApplyBatch(context.Background(), []provider.Operation{
			provider.NewInsert(notes).WithValue("title", "a"),
			provider.NewInsert(notes).WithValue("title", explodingValue{}),
		})
	})
	assert.Equal(t, 0, testutil.CountRows(t, s, "notes"))
	assert.Empty(t, rec.Changes())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := p.Insert(ctx, notes, provider.Values{"title": "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.CountRows(t, s, "notes"))
}

func TestApplyBatchInvalidAddressFailsBatch(t *testing.T) {
	p, s, rec := testutil.NewProvider(t)

	_, err := p.ApplyBatch(context.Background(), []provider.Operation{
		provider.NewInsert(notes).WithValue("title", "a"),
		provider.NewDelete(address.MustParse("content://app/notes/1/x")),
	})
	require.Error(t, err)
	assert.True(t, provider.IsBatchError(err))
	assert.True(t, address.IsAddressError(err))
	assert.Equal(t, 0, testutil.CountRows(t, s, "notes"))
	assert.Empty(t, rec.Changes())
}

func TestApplyBatchEmpty(t *testing.T) {
	gw := &countingGateway{Store: testutil.NewStore(t, "")}
	rec := testutil.NewRecorder()
	p := provider.New(gw, rec)

	results, err := p.ApplyBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, gw.writable.Load())
	assert.Empty(t, rec.Changes())
}

func TestApplyBatchNestedOperationsShareSession(t *testing.T) {
	gw := &countingGateway{Store: testutil.NewStore(t, "")}
	rec := testutil.NewRecorder()
	p := provider.New(gw, rec)

	_, err := p.ApplyBatch(context.Background(), []provider.Operation{
		provider.NewInsert(notes).WithValue("title", "a"),
		provider.NewUpdate(notes).WithValue("body", "x"),
		provider.NewAssertQuery(notes).WithExpectedCount(1),
		provider.NewDelete(item(notes, 1)),
	})
	require.NoError(t, err)

	assert.Equal(t, int32(1), gw.writable.Load(), "nested operations must reuse the batch session")
	changes := rec.Changes()
	require.Len(t, changes, 1, "only the batch notifies")
	assert.Equal(t, int64(4), changes[0].Count)
}

func TestApplyBatchUpdateWithoutRowsHasNoAddress(t *testing.T) {
	p, _, rec := testutil.NewProvider(t)

	results, err := p.ApplyBatch(context.Background(), []provider.Operation{
		provider.NewUpdate(tags).WithValue("label", "x"),
		provider.NewInsert(notes).WithValue("title", "a"),
	})
	require.NoError(t, err)

	assert.True(t, results[0].Address.IsZero())
	assert.Zero(t, results[0].Count)

	changes := rec.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, notes, changes[0].Address)
	assert.Equal(t, int64(2), changes[0].Count)
}

func TestApplyBatchBackReferences(t *testing.T) {
	p, s, rec := testutil.NewProvider(t)

	results, err := p.ApplyBatch(context.Background(), []provider.Operation{
		provider.NewInsert(notes).WithValue("title", "n"),
		provider.NewInsert(tags).WithValue("label", "l").WithValueBackReference("note_id", 0),
		provider.NewUpdate(tags).
			WithValue("label", "m").
			WithSelection("note_id = ?", nil).
			WithSelectionBackReference(0, 0),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(1), results[2].Count)

	var (
		noteID int64
		label  string
	)
	require.NoError(t, s.DB().QueryRow("SELECT note_id, label FROM tags").Scan(&noteID, &label))
	assert.Equal(t, results[0].RowID, noteID)
	assert.Equal(t, "m", label)
	assert.Len(t, rec.Changes(), 2)
}

func TestApplyBatchCountBackReference(t *testing.T) {
	p, s, _ := testutil.NewProvider(t)
	ctx := context.Background()

	_, err := p.BulkInsert(ctx, notes, []provider.Values{{"title": "a"}, {"title": "b"}})
	require.NoError(t, err)

	_, err = p.ApplyBatch(ctx, []provider.Operation{
		provider.NewUpdate(notes).WithValue("body", "x"),
		provider.NewInsert(tags).WithValue("label", "count").WithValueBackReference("note_id", 0),
	})
	require.NoError(t, err)

	var noteID int64
	require.NoError(t, s.DB().QueryRow("SELECT note_id FROM tags").Scan(&noteID))
	assert.Equal(t, int64(2), noteID)
}

func TestApplyBatchForwardBackReferenceFails(t *testing.T) {
	p, s, rec := testutil.NewProvider(t)

	_, err := p.ApplyBatch(context.Background(), []provider.Operation{
		provider.NewInsert(tags).WithValue("label", "l").WithValueBackReference("note_id", 1),
		provider.NewInsert(notes).WithValue("title", "n"),
	})
	require.Error(t, err)

	var be *provider.BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 0, be.Index)
	assert.Contains(t, err.Error(), "back reference to operation 1 from operation 0")
	assert.Equal(t, 0, testutil.CountRows(t, s, "tags"))
	assert.Empty(t, rec.Changes())
}

func TestApplyBatchAssert(t *testing.T) {
	p, s, rec := testutil.NewProvider(t)
	ctx := context.Background()

	_, err := p.Insert(ctx, notes, provider.Values{"title": "a", "body": "x"})
	require.NoError(t, err)
	rec.Reset()

	results, err := p.ApplyBatch(ctx, []provider.Operation{
		provider.NewAssertQuery(notes).WithSelection("title = ?", "a").WithExpectedCount(1),
		provider.NewAssertQuery(item(notes, 1)).WithValues(provider.Values{"title": "a", "body": "x"}),
		provider.NewInsert(notes).WithValue("title", "b"),
	})
	require.NoError(t, err)
	assert.Equal(t, provider.Result{Count: 1}, results[0])
	assert.Equal(t, provider.Result{Count: 1}, results[1])
	assert.Equal(t, 2, testutil.CountRows(t, s, "notes"))

	changes := rec.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, int64(3), changes[0].Count)
}

func TestApplyBatchAssertFailures(t *testing.T) {
	tests := []struct {
		name    string
		assert  provider.Operation
		wantMsg string
	}{
		{
			name:    "count",
			assert:  provider.NewAssertQuery(notes).WithExpectedCount(5),
			wantMsg: "expected 5 rows, found 2",
		},
		{
			name:    "value",
			assert:  provider.NewAssertQuery(item(notes, 1)).WithValue("title", "zzz"),
			wantMsg: `column title expected "zzz", found "a"`,
		},
		{
			name:    "missing item",
			assert:  provider.NewAssertQuery(item(notes, 9)).WithExpectedCount(1),
			wantMsg: "expected 1 rows, found 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, s, rec := testutil.NewProvider(t)
			ctx := context.Background()
			_, err := p.Insert(ctx, notes, provider.Values{"title": "a"})
			require.NoError(t, err)
			rec.Reset()

			_, err = p.ApplyBatch(ctx, []provider.Operation{
				provider.NewInsert(notes).WithValue("title", "b"),
				tt.assert,
			})
			require.Error(t, err)
			assert.True(t, provider.IsAssertionError(err))
			assert.True(t, strings.Contains(err.Error(), tt.wantMsg), err.Error())

			assert.Equal(t, 1, testutil.CountRows(t, s, "notes"))
			assert.Empty(t, rec.Changes())
		})
	}
}

func TestNestedApplyBatchJoinsTransaction(t *testing.T) {
	p, s, rec := testutil.NewProvider(t)
	ctx := context.Background()

	sess, err := s.Writable(ctx)
	require.NoError(t, err)
	defer sess.Release()
	require.NoError(t, sess.BeginNonExclusive(ctx))

	view := p.Bind(sess)
	_, err = view.ApplyBatch(ctx, []provider.Operation{
		provider.NewInsert(notes).WithValue("title", "a"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Depth())

	require.NoError(t, sess.MarkSuccessful())
	require.NoError(t, sess.End(ctx))

	assert.Equal(t, 1, testutil.CountRows(t, s, "notes"))
	assert.Empty(t, rec.Changes(), "a nested batch does not notify")
}

func TestNestedApplyBatchFailureDoomsOuter(t *testing.T) {
	p, s, rec := testutil.NewProvider(t)
	ctx := context.Background()

	sess, err := s.Writable(ctx)
	require.NoError(t, err)
	defer sess.Release()
	require.NoError(t, sess.BeginNonExclusive(ctx))

	view := p.Bind(sess)
	_, err = view.Insert(ctx, notes, provider.Values{"title": "outer"})
	require.NoError(t, err)

	_, err = view.ApplyBatch(ctx, []provider.Operation{
		provider.NewInsert(notes).WithValue("title", "outer"),
	})
	require.Error(t, err)

	require.NoError(t, sess.MarkSuccessful())
	err = sess.End(ctx)
	assert.ErrorIs(t, err, store.ErrNestedScopeFailed)

	assert.Equal(t, 0, testutil.CountRows(t, s, "notes"))
	assert.Empty(t, rec.Changes())
}

func TestOperationBuildersCopy(t *testing.T) {
	base := provider.NewInsert(notes).WithValue("title", "a")
	derived := base.WithValue("title", "b").WithValueBackReference("note_id", 0)

	assert.Equal(t, "a", base.Values["title"])
	assert.Equal(t, "b", derived.Values["title"])
	assert.Empty(t, base.ValueBackRefs)
	assert.Equal(t, "insert", base.Type.String())
}
