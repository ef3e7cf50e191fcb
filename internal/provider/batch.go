package provider

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strconv"

	"github.com/roach88/resdb/internal/address"
	"github.com/roach88/resdb/internal/notify"
	"github.com/roach88/resdb/internal/store"
)

// OpType is the kind of a batch operation.
type OpType int

const (
	OpInsert OpType = iota + 1
	OpUpdate
	OpDelete
	OpAssert
)

func (t OpType) String() string {
	switch t {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpAssert:
		return "assert"
	default:
		return "unknown"
	}
}

// Operation is one step of a batch. Build it with NewInsert, NewUpdate,
// NewDelete or NewAssertQuery and the With methods, which return modified
// copies.
type Operation struct {
	Type    OpType
	Address address.Address
	Values  Values

	Where     string
	WhereArgs []any

	// ValueBackRefs maps a column to the index of an earlier result whose
	// value it takes.
	ValueBackRefs map[string]int

	// SelectionBackRefs maps a where argument position to the index of an
	// earlier result whose value it takes.
	SelectionBackRefs map[int]int

	// ExpectedCount is checked by assert operations when set.
	ExpectedCount *int64
}

// NewInsert starts an insert at a.
func NewInsert(a address.Address) Operation {
	return Operation{Type: OpInsert, Address: a}
}

// NewUpdate starts an update at a.
func NewUpdate(a address.Address) Operation {
	return Operation{Type: OpUpdate, Address: a}
}

// NewDelete starts a delete at a.
func NewDelete(a address.Address) Operation {
	return Operation{Type: OpDelete, Address: a}
}

// NewAssertQuery starts an assertion on the rows at a. It fails the batch
// unless the expected count and values match.
func NewAssertQuery(a address.Address) Operation {
	return Operation{Type: OpAssert, Address: a}
}

// WithValues merges values into the operation.
func (o Operation) WithValues(values Values) Operation {
	o.Values = cloneValues(o.Values)
	maps.Copy(o.Values, values)
	return o
}

// WithValue sets one value.
func (o Operation) WithValue(column string, value any) Operation {
	o.Values = cloneValues(o.Values)
	o.Values[column] = value
	return o
}

// WithSelection sets the where clause and its arguments.
func (o Operation) WithSelection(where string, args ...any) Operation {
	o.Where = where
	o.WhereArgs = append([]any(nil), args...)
	return o
}

// WithValueBackReference makes column take the value of result index.
func (o Operation) WithValueBackReference(column string, index int) Operation {
	refs := make(map[string]int, len(o.ValueBackRefs)+1)
	maps.Copy(refs, o.ValueBackRefs)
	refs[column] = index
	o.ValueBackRefs = refs
	return o
}

// WithSelectionBackReference makes where argument argIndex take the value
// of result index.
func (o Operation) WithSelectionBackReference(argIndex, index int) Operation {
	refs := make(map[int]int, len(o.SelectionBackRefs)+1)
	maps.Copy(refs, o.SelectionBackRefs)
	refs[argIndex] = index
	o.SelectionBackRefs = refs
	return o
}

// WithExpectedCount sets the row count an assert operation expects.
func (o Operation) WithExpectedCount(n int64) Operation {
	o.ExpectedCount = &n
	return o
}

// Result is the outcome of one batch operation.
type Result struct {
	// Address is the operation's address for inserts, and for updates and
	// deletes that affected rows. Zero otherwise.
	Address address.Address

	// Count is the number of affected or matched rows.
	Count int64

	// RowID is the generated id of an insert.
	RowID int64
}

// ApplyBatch applies ops in order inside one transaction. Either every
// operation succeeds and the batch commits, or the first failure is
// returned as a *BatchError and nothing persists.
//
// After commit one notification is emitted per distinct collection
// address among the results, each carrying len(ops). A nested batch run
// through a bound view joins the enclosing transaction and does not
// notify.
func (p *Provider) ApplyBatch(ctx context.Context, ops []Operation) ([]Result, error) {
	if len(ops) == 0 {
		return []Result{}, nil
	}

	batch := p.ids.Generate()
	logger := p.logger.With("batch", batch)

	var results []Result
	err := p.mutate(ctx, func(sess *store.Session, owner bool) ([]notify.Change, error) {
		view := p.Bind(sess)
		var applied []Result
		err := p.transact(ctx, sess, func() error {
			applied = make([]Result, 0, len(ops))
			for i, op := range ops {
				res, err := view.apply(ctx, op, ops, applied, i)
				if err != nil {
					return &BatchError{Index: i, Op: op.Type, Address: op.Address.String(), Err: err}
				}
				applied = append(applied, res)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		results = applied
		logger.DebugContext(ctx, "batch applied", "ops", len(ops), "nested", !owner)

		bases, err := p.distinctBases(results)
		if err != nil {
			return nil, err
		}
		changes := make([]notify.Change, len(bases))
		for i, base := range bases {
			changes[i] = notify.Change{Address: base, Count: int64(len(ops)), Batch: batch}
		}
		return changes, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// distinctBases returns the base addresses of results in first-seen order.
func (p *Provider) distinctBases(results []Result) ([]address.Address, error) {
	seen := make(map[address.Address]bool)
	var bases []address.Address
	for _, res := range results {
		if res.Address.IsZero() {
			continue
		}
		base, err := p.cache.Base(res.Address)
		if err != nil {
			return nil, err
		}
		if !seen[base] {
			seen[base] = true
			bases = append(bases, base)
		}
	}
	return bases, nil
}

// apply runs one operation on a bound view. prior holds the results of
// ops[:index].
func (p *Provider) apply(ctx context.Context, op Operation, ops []Operation, prior []Result, index int) (Result, error) {
	values, err := resolveValueRefs(op, ops, prior, index)
	if err != nil {
		return Result{}, err
	}
	args, err := resolveSelectionRefs(op, ops, prior, index)
	if err != nil {
		return Result{}, err
	}

	switch op.Type {
	case OpInsert:
		_, rowID, err := p.insert(ctx, op.Address, values)
		if err != nil {
			return Result{}, err
		}
		return Result{Address: op.Address, Count: 1, RowID: rowID}, nil
	case OpUpdate:
		n, err := p.Update(ctx, op.Address, values, op.Where, args)
		if err != nil {
			return Result{}, err
		}
		return countResult(op.Address, n), nil
	case OpDelete:
		n, err := p.Delete(ctx, op.Address, op.Where, args)
		if err != nil {
			return Result{}, err
		}
		return countResult(op.Address, n), nil
	case OpAssert:
		n, err := p.assert(ctx, op, values, args)
		if err != nil {
			return Result{}, err
		}
		return Result{Count: n}, nil
	default:
		return Result{}, fmt.Errorf("unknown operation type %d", op.Type)
	}
}

func countResult(a address.Address, n int64) Result {
	if n == 0 {
		return Result{}
	}
	return Result{Address: a, Count: n}
}

// assert queries the rows at op.Address and compares them with the
// expected count and values.
func (p *Provider) assert(ctx context.Context, op Operation, values Values, args []any) (int64, error) {
	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	projection := []string{store.QuoteIdent(store.IDColumn)}
	if len(columns) > 0 {
		projection = make([]string, len(columns))
		for i, col := range columns {
			projection[i] = store.QuoteIdent(col)
		}
	}

	cur, err := p.Query(ctx, op.Address, projection, op.Where, args, "")
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	var n int64
	for cur.Next() {
		row := make([]any, len(projection))
		ptrs := make([]any, len(projection))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := cur.Scan(ptrs...); err != nil {
			return 0, fmt.Errorf("scan assert row: %w", err)
		}
		for i, col := range columns {
			want, got := assertText(values[col]), assertText(row[i])
			if want != got {
				return 0, &AssertionError{Address: op.Address.String(), Column: col, Expected: want, Actual: got}
			}
		}
		n++
	}
	if err := cur.Err(); err != nil {
		return 0, fmt.Errorf("iterate assert rows: %w", err)
	}

	if op.ExpectedCount != nil && *op.ExpectedCount != n {
		return 0, &AssertionError{
			Address:  op.Address.String(),
			Expected: strconv.FormatInt(*op.ExpectedCount, 10),
			Actual:   strconv.FormatInt(n, 10),
		}
	}
	return n, nil
}

// assertText renders a value the way assertions compare it.
func assertText(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}

// backRefValue is the value an earlier result contributes: the row id of
// an insert, the count of anything else.
func backRefValue(ops []Operation, prior []Result, ref, index int) (int64, error) {
	if ref < 0 || ref >= index || ref >= len(prior) {
		return 0, fmt.Errorf("back reference to operation %d from operation %d", ref, index)
	}
	if ops[ref].Type == OpInsert {
		return prior[ref].RowID, nil
	}
	return prior[ref].Count, nil
}

func resolveValueRefs(op Operation, ops []Operation, prior []Result, index int) (Values, error) {
	if len(op.ValueBackRefs) == 0 {
		return op.Values, nil
	}
	values := cloneValues(op.Values)
	for col, ref := range op.ValueBackRefs {
		v, err := backRefValue(ops, prior, ref, index)
		if err != nil {
			return nil, fmt.Errorf("value %s: %w", col, err)
		}
		values[col] = v
	}
	return values, nil
}

func resolveSelectionRefs(op Operation, ops []Operation, prior []Result, index int) ([]any, error) {
	if len(op.SelectionBackRefs) == 0 {
		return op.WhereArgs, nil
	}
	size := len(op.WhereArgs)
	for argIndex := range op.SelectionBackRefs {
		if argIndex < 0 {
			return nil, fmt.Errorf("negative selection argument index %d", argIndex)
		}
		if argIndex >= size {
			size = argIndex + 1
		}
	}
	args := make([]any, size)
	copy(args, op.WhereArgs)
	for argIndex, ref := range op.SelectionBackRefs {
		v, err := backRefValue(ops, prior, ref, index)
		if err != nil {
			return nil, fmt.Errorf("selection argument %d: %w", argIndex, err)
		}
		args[argIndex] = v
	}
	return args, nil
}

func cloneValues(v Values) Values {
	out := make(Values, len(v))
	maps.Copy(out, v)
	return out
}
