package provider

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/resdb/internal/address"
	"github.com/roach88/resdb/internal/notify"
	"github.com/roach88/resdb/internal/store"
)

// Query reads rows at a. An item address selects its row by _id and
// ignores where and whereArgs. A collection address applies where,
// whereArgs and the groupBy, having and limit parameters of its query.
// The caller must close the cursor.
func (p *Provider) Query(ctx context.Context, a address.Address, columns []string, where string, whereArgs []any, orderBy string) (*Cursor, error) {
	r, err := p.resolve(a)
	if err != nil {
		return nil, err
	}

	sel := store.Select{Columns: columns, OrderBy: orderBy}
	switch r.Kind {
	case address.Item:
		sel.Where = store.QuoteIdent(store.IDColumn) + " = ?"
		sel.Args = []any{r.ID}
	case address.Collection:
		mods, err := address.ModifiersOf(a)
		if err != nil {
			return nil, err
		}
		sel.Where = where
		sel.Args = whereArgs
		sel.GroupBy = mods.GroupBy
		sel.Having = mods.Having
		sel.Limit = mods.Limit
	default:
		return nil, &RoutingError{Op: "query", Address: a.String(), Reason: "unknown address kind"}
	}

	h, err := p.readable(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := h.Query(ctx, r.Table, sel)
	if err != nil {
		return nil, err
	}
	p.logger.DebugContext(ctx, "query",
		"address", a.String(),
		"table", r.Table,
		"kind", r.Kind.String())
	return &Cursor{Rows: rows, address: a}, nil
}

// Insert adds a row at a and returns the address of the new row: a itself
// for an item address, a with the generated id appended for a collection.
// Values for an item address get its id as _id. Inside an enclosing
// transaction the original address is returned and nothing is notified.
func (p *Provider) Insert(ctx context.Context, a address.Address, values Values) (address.Address, error) {
	out, _, err := p.insert(ctx, a, values)
	return out, err
}

// insert also returns the generated row id.
func (p *Provider) insert(ctx context.Context, a address.Address, values Values) (address.Address, int64, error) {
	r, err := p.resolve(a)
	if err != nil {
		return address.Address{}, 0, err
	}
	_, _, notifyAt, err := p.target("insert", a, r, "", nil)
	if err != nil {
		return address.Address{}, 0, err
	}
	if r.Kind == address.Item {
		values = withID(values, r.ID)
	}

	var (
		out   address.Address
		rowID int64
	)
	err = p.mutate(ctx, func(sess *store.Session, owner bool) ([]notify.Change, error) {
		id, err := sess.Insert(ctx, r.Table, values)
		if err != nil {
			return nil, err
		}
		rowID = id
		p.logger.DebugContext(ctx, "insert",
			"address", a.String(),
			"table", r.Table,
			"row_id", id,
			"nested", !owner)

		out = a
		if owner && r.Kind == address.Collection {
			out = address.WithID(a, id)
		}
		return []notify.Change{{Address: notifyAt, Count: 1}}, nil
	})
	if err != nil {
		return address.Address{}, 0, err
	}
	return out, rowID, nil
}

// Update sets values on the rows at a and returns how many changed.
func (p *Provider) Update(ctx context.Context, a address.Address, values Values, where string, whereArgs []any) (int64, error) {
	r, err := p.resolve(a)
	if err != nil {
		return 0, err
	}
	where, whereArgs, notifyAt, err := p.target("update", a, r, where, whereArgs)
	if err != nil {
		return 0, err
	}

	var n int64
	err = p.mutate(ctx, func(sess *store.Session, owner bool) ([]notify.Change, error) {
		affected, err := sess.Update(ctx, r.Table, values, where, whereArgs)
		if err != nil {
			return nil, err
		}
		n = affected
		p.logger.DebugContext(ctx, "update",
			"address", a.String(),
			"table", r.Table,
			"rows", n,
			"nested", !owner)
		return []notify.Change{{Address: notifyAt, Count: n}}, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Delete removes the rows at a and returns how many were removed.
func (p *Provider) Delete(ctx context.Context, a address.Address, where string, whereArgs []any) (int64, error) {
	r, err := p.resolve(a)
	if err != nil {
		return 0, err
	}
	where, whereArgs, notifyAt, err := p.target("delete", a, r, where, whereArgs)
	if err != nil {
		return 0, err
	}

	var n int64
	err = p.mutate(ctx, func(sess *store.Session, owner bool) ([]notify.Change, error) {
		affected, err := sess.Delete(ctx, r.Table, where, whereArgs)
		if err != nil {
			return nil, err
		}
		n = affected
		p.logger.DebugContext(ctx, "delete",
			"address", a.String(),
			"table", r.Table,
			"rows", n,
			"nested", !owner)
		return []notify.Change{{Address: notifyAt, Count: n}}, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// BulkInsert inserts every row into the collection at a atomically and
// emits a single notification with the inserted count. Item addresses are
// rejected before anything is touched.
func (p *Provider) BulkInsert(ctx context.Context, a address.Address, rows []Values) (int64, error) {
	r, err := p.resolve(a)
	if err != nil {
		return 0, err
	}
	switch r.Kind {
	case address.Collection:
	case address.Item:
		return 0, &RoutingError{Op: "bulk-insert", Address: a.String(), Reason: "cannot bulk-insert into an item address"}
	default:
		return 0, &RoutingError{Op: "bulk-insert", Address: a.String(), Reason: "unknown address kind"}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	notifyAt, err := p.cache.Base(a)
	if err != nil {
		return 0, err
	}

	batch := p.ids.Generate()
	var inserted int64
	err = p.mutate(ctx, func(sess *store.Session, owner bool) ([]notify.Change, error) {
		view := p.Bind(sess)
		err := p.transact(ctx, sess, func() error {
			for i, values := range rows {
				if _, _, err := view.insert(ctx, a, values); err != nil {
					return fmt.Errorf("bulk insert row %d: %w", i, err)
				}
				inserted++
			}
			return nil
		})
		if err != nil {
			inserted = 0
			return nil, err
		}
		p.logger.DebugContext(ctx, "bulk insert",
			"address", a.String(),
			"table", r.Table,
			"rows", inserted,
			"batch", batch,
			"nested", !owner)
		return []notify.Change{{Address: notifyAt, Count: inserted, Batch: batch}}, nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ResourceKind describes a: "collection-of-<table>" or "item-of-<table>".
func (p *Provider) ResourceKind(a address.Address) (string, error) {
	return address.ResourceKind(a)
}

// Clear deletes every row of every table in one transaction. It does not
// notify.
func (p *Provider) Clear(ctx context.Context) error {
	return p.mutate(ctx, func(sess *store.Session, owner bool) ([]notify.Change, error) {
		err := p.transact(ctx, sess, func() error {
			tables, err := sess.Tables(ctx)
			if err != nil {
				return err
			}
			for _, table := range tables {
				n, err := sess.Delete(ctx, table, "", nil)
				if err != nil {
					return err
				}
				p.logger.DebugContext(ctx, "clear", "table", table, "rows", n)
			}
			return nil
		})
		return nil, err
	})
}

func withID(values Values, id int64) Values {
	out := make(Values, len(values)+1)
	maps.Copy(out, values)
	out[store.IDColumn] = id
	return out
}
