package notify

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/roach88/resdb/internal/address"
)

// Change reports that rows under a collection address were modified.
type Change struct {
	// Address is the canonical collection address.
	Address address.Address

	// Count is the number of affected rows, or the operation count for
	// batch notifications. Always positive.
	Count int64

	// Batch correlates the notifications of one batch or bulk insert.
	// Empty for single operations.
	Batch string

	// Seq orders changes emitted by one producer.
	Seq int64
}

func (c Change) String() string {
	if c.Batch != "" {
		return fmt.Sprintf("%s (%d rows, batch %s)", c.Address, c.Count, c.Batch)
	}
	return fmt.Sprintf("%s (%d rows)", c.Address, c.Count)
}

// Notifier receives committed changes.
type Notifier interface {
	Notify(ctx context.Context, c Change)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, c Change)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, c Change) {
	f(ctx, c)
}

// Discard drops every change.
var Discard Notifier = NotifierFunc(func(context.Context, Change) {})

// Multi fans a change out to every notifier in order.
type Multi []Notifier

// Notify forwards c to each notifier.
func (m Multi) Notify(ctx context.Context, c Change) {
	for _, n := range m {
		n.Notify(ctx, c)
	}
}

// Sequencer hands out change sequence numbers.
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock for stamping changes.
// Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
