package testutil

import (
	"context"
	"sync"

	"github.com/roach88/resdb/internal/notify"
)

// Recorder is a notify.Notifier that keeps every change it receives.
//
// Thread-safety: Recorder is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	changes []notify.Change
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify records c.
func (r *Recorder) Notify(_ context.Context, c notify.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

// Observe records c. It has the notify.Observer signature.
func (r *Recorder) Observe(c notify.Change) {
	r.Notify(context.Background(), c)
}

// Changes returns a copy of the recorded changes in arrival order.
func (r *Recorder) Changes() []notify.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Change(nil), r.changes...)
}

// Len returns the number of recorded changes.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

// Reset forgets every recorded change.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = nil
}
