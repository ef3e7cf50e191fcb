package notify

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/resdb/internal/address"
)

// Observer is called with each matching change.
type Observer func(Change)

type subscription struct {
	id          uint64
	at          address.Address
	descendants bool
	fn          Observer
}

// Registry is an in-process observer registry. Notify dispatches
// synchronously on the caller's goroutine, in subscription order.
// Observers must not subscribe or unsubscribe from inside a callback on
// the same registry they are called from; they may do so from any other
// goroutine.
type Registry struct {
	mu     sync.RWMutex
	next   uint64
	subs   map[uint64]subscription
	logger *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		subs:   make(map[uint64]subscription),
		logger: logger,
	}
}

// Subscribe registers fn for changes at exactly a. The returned function
// removes the subscription and may be called more than once.
func (r *Registry) Subscribe(a address.Address, fn Observer) func() {
	return r.add(subscription{at: a, fn: fn})
}

// SubscribeDescendants registers fn for changes at a and every address
// below it. Registering scheme://authority with no path observes every
// table of that authority.
func (r *Registry) SubscribeDescendants(a address.Address, fn Observer) func() {
	return r.add(subscription{at: a, descendants: true, fn: fn})
}

func (r *Registry) add(s subscription) func() {
	r.mu.Lock()
	r.next++
	s.id = r.next
	r.subs[s.id] = s
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, s.id)
			r.mu.Unlock()
		})
	}
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Notify delivers c to every matching observer. A change with a
// non-positive count is dropped.
func (r *Registry) Notify(ctx context.Context, c Change) {
	if c.Count <= 0 {
		r.logger.ErrorContext(ctx, "dropping change without affected rows",
			"address", c.Address.String(),
			"count", c.Count)
		return
	}

	r.mu.RLock()
	matched := make([]subscription, 0, len(r.subs))
	for _, s := range r.subs {
		if matches(s, c.Address) {
			matched = append(matched, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].id < matched[j].id })
	for _, s := range matched {
		s.fn(c)
	}
}

func matches(s subscription, a address.Address) bool {
	if s.at == a {
		return true
	}
	if !s.descendants {
		return false
	}
	if s.at.Scheme() != a.Scheme() || s.at.Authority() != a.Authority() {
		return false
	}
	prefix := s.at.Segments()
	segments := a.Segments()
	if len(prefix) > len(segments) {
		return false
	}
	for i := range prefix {
		if prefix[i] != segments[i] {
			return false
		}
	}
	return true
}
