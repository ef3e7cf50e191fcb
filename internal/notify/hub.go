package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/juju/pubsub/v2"

	"github.com/roach88/resdb/internal/address"
)

// TopicPrefix starts every change topic.
const TopicPrefix = "change:"

// Topic returns the hub topic for changes at a.
func Topic(a address.Address) string {
	return TopicPrefix + a.String()
}

// Hub publishes changes to a pubsub.SimpleHub. Handlers run on hub-owned
// goroutines, so delivery is asynchronous to the notifying caller.
type Hub struct {
	hub    *pubsub.SimpleHub
	logger *slog.Logger

	mu      sync.Mutex
	pending []func()
}

// NewHub creates a hub. A nil logger uses slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: hubLogger{logger: logger.With("component", "hub")},
		}),
		logger: logger,
	}
}

// Notify publishes c on Topic(c.Address). A change with a non-positive
// count is dropped.
func (h *Hub) Notify(ctx context.Context, c Change) {
	if c.Count <= 0 {
		h.logger.ErrorContext(ctx, "dropping change without affected rows",
			"address", c.Address.String(),
			"count", c.Count)
		return
	}
	wait := h.hub.Publish(Topic(c.Address), c)
	h.mu.Lock()
	h.pending = append(h.pending, wait)
	h.mu.Unlock()
}

// Drain blocks until every change published so far has been handled.
func (h *Hub) Drain() {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()
	for _, wait := range pending {
		wait()
	}
}

// Subscribe registers fn for changes at exactly a. The returned function
// unsubscribes.
func (h *Hub) Subscribe(a address.Address, fn Observer) func() {
	return h.hub.Subscribe(Topic(a), h.handler(fn))
}

// SubscribeAll registers fn for every change published on the hub.
func (h *Hub) SubscribeAll(fn Observer) func() {
	return h.hub.SubscribeMatch(func(topic string) bool {
		return strings.HasPrefix(topic, TopicPrefix)
	}, h.handler(fn))
}

func (h *Hub) handler(fn Observer) func(string, interface{}) {
	return func(topic string, data interface{}) {
		c, ok := data.(Change)
		if !ok {
			h.logger.Error("unexpected hub payload", "topic", topic, "type", fmt.Sprintf("%T", data))
			return
		}
		fn(c)
	}
}

// hubLogger routes the hub's own diagnostics to slog.
type hubLogger struct {
	logger *slog.Logger
}

func (l hubLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l hubLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l hubLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l hubLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l hubLogger) Tracef(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
