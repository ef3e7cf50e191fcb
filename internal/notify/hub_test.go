package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resdb/internal/address"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, "change:content://app/notes", Topic(notes))
}

func TestHubDelivers(t *testing.T) {
	hub := NewHub(nil)
	got := make(chan Change, 4)
	unsub := hub.Subscribe(notes, func(c Change) { got <- c })
	defer unsub()

	hub.Notify(context.Background(), Change{Address: tags, Count: 1})
	hub.Notify(context.Background(), Change{Address: notes, Count: 2, Batch: "b"})

	select {
	case c := <-got:
		assert.Equal(t, Change{Address: notes, Count: 2, Batch: "b"}, c)
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}

	select {
	case c := <-got:
		t.Fatalf("unexpected change %v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsEmptyChanges(t *testing.T) {
	hub := NewHub(nil)
	got := make(chan Change, 1)
	defer hub.Subscribe(notes, func(c Change) { got <- c })()

	hub.Notify(context.Background(), Change{Address: notes, Count: 0})

	select {
	case c := <-got:
		t.Fatalf("unexpected change %v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubWithRegistry(t *testing.T) {
	hub := NewHub(nil)
	reg := NewRegistry(nil)
	var rec recorder
	reg.Subscribe(notes, rec.observe)

	got := make(chan Change, 1)
	defer hub.Subscribe(address.New("content", "app", "notes"), func(c Change) { got <- c })()

	Multi{reg, hub}.Notify(context.Background(), Change{Address: notes, Count: 1})

	require.Len(t, rec.got(), 1)
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not deliver")
	}
}

func TestHubSubscribeAllAndDrain(t *testing.T) {
	hub := NewHub(nil)
	var (
		mu  sync.Mutex
		got []Change
	)
	defer hub.SubscribeAll(func(c Change) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})()

	hub.Notify(context.Background(), Change{Address: notes, Count: 1})
	hub.Notify(context.Background(), Change{Address: tags, Count: 2})
	hub.Drain()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []Change{
		{Address: notes, Count: 1},
		{Address: tags, Count: 2},
	}, got)

	// Nothing pending: returns at once.
	hub.Drain()
}
