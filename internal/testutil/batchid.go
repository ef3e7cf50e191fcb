package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable batch ids: "<prefix>-1",
// "<prefix>-2", and so on. Implements provider.IDGenerator.
//
// This keeps batch ids in recorded changes and golden output stable
// across runs.
//
// Thread-safety: SequentialIDs is safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix uses "batch".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "batch"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
