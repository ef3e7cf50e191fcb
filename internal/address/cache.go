package address

import (
	"sync"
	"sync/atomic"
)

// Cache memoizes table names and base addresses per address.
//
// Values are pure functions of their key, so concurrent callers may race to
// store the same entry; the loser's value is identical and simply dropped.
// Entries are never evicted. A nil *Cache is valid and recomputes on every
// call.
type Cache struct {
	tables sync.Map // Address -> string
	bases  sync.Map // Address -> Address

	size atomic.Int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// TableName returns the cached table name for a, computing it on a miss.
// Invalid addresses are never cached.
func (c *Cache) TableName(a Address) (string, error) {
	if c == nil {
		return TableName(a)
	}
	if v, ok := c.tables.Load(a); ok {
		return v.(string), nil
	}
	table, err := TableName(a)
	if err != nil {
		return "", err
	}
	if _, loaded := c.tables.LoadOrStore(a, table); !loaded {
		c.size.Add(1)
	}
	return table, nil
}

// Base returns the cached base address for a, computing it on a miss.
func (c *Cache) Base(a Address) (Address, error) {
	if c == nil {
		return Base(a)
	}
	if v, ok := c.bases.Load(a); ok {
		return v.(Address), nil
	}
	table, err := c.TableName(a)
	if err != nil {
		return Address{}, err
	}
	base := New(a.scheme, a.authority, table)
	if _, loaded := c.bases.LoadOrStore(a, base); !loaded {
		c.size.Add(1)
	}
	return base, nil
}

// Resolve classifies a. Classification is cheap and not cached, but the
// table name is taken from the cache.
func (c *Cache) Resolve(a Address) (Resolved, error) {
	r, err := Resolve(a)
	if err != nil {
		return Resolved{}, err
	}
	if c != nil {
		// Warm the table entry for the mutation that usually follows.
		if _, err := c.TableName(a); err != nil {
			return Resolved{}, err
		}
	}
	return r, nil
}

// Len returns the total number of cached entries across both maps.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return int(c.size.Load())
}
