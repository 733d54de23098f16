package cache

import (
	"sync"

	"github.com/fragmede/hnreader/internal/api"
)

// State is the lifecycle stage of a cached ID.
type State int

const (
	Absent State = iota
	Pending
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "absent"
	}
}

// Entry is what the cache holds for one ID. Item is set only when Resolved;
// Attempts and Err only when Failed.
type Entry struct {
	State    State
	Item     *api.Item
	Attempts int
	Err      error
}

// Cache holds fetched items keyed by ID. Readers only ever see whole
// entries; all methods are safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[int]Entry
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[int]Entry)}
}

// Get looks id up without triggering a fetch.
func (c *Cache) Get(id int) Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return Entry{State: Absent}
	}
	return e
}

// Put stores a resolved item. Last write wins.
func (c *Cache) Put(id int, item *api.Item) {
	c.mu.Lock()
	c.entries[id] = Entry{State: Resolved, Item: item}
	c.mu.Unlock()
}

// MarkPending records that id is being fetched. An existing entry is left
// alone; the return value reports whether id was newly marked.
func (c *Cache) MarkPending(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; ok {
		return false
	}
	c.entries[id] = Entry{State: Pending}
	return true
}

// Reserve marks every absent ID in ids as Pending and returns them in
// order. IDs that already have an entry of any kind are skipped.
func (c *Cache) Reserve(ids []int) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var missing []int
	for _, id := range ids {
		if _, ok := c.entries[id]; ok {
			continue
		}
		c.entries[id] = Entry{State: Pending}
		missing = append(missing, id)
	}
	return missing
}

// MarkFailed records that every attempt for id failed.
func (c *Cache) MarkFailed(id, attempts int, err error) {
	c.mu.Lock()
	c.entries[id] = Entry{State: Failed, Attempts: attempts, Err: err}
	c.mu.Unlock()
}

// Forget drops the entry for id so the next window recompute fetches it
// again with a fresh attempt budget.
func (c *Cache) Forget(id int) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// EvictOutside removes every entry whose ID is not on a page of w and
// returns how many were dropped. In-flight fetches are not cancelled; their
// results may land after eviction and be evicted again later.
func (c *Cache) EvictOutside(w Window) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id := range c.entries {
		if !w.Contains(id) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[int]Entry)
	c.mu.Unlock()
}

// Len returns the number of entries in any state.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Counts tallies entries by state.
func (c *Cache) Counts() map[State]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[State]int, 3)
	for _, e := range c.entries {
		out[e.State]++
	}
	return out
}
