// ABOUTME: Thread-safe TTL cache of recently resolved action ids and their outcome.
// ABOUTME: Lets dispatch loops tell a late duplicate result from an unknown id.

package recent

import (
	"container/list"
	"sync"
	"time"

	"github.com/notssh/notssh/internal/store"
)

type entry struct {
	state    store.ActionState
	resolved time.Time
	element  *list.Element
}

// Cache remembers, for a bounded time and count, which state each resolved
// action ended in. Insertion order is kept in a linked list so the oldest
// entry is evicted in O(1) when the cache is full.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // action ids, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache holding at most maxSize ids for ttl each.
// A background goroutine periodically drops expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Record notes that actionID was resolved into state.
func (c *Cache) Record(actionID string, state store.ActionState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, exists := c.entries[actionID]; exists {
		e.state = state
		e.resolved = now
		c.order.MoveToBack(e.element)
		return
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[actionID] = &entry{
		state:    state,
		resolved: now,
		element:  c.order.PushBack(actionID),
	}
}

// Lookup returns the state actionID was resolved into, if it was resolved
// within the TTL.
func (c *Cache) Lookup(actionID string) (store.ActionState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[actionID]
	if !ok || c.now().Sub(e.resolved) >= c.ttl {
		return "", false
	}
	return e.state, true
}

// Len returns the number of entries, expired ones included until cleanup.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, id)
}

func (c *Cache) cleanup() {
	interval := time.Minute
	if c.ttl > 0 && c.ttl < interval {
		interval = c.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.expire()
		case <-c.done:
			return
		}
	}
}

// expire drops entries older than the TTL. Entries are ordered by
// resolution time, so the scan stops at the first live one.
func (c *Cache) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		id, _ := front.Value.(string)
		e := c.entries[id]
		if now.Sub(e.resolved) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.entries, id)
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
