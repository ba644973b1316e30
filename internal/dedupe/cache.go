// ABOUTME: TTL cache of recently seen event IDs
// ABOUTME: Bridges persisted backfill and the live tail without duplicates

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Cache remembers event IDs for a bounded window. SSE streams replay
// persisted events before tailing live ones; an event published during
// the replay appears in both sources, and the cache drops the second
// copy. Bounded by TTL and max size, oldest entries evicted first.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

type entry struct {
	at   time.Time
	elem *list.Element
}

// New creates a cache. A background goroutine prunes expired entries
// until Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.pruneLoop()
	return c
}

// Mark records an ID as seen.
func (c *Cache) Mark(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mark(id)
}

// CheckAndMark reports whether the ID was already seen, marking it
// either way. The check and mark are one atomic step.
func (c *Cache) CheckAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok && time.Since(e.at) < c.ttl {
		return true
	}
	c.mark(id)
	return false
}

func (c *Cache) mark(id string) {
	now := time.Now()
	if e, ok := c.entries[id]; ok {
		e.at = now
		c.order.MoveToBack(e.elem)
		return
	}
	if len(c.entries) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			delete(c.entries, front.Value.(string))
			c.order.Remove(front)
		}
	}
	c.entries[id] = &entry{at: now, elem: c.order.PushBack(id)}
}

func (c *Cache) pruneLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.prune()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for id, e := range c.entries {
		if now.Sub(e.at) > c.ttl {
			c.order.Remove(e.elem)
			delete(c.entries, id)
		}
	}
}

// Close stops the prune goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
