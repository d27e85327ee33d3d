// ABOUTME: TTL cache of recently issued keys, bounded in size
// ABOUTME: Session ids are reserved here so a just-released id is not handed out again

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// sweepInterval is how often the background sweeper drops expired keys.
const sweepInterval = time.Minute

type entry struct {
	key     string
	expires time.Time
}

// Cache remembers keys for a fixed TTL. Every key shares the same TTL, so the
// insertion list is also the expiry order and sweeping stops at the first live key.
type Cache struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // *entry, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache holding keys for ttl, keeping at most maxSize of them.
// A background goroutine sweeps expired keys until Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Contains reports whether key was reserved within the TTL.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return false
	}
	return c.now().Before(el.Value.(*entry).expires)
}

// CheckAndMark reserves key unless it is already live.
// Returns true when key was already present (the caller must pick another).
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.index[key]; ok {
		if now.Before(el.Value.(*entry).expires) {
			return true
		}
		c.removeLocked(el)
	}

	for c.maxSize > 0 && c.order.Len() >= c.maxSize {
		c.removeLocked(c.order.Front())
	}
	c.index[key] = c.order.PushBack(&entry{key: key, expires: now.Add(c.ttl)})
	return false
}

// Len returns the number of keys held, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) removeLocked(el *list.Element) {
	c.order.Remove(el)
	delete(c.index, el.Value.(*entry).key)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops expired keys from the front of the list.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if now.Before(el.Value.(*entry).expires) {
			return
		}
		c.removeLocked(el)
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
