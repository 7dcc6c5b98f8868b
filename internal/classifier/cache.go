package classifier

import (
	"container/list"
	"sync"
)

// domainCache is an explicit bounded LRU for per-domain relevance scores.
// Many items share hosting domains, and a domain-level judgement is cheap to
// reuse. Capacity and eviction are visible here rather than hidden behind a
// memoized function so they can be tested.
type domainCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	entries  map[string]*list.Element
}

type cacheEntry struct {
	domain string
	score  int
}

func newDomainCache(capacity int) *domainCache {
	if capacity <= 0 {
		capacity = 128
	}
	return &domainCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

func (c *domainCache) get(domain string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[domain]
	if !ok {
		return 0, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).score, true
}

func (c *domainCache) put(domain string, score int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[domain]; ok {
		el.Value.(*cacheEntry).score = score
		c.order.MoveToFront(el)
		return
	}

	c.entries[domain] = c.order.PushFront(&cacheEntry{domain: domain, score: score})

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).domain)
	}
}

func (c *domainCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
