package resolver

import (
	"fmt"
	"sync"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

type cacheKey struct {
	hash       string
	time       int64
	limitTime  int64
	limitCount int
}

// Cache memoizes the most recent result of an IntervalResolver, keyed by
// the timeline content hash and the resolve window. It is itself an
// IntervalResolver and is safe for concurrent use.
type Cache struct {
	resolver IntervalResolver

	mu     sync.Mutex
	key    cacheKey
	last   *Resolved
	hits   int
	misses int
}

var _ IntervalResolver = (*Cache)(nil)

// NewCache wraps r.
func NewCache(r IntervalResolver) *Cache {
	return &Cache{resolver: r}
}

// Resolve implements IntervalResolver.
func (c *Cache) Resolve(tl *timeline.Timeline, time, limitTime int64, limitCount int) (*Resolved, error) {
	hash, err := tl.Hash()
	if err != nil {
		return nil, fmt.Errorf("resolve cache: %w", err)
	}
	key := cacheKey{hash: hash, time: time, limitTime: limitTime, limitCount: limitCount}

	c.mu.Lock()
	if c.last != nil && c.key == key {
		c.hits++
		r := c.last
		c.mu.Unlock()
		return r, nil
	}
	c.misses++
	c.mu.Unlock()

	r, err := c.resolver.Resolve(tl, time, limitTime, limitCount)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.key = key
	c.last = r
	c.mu.Unlock()
	return r, nil
}

// Invalidate drops the memoized result.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = nil
	c.key = cacheKey{}
}

// Stats returns the number of hits and misses so far.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
