package testutil

import (
	"sort"
	"sync"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/clock"
)

// ManualClock is a clock.Clock whose time only moves when a test says so.
//
// Timers fire synchronously inside Advance/Set, in due-time order, on the
// calling goroutine. The lock is not held while a timer callback runs, so
// callbacks may call Now or AfterFunc.
//
// Thread-safety: All methods are safe for concurrent use.
type ManualClock struct {
	mu     sync.Mutex
	now    int64
	seq    int64
	timers []*manualTimer
}

var _ clock.Clock = (*ManualClock)(nil)

type manualTimer struct {
	c   *ManualClock
	at  int64
	seq int64
	f   func()
}

// NewManualClock creates a clock reading start.
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f at Now()+delay. A non-positive delay is due
// immediately but still only fires on the next Advance or Set.
func (c *ManualClock) AfterFunc(delay int64, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	c.seq++
	t := &manualTimer{c: c, at: c.now + delay, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Stop implements clock.Timer.
func (t *manualTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	for i, other := range t.c.timers {
		if other == t {
			t.c.timers = append(t.c.timers[:i], t.c.timers[i+1:]...)
			return true
		}
	}
	return false
}

// Advance moves time forward by d and fires every timer that became due.
func (c *ManualClock) Advance(d int64) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	c.Set(target)
}

// Set moves time to t (never backwards) and fires every timer that became
// due, including timers scheduled by callbacks that are due by t.
func (c *ManualClock) Set(t int64) {
	for {
		c.mu.Lock()
		if t < c.now {
			t = c.now
		}
		sort.SliceStable(c.timers, func(i, j int) bool {
			if c.timers[i].at != c.timers[j].at {
				return c.timers[i].at < c.timers[j].at
			}
			return c.timers[i].seq < c.timers[j].seq
		})
		if len(c.timers) == 0 || c.timers[0].at > t {
			c.now = t
			c.mu.Unlock()
			return
		}
		next := c.timers[0]
		c.timers = c.timers[1:]
		if next.at > c.now {
			c.now = next.at
		}
		c.mu.Unlock()

		next.f()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
