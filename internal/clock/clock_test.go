package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSequence_StartsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), NewSequence().Current())
	assert.Equal(t, int64(100), NewSequenceAt(100).Current())
}

func TestSequence_NextIncrements(t *testing.T) {
	s := NewSequence()
	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(2), s.Next())
	assert.Equal(t, int64(2), s.Current())
}

func TestSequence_Concurrent(t *testing.T) {
	s := NewSequence()
	const goroutines, perGoroutine = 10, 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				v := s.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
	assert.Equal(t, int64(goroutines*perGoroutine), s.Current())
}

func TestSystem_Now(t *testing.T) {
	before := time.Now().UnixMilli()
	now := System{}.Now()
	assert.GreaterOrEqual(t, now, before)
}

func TestSystem_AfterFuncFiresAndStops(t *testing.T) {
	fired := make(chan struct{})
	System{}.AfterFunc(1, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	tm := System{}.AfterFunc(60_000, func() { t.Error("stopped timer fired") })
	assert.True(t, tm.Stop())
}
