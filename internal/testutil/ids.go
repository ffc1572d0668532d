package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator returns "<prefix>-1", "<prefix>-2", ... so that tests can
// assert on generated activation ids.
//
// Thread-safety: safe for concurrent use.
type FixedIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedIDGenerator creates a generator. An empty prefix becomes "test-id".
func NewFixedIDGenerator(prefix string) *FixedIDGenerator {
	if prefix == "" {
		prefix = "test-id"
	}
	return &FixedIDGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
