package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// ErrUnknownType is returned when no factory is registered for a device type.
var ErrUnknownType = errors.New("unknown device type")

// Factory builds a device. It may be slow (opening connections, spawning
// helpers) and may be abandoned by the caller; see Registry.Create.
type Factory func(ctx context.Context, p Params) (Device, error)

// Factories maps device types to their factory.
//
// Thread-safety: safe for concurrent use.
type Factories struct {
	mu        sync.RWMutex
	factories map[timeline.DeviceType]Factory
}

// NewFactories creates an empty set.
func NewFactories() *Factories {
	return &Factories{factories: make(map[timeline.DeviceType]Factory)}
}

// DefaultFactories returns the built-in device types.
func DefaultFactories() *Factories {
	f := NewFactories()
	f.Register(TypeAbstract, NewAbstract)
	return f
}

// Register adds or replaces the factory for typ.
func (f *Factories) Register(typ timeline.DeviceType, factory Factory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factories[typ] = factory
}

// Lookup returns the factory for typ.
func (f *Factories) Lookup(typ timeline.DeviceType) (Factory, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	factory, ok := f.factories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return factory, nil
}

// Types lists the registered types in sorted order.
func (f *Factories) Types() []timeline.DeviceType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]timeline.DeviceType, 0, len(f.factories))
	for t := range f.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
