package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/clock"
)

// DefaultRemoveTimeout bounds how long Remove waits for a device to
// terminate.
const DefaultRemoveTimeout = 5000 * time.Millisecond

// Registry errors.
var (
	ErrDeviceExists      = errors.New("device already exists")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrCreationCancelled = errors.New("device creation cancelled")
	ErrNotInitialized    = errors.New("device not initialized")
)

// State is the lifecycle state of a registry entry.
type State uint8

const (
	// StateCreated means the device was constructed but not initialized.
	StateCreated State = iota

	// StateInitializing means Init is in progress.
	StateInitializing

	// StateInitialized means the device receives states.
	StateInitialized

	// StateTerminating means Remove is in progress.
	StateTerminating

	// StateRemoved is reported for ids the registry no longer holds.
	StateRemoved
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateInitializing:
		return "INITIALIZING"
	case StateInitialized:
		return "INITIALIZED"
	case StateTerminating:
		return "TERMINATING"
	case StateRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

type entry struct {
	handle *Handle
	state  State
}

// Registry owns the device handles of one conductor.
//
// Creation of a device is long-running and cancellable, so the registry
// guards its map with its own mutex rather than going through the
// conductor's action queue. An id is reserved as soon as creation starts;
// a second Create for the same id fails with ErrDeviceExists until the
// first one has either produced a device or been abandoned.
type Registry struct {
	factories     *Factories
	clock         clock.Clock
	emit          EmitFunc
	removeTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock sets the clock handed to factories. Default: clock.System.
func WithClock(c clock.Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = c
	}
}

// WithEmit sets the sink for device events. Every event is stamped with
// the emitting device's id.
func WithEmit(fn EmitFunc) RegistryOption {
	return func(r *Registry) {
		r.emit = fn
	}
}

// WithRemoveTimeout overrides DefaultRemoveTimeout.
func WithRemoveTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.removeTimeout = d
		}
	}
}

// NewRegistry creates an empty registry building devices with factories.
func NewRegistry(factories *Factories, opts ...RegistryOption) *Registry {
	r := &Registry{
		factories:     factories,
		clock:         clock.System{},
		emit:          discard,
		removeTimeout: DefaultRemoveTimeout,
		entries:       make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type created struct {
	dev Device
	err error
}

// Create builds the device without initializing it.
//
// The factory runs detached from ctx. If ctx ends first, Create returns an
// error wrapping both ErrCreationCancelled and ctx.Err(), the id is
// released, and whatever the factory eventually produces is terminated in
// the background.
func (r *Registry) Create(ctx context.Context, id string, cfg Config) (*Handle, error) {
	factory, err := r.factories.Lookup(cfg.Type)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDeviceExists, id)
	}
	reserved := &entry{state: StateCreated}
	r.entries[id] = reserved
	r.mu.Unlock()

	params := Params{
		DeviceID: id,
		Type:     cfg.Type,
		Options:  cfg.Options,
		Emit:     r.emitterFor(id),
		Clock:    r.clock,
	}

	result := make(chan created, 1)
	go func() {
		dev, err := factory(context.WithoutCancel(ctx), params)
		result <- created{dev: dev, err: err}
	}()

	select {
	case res := <-result:
		if res.err != nil {
			r.release(id, reserved)
			return nil, fmt.Errorf("create device %q: %w", id, res.err)
		}
		h := newHandle(id, cfg.Type, res.dev)
		r.mu.Lock()
		reserved.handle = h
		r.mu.Unlock()
		slog.Debug("device created", "device_id", id, "type", cfg.Type)
		return h, nil

	case <-ctx.Done():
		r.release(id, reserved)
		go func() {
			res := <-result
			if res.err != nil || res.dev == nil {
				return
			}
			slog.Info("terminating abandoned device", "device_id", id)
			tctx, cancel := context.WithTimeout(context.Background(), r.removeTimeout)
			defer cancel()
			if err := res.dev.Terminate(tctx); err != nil {
				slog.Warn("abandoned device terminate failed", "device_id", id, "error", err)
			}
		}()
		return nil, fmt.Errorf("%w: %q: %w", ErrCreationCancelled, id, ctx.Err())
	}
}

// Init initializes a created device. On cancellation or failure the device
// is torn down and removed from the registry.
func (r *Registry) Init(ctx context.Context, id string, options map[string]any) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.handle == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	if e.state != StateCreated {
		r.mu.Unlock()
		return fmt.Errorf("init device %q: state is %s", id, e.state)
	}
	e.state = StateInitializing
	h := e.handle
	r.mu.Unlock()

	err := h.Init(ctx, options)
	if err == nil {
		r.mu.Lock()
		e.state = StateInitialized
		r.mu.Unlock()
		slog.Info("device initialized", "device_id", id, "type", h.Type())
		return nil
	}

	r.release(id, e)
	go r.terminate(h)
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %q: %w", ErrCreationCancelled, id, ctx.Err())
	}
	return fmt.Errorf("init device %q: %w", id, err)
}

// Add creates and initializes a device.
func (r *Registry) Add(ctx context.Context, id string, cfg Config) (*Handle, error) {
	h, err := r.Create(ctx, id, cfg)
	if err != nil {
		return nil, err
	}
	if err := r.Init(ctx, id, cfg.Options); err != nil {
		return nil, err
	}
	return h, nil
}

// Remove terminates a device and drops it from the registry. The entry is
// removed even when termination fails or exceeds the remove timeout; the
// error is returned for reporting.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.handle == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	if e.state == StateTerminating {
		r.mu.Unlock()
		return fmt.Errorf("remove device %q: already terminating", id)
	}
	e.state = StateTerminating
	h := e.handle
	r.mu.Unlock()

	tctx, cancel := context.WithTimeout(ctx, r.removeTimeout)
	defer cancel()
	err := h.Terminate(tctx)

	r.release(id, e)
	slog.Info("device removed", "device_id", id)
	if err != nil {
		return fmt.Errorf("remove device %q: %w", id, err)
	}
	return nil
}

// RemoveAll removes every device, continuing past failures.
func (r *Registry) RemoveAll(ctx context.Context) error {
	var errs []error
	for _, id := range r.IDs() {
		if err := r.Remove(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns the handle for id, whatever its state.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

// State returns the lifecycle state of id. Unknown ids report StateRemoved.
func (r *Registry) State(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return StateRemoved
	}
	return e.state
}

// IDs returns the ids of all devices that have a handle, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.handle != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Initialized returns the handles of initialized devices, sorted by id.
func (r *Registry) Initialized() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, 0, len(r.entries))
	for _, e := range r.entries {
		if e.handle != nil && e.state == StateInitialized {
			out = append(out, e.handle)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// release drops id if it still refers to e.
func (r *Registry) release(id string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[id] == e {
		delete(r.entries, id)
	}
}

func (r *Registry) terminate(h *Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), r.removeTimeout)
	defer cancel()
	if err := h.Terminate(ctx); err != nil {
		slog.Warn("device terminate failed", "device_id", h.ID(), "error", err)
	}
}

func (r *Registry) emitterFor(id string) EmitFunc {
	return func(ev Event) {
		ev.DeviceID = id
		r.emit(ev)
	}
}
