package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/clock"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/device"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/resolver"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// ErrStopped is returned by calls made after the conductor stopped.
var ErrStopped = errors.New("conductor stopped")

// Conductor is the scheduling engine.
//
// It owns the timeline, the mappings, the datastore and the device
// registry, and periodically resolves the timeline just ahead of real time
// and dispatches the per-device projections.
//
// CRITICAL: All engine state is owned by the Run loop goroutine. Public
// methods enqueue actions and (mostly) wait for them; the loop executes
// actions strictly one at a time, so a reset, a datastore update and a
// resolve cycle can never interleave.
//
// Thread-safety model:
//   - all public methods: safe from any goroutine, except from inside a
//     Listener (those run on the loop and would wait on themselves)
//   - Run(): must be called from exactly one goroutine
//
// The device registry is the one exception to loop ownership: creating a
// device is long-running and cancellable, so the registry has its own lock.
type Conductor struct {
	clock     clock.Clock
	intervals resolver.IntervalResolver
	fixer     *resolver.NowFixer
	factories *device.Factories
	registry  *device.Registry
	listeners []Listener
	ids       IDGenerator
	seq       *clock.Sequence

	proactive        bool
	multiplier       float64
	removeTimeout    time.Duration
	lifecycleTimeout time.Duration
	tick             int64
	lookahead        int64
	prepareTime      int64
	minTrigger       int64
	resolveLimit     int64
	callbackWait     int64

	queue          *actionQueue
	resolvePending atomic.Bool

	timerMu       sync.Mutex
	resolveTimer  clock.Timer
	tickTimer     clock.Timer
	callbackTimer clock.Timer

	// Published copies for introspection from other goroutines.
	publishedHash     atomic.Value // string
	publishedMappings atomic.Pointer[timeline.Mappings]

	st engineState
}

// engineState is everything only the loop goroutine touches.
type engineState struct {
	timeline  *timeline.Timeline
	mappings  timeline.Mappings
	datastore timeline.Datastore
	hash      string
	size      int // -1 until computed for the current timeline

	// nextResolveTime is the time the next cycle should resolve for;
	// 0 means "now".
	nextResolveTime int64

	cache     *resolveCache
	retained  map[string][]retainedState
	callbacks *callbackTracker
}

type resolveCache struct {
	resolved    *resolver.Resolved
	resolveTime int64
}

// New creates a Conductor. Call Run to start it.
func New(opts ...Option) *Conductor {
	c := &Conductor{
		clock:            clock.System{},
		intervals:        resolver.Interval{},
		factories:        device.DefaultFactories(),
		ids:              UUIDv7Generator{},
		seq:              clock.NewSequence(),
		multiplier:       1,
		removeTimeout:    device.DefaultRemoveTimeout,
		lifecycleTimeout: DefaultLifecycleTimeout,
		tick:             DefaultTickInterval,
		lookahead:        DefaultLookahead,
		prepareTime:      DefaultPrepareTime,
		minTrigger:       DefaultMinTriggerTime,
		resolveLimit:     DefaultResolveLimit,
		callbackWait:     DefaultCallbackWait,
		queue:            newActionQueue(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.fixer = resolver.NewNowFixer(c.intervals, resolver.WithOnFixed(c.onFixed))
	c.registry = device.NewRegistry(c.factories,
		device.WithClock(c.clock),
		device.WithEmit(c.onDeviceEvent),
		device.WithRemoveTimeout(c.removeTimeout),
	)

	c.st = engineState{
		timeline:  timeline.MustNew(nil),
		mappings:  timeline.Mappings{},
		datastore: timeline.Datastore{},
		size:      -1,
		retained:  make(map[string][]retainedState),
		callbacks: newCallbackTracker(c.callbackWait),
	}
	c.publish()
	return c
}

// Run executes queued actions until ctx is cancelled or Stop is called.
//
// ERROR HANDLING: a failing action is logged, reported as an Error event,
// and the loop continues with the next action.
func (c *Conductor) Run(ctx context.Context) error {
	slog.Info("conductor starting")
	c.armTick()
	defer c.shutdown()

	for {
		if a, ok := c.queue.TryDequeue(); ok {
			c.execute(ctx, a)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("conductor stopping: context cancelled")
			return ctx.Err()

		case <-c.queue.Wait():
			// The signal channel is closed with the queue, so this also
			// fires after Stop.
			if c.queue.Closed() && c.queue.Len() == 0 {
				slog.Info("conductor stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop makes Run return once the actions queued so far have run.
func (c *Conductor) Stop() {
	c.queue.Close()
}

// Terminate removes every device. Call it after Run has returned.
func (c *Conductor) Terminate(ctx context.Context) error {
	return c.registry.RemoveAll(ctx)
}

func (c *Conductor) shutdown() {
	c.queue.Close()
	for _, a := range c.queue.Drain() {
		if a.done != nil {
			a.done <- ErrStopped
		}
	}

	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	for _, t := range []clock.Timer{c.resolveTimer, c.tickTimer, c.callbackTimer} {
		if t != nil {
			t.Stop()
		}
	}
	c.resolveTimer, c.tickTimer, c.callbackTimer = nil, nil, nil
}

// execute runs one action. CRITICAL: Called only from Run.
func (c *Conductor) execute(ctx context.Context, a action) {
	err := c.invoke(ctx, a)
	if err != nil {
		slog.Error("action failed", "action", a.name, "error", err)
		c.emit(Event{
			Kind: EventError,
			Err:  &EngineError{Code: ErrCodeActionFailed, Message: a.name + " failed", Err: err},
		})
	}
	if a.done != nil {
		a.done <- err
	}
}

func (c *Conductor) invoke(ctx context.Context, a action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.fn(ctx)
}

// do enqueues fn and waits for it to run.
func (c *Conductor) do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	if !c.queue.Enqueue(action{name: name, fn: fn, done: done}) {
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues fn without waiting.
func (c *Conductor) post(name string, fn func(ctx context.Context) error) {
	if !c.queue.Enqueue(action{name: name, fn: fn}) {
		slog.Debug("action dropped: conductor stopped", "action", name)
	}
}

// emit delivers an event stamped with the current time to every listener.
// CRITICAL: loop goroutine only.
func (c *Conductor) emit(ev Event) {
	c.emitAt(c.clock.Now(), ev)
}

// emitAt delivers an event that happened at t, which may be 0.
func (c *Conductor) emitAt(t int64, ev Event) {
	ev.Time = t
	for _, l := range c.listeners {
		l(ev)
	}
}

// report emits ev from outside the loop.
func (c *Conductor) report(ev Event) {
	c.post("report", func(context.Context) error {
		c.emit(ev)
		return nil
	})
}

func (c *Conductor) publish() {
	c.publishedHash.Store(c.st.hash)
	m := c.st.mappings
	c.publishedMappings.Store(&m)
}

// SetTimelineAndMappings replaces the timeline and, when mappings is
// non-nil, the mappings. The resolve cache is dropped and the next cycle
// resolves at now.
func (c *Conductor) SetTimelineAndMappings(ctx context.Context, objects []timeline.Object, mappings timeline.Mappings) error {
	tl, err := timeline.New(objects)
	if err != nil {
		return fmt.Errorf("set timeline: %w", err)
	}
	hash, err := tl.Hash()
	if err != nil {
		return fmt.Errorf("set timeline: %w", err)
	}

	return c.do(ctx, "setTimelineAndMappings", func(context.Context) error {
		c.st.timeline = tl
		c.st.hash = hash
		c.st.size = -1
		if mappings != nil {
			c.st.mappings = mappings
		}
		c.invalidateCache()
		c.publish()
		slog.Debug("timeline replaced", "hash", hash, "roots", len(tl.Roots))
		c.resetResolver()
		return nil
	})
}

// SetDatastore replaces the datastore. Devices whose retained states
// depend on a changed key get those states again.
func (c *Conductor) SetDatastore(ctx context.Context, ds timeline.Datastore) error {
	if ds == nil {
		ds = timeline.Datastore{}
	}
	return c.do(ctx, "setDatastore", func(ctx context.Context) error {
		return c.applyDatastore(ctx, ds)
	})
}

// ResetResolver makes the next cycle resolve at now, and triggers it.
func (c *Conductor) ResetResolver() {
	c.post("resetResolver", func(context.Context) error {
		c.resetResolver()
		return nil
	})
}

// resetResolver. CRITICAL: loop goroutine only.
func (c *Conductor) resetResolver() {
	c.st.nextResolveTime = 0
	c.triggerResolve("reset")
}

// Sync waits until every action queued before it has run.
func (c *Conductor) Sync(ctx context.Context) error {
	return c.do(ctx, "sync", func(context.Context) error { return nil })
}

// AddDevice creates and initializes a device, then resets the resolver so
// it receives its state.
func (c *Conductor) AddDevice(ctx context.Context, id string, cfg device.Config) error {
	if _, err := c.registry.Add(ctx, id, cfg); err != nil {
		return err
	}
	c.ResetResolver()
	return nil
}

// CreateDevice creates a device without initializing it.
func (c *Conductor) CreateDevice(ctx context.Context, id string, cfg device.Config) (*device.Handle, error) {
	return c.registry.Create(ctx, id, cfg)
}

// InitDevice initializes a created device, then resets the resolver.
func (c *Conductor) InitDevice(ctx context.Context, id string, options map[string]any) error {
	if err := c.registry.Init(ctx, id, options); err != nil {
		return err
	}
	c.ResetResolver()
	return nil
}

// RemoveDevice terminates a device and forgets its retained states. A
// termination timeout is reported as a LIFECYCLE_TIMEOUT warning; the
// device is removed regardless.
func (c *Conductor) RemoveDevice(ctx context.Context, id string) error {
	err := c.registry.Remove(ctx, id)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return err
	}
	c.post("forgetDevice", func(context.Context) error {
		delete(c.st.retained, id)
		return nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		terr := NewTimeoutError(id, "remove", err)
		c.report(Event{Kind: EventWarning, DeviceID: id, Err: terr, Message: terr.Error()})
		return terr
	}
	return err
}

// Device returns the handle of a device.
func (c *Conductor) Device(id string) (*device.Handle, bool) {
	return c.registry.Get(id)
}

// Devices returns the ids of all devices, sorted.
func (c *Conductor) Devices() []string {
	return c.registry.IDs()
}

// Registry exposes the device registry.
func (c *Conductor) Registry() *device.Registry {
	return c.registry
}

// TimelineHash returns the hash of the current timeline, including any
// baked-in "now" fixes.
func (c *Conductor) TimelineHash() string {
	h, _ := c.publishedHash.Load().(string)
	return h
}

// Mappings returns the current mappings. The map must not be modified.
func (c *Conductor) Mappings() timeline.Mappings {
	if m := c.publishedMappings.Load(); m != nil {
		return *m
	}
	return nil
}

// onFixed is called by the now-fixer inside a resolve cycle.
func (c *Conductor) onFixed(fixed []resolver.FixedObject) {
	c.emit(Event{Kind: EventSetTimelineTriggerTime, ObjectsFixed: fixed})
}

// onDeviceEvent runs on device goroutines; it forwards to the loop.
func (c *Conductor) onDeviceEvent(ev device.Event) {
	out := Event{DeviceID: ev.DeviceID, Message: ev.Message, Err: ev.Err}
	switch ev.Kind {
	case device.EventResetResolver:
		slog.Debug("device requested re-resolve", "device_id", ev.DeviceID)
		c.ResetResolver()
		return
	case device.EventStatus:
		out.Kind = EventDeviceStatus
		out.Status = ev.Status
	case device.EventCommandReport:
		out.Kind = EventCommandReport
		out.Command = ev.Command
	case device.EventError:
		out.Kind = EventError
	case device.EventWarning:
		out.Kind = EventWarning
	case device.EventInfo:
		out.Kind = EventInfo
	default:
		out.Kind = EventDebug
	}
	c.report(out)
}
