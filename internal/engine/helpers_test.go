package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/device"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/testutil"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

const recType timeline.DeviceType = "rec"

// ---------------------------------------------------------------------------
// recordingDevice
// ---------------------------------------------------------------------------

// recordingDevice records every call it gets.
type recordingDevice struct {
	mu        sync.Mutex
	states    []timeline.DeviceState
	prepared  []int64
	cleared   []int64
	readyIDs  []string
	stoodDown int

	handleErr error

	// block, when set, makes MakeReady wait until it is closed or the call
	// is cancelled.
	block chan struct{}
}

func (d *recordingDevice) Init(context.Context, map[string]any) error { return nil }

func (d *recordingDevice) PrepareForHandleState(_ context.Context, t int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prepared = append(d.prepared, t)
	return nil
}

func (d *recordingDevice) HandleState(_ context.Context, st timeline.DeviceState, _ timeline.Mappings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handleErr != nil {
		return d.handleErr
	}
	d.states = append(d.states, st)
	return nil
}

func (d *recordingDevice) ClearFuture(_ context.Context, t int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleared = append(d.cleared, t)
	return nil
}

func (d *recordingDevice) MakeReady(ctx context.Context, _ bool, activationID string) error {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readyIDs = append(d.readyIDs, activationID)
	return nil
}

func (d *recordingDevice) StandDown(context.Context, bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stoodDown++
	return nil
}

func (d *recordingDevice) Terminate(context.Context) error { return nil }

func (d *recordingDevice) States() []timeline.DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]timeline.DeviceState(nil), d.states...)
}

func (d *recordingDevice) Cleared() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.cleared...)
}

func (d *recordingDevice) ReadyIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.readyIDs...)
}

func (d *recordingDevice) last(t *testing.T) timeline.DeviceState {
	t.Helper()
	states := d.States()
	require.NotEmpty(t, states)
	return states[len(states)-1]
}

// ---------------------------------------------------------------------------
// eventRecorder
// ---------------------------------------------------------------------------

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *eventRecorder) ofKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) forDevice(kind EventKind, deviceID string) []Event {
	var out []Event
	for _, ev := range r.ofKind(kind) {
		if ev.DeviceID == deviceID {
			out = append(out, ev)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

// harness runs a Conductor on a manual clock with recording devices. Time
// only moves when the test says so; every helper waits for the loop to go
// idle before returning.
type harness struct {
	t   *testing.T
	ctx context.Context
	clk *testutil.ManualClock
	c   *Conductor
	rec *eventRecorder
}

func newHarness(t *testing.T, start int64, devices map[string]*recordingDevice, opts ...Option) *harness {
	t.Helper()

	clk := testutil.NewManualClock(start)
	rec := &eventRecorder{}
	factories := device.NewFactories()
	factories.Register(recType, func(_ context.Context, p device.Params) (device.Device, error) {
		return devices[p.DeviceID], nil
	})

	base := []Option{
		WithClock(clk),
		WithFactories(factories),
		WithListener(rec.listen),
		WithTickInterval(0),
		WithIDGenerator(testutil.NewFixedIDGenerator("act")),
	}
	c := New(append(base, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = c.Terminate(context.Background())
	})

	h := &harness{t: t, ctx: ctx, clk: clk, c: c, rec: rec}
	for _, id := range sortedKeys(devices) {
		require.NoError(t, c.AddDevice(ctx, id, device.Config{Type: recType}))
	}
	h.sync()
	rec.reset()
	return h
}

// sync waits twice: an action may queue a follow-up (ResetResolver queues
// the resolve cycle) behind the first Sync.
func (h *harness) sync() {
	h.t.Helper()
	require.NoError(h.t, h.c.Sync(h.ctx))
	require.NoError(h.t, h.c.Sync(h.ctx))
}

// set moves the clock to t and waits for whatever the due timers queued.
// Tests only ever move to exactly one timer's due time so that the loop
// never observes the clock moving under it.
func (h *harness) set(t int64) {
	h.t.Helper()
	h.clk.Set(t)
	h.sync()
}

func (h *harness) setTimeline(objects []timeline.Object, mappings timeline.Mappings) {
	h.t.Helper()
	require.NoError(h.t, h.c.SetTimelineAndMappings(h.ctx, objects, mappings))
	h.sync()
}

func mapTo(pairs ...string) timeline.Mappings {
	m := make(timeline.Mappings)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i]] = timeline.Mapping{Device: recType, DeviceID: pairs[i+1]}
	}
	return m
}

func obj(id, layer string, start int64) timeline.Object {
	return timeline.Object{ID: id, Layer: layer, Enable: timeline.Enables{{Start: timeline.At(start)}}}
}

func objUntil(id, layer string, start, end int64) timeline.Object {
	e := timeline.At(end)
	return timeline.Object{ID: id, Layer: layer, Enable: timeline.Enables{{Start: timeline.At(start), End: &e}}}
}
