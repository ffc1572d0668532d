package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// orderDevice records call order and can block inside HandleState.
type orderDevice struct {
	stubDevice
	mu    sync.Mutex
	calls []string
	gate  chan struct{}
}

func (d *orderDevice) record(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, name)
}

func (d *orderDevice) PrepareForHandleState(context.Context, int64) error {
	d.record("prepare")
	return nil
}

func (d *orderDevice) HandleState(context.Context, timeline.DeviceState, timeline.Mappings) error {
	if d.gate != nil {
		<-d.gate
	}
	d.record("handle")
	return nil
}

func (d *orderDevice) ClearFuture(context.Context, int64) error {
	d.record("clear")
	return nil
}

func TestHandle_CallsAreSerializedInOrder(t *testing.T) {
	dev := &orderDevice{}
	h := newHandle("d1", "stub", dev)
	ctx := context.Background()

	require.NoError(t, h.PrepareForHandleState(ctx, 1))
	require.NoError(t, h.HandleState(ctx, timeline.DeviceState{Time: 1}, nil))
	require.NoError(t, h.ClearFuture(ctx, 1))

	assert.Equal(t, []string{"prepare", "handle", "clear"}, dev.calls)
}

func TestHandle_AbandonedCallStillCompletesBeforeNext(t *testing.T) {
	dev := &orderDevice{gate: make(chan struct{})}
	h := newHandle("d1", "stub", dev)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.HandleState(ctx, timeline.DeviceState{Time: 1}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- h.ClearFuture(context.Background(), 2) }()
	close(dev.gate)
	require.NoError(t, <-done)

	dev.mu.Lock()
	defer dev.mu.Unlock()
	assert.Equal(t, []string{"handle", "clear"}, dev.calls)
}

func TestHandle_StateIsCloned(t *testing.T) {
	dev := &stubDevice{}
	var got timeline.DeviceState
	dev.On("HandleState", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(timeline.DeviceState) }).
		Return(nil)

	h := newHandle("d1", "stub", dev)
	st := timeline.DeviceState{Time: 5, Layers: map[string]timeline.LayerInstance{
		"L1": {ID: "o", Layer: "L1", Content: timeline.Content{"clip": "a"}},
	}}
	require.NoError(t, h.HandleState(context.Background(), st, timeline.Mappings{}))

	st.Layers["L1"].Content["clip"] = "mutated"
	assert.Equal(t, "a", got.Layers["L1"].Content["clip"])
}

type panicDevice struct{ stubDevice }

func (*panicDevice) ClearFuture(context.Context, int64) error { panic("boom") }

func TestHandle_PanicBecomesError(t *testing.T) {
	h := newHandle("d1", "stub", &panicDevice{})

	err := h.ClearFuture(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// The supervisor survives.
	err = h.ClearFuture(context.Background(), 0)
	assert.Error(t, err)
}

func TestHandle_TerminateClosesHandle(t *testing.T) {
	dev := &stubDevice{}
	dev.On("Terminate", mock.Anything).Return(errors.New("already gone"))

	h := newHandle("d1", "stub", dev)
	err := h.Terminate(context.Background())
	assert.EqualError(t, err, "already gone")

	assert.Eventually(t, func() bool {
		return errors.Is(h.ClearFuture(context.Background(), 0), ErrHandleClosed)
	}, time.Second, 5*time.Millisecond)
	dev.AssertNotCalled(t, "ClearFuture", mock.Anything, mock.Anything)
}
