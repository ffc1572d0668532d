package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

func active(instanceID string, start int64) map[string]activeCallback {
	return map[string]activeCallback{
		instanceID: {objectID: "x", start: start, onStart: "play", onStop: "stop"},
	}
}

func TestCallbackTracker_StartThenStop(t *testing.T) {
	tr := newCallbackTracker(50)

	assert.Empty(t, tr.update(active("x@1000", 1000), 1000))
	assert.Empty(t, tr.flush(1049), "held back for the wait period")

	due, ok := tr.nextDue()
	require.True(t, ok)
	assert.Equal(t, int64(1050), due)

	started := tr.flush(1050)
	require.Len(t, started, 1)
	assert.Equal(t, CallbackStart, started[0].Edge)
	assert.Equal(t, "play", started[0].Callback)
	assert.Equal(t, int64(1000), started[0].Time)

	assert.Empty(t, tr.update(nil, 3000))
	stopped := tr.flush(3050)
	require.Len(t, stopped, 1)
	assert.Equal(t, CallbackStop, stopped[0].Edge)
	assert.Equal(t, "stop", stopped[0].Callback)
	assert.Equal(t, int64(3000), stopped[0].Time)

	_, ok = tr.nextDue()
	assert.False(t, ok)
	assert.Empty(t, tr.instances, "finished instances are forgotten")
}

func TestCallbackTracker_FlipFlopAnnihilates(t *testing.T) {
	tr := newCallbackTracker(50)

	tr.update(active("x@1000", 1000), 1000)
	assert.Empty(t, tr.update(nil, 1020))

	assert.Empty(t, tr.flush(5000), "a start and stop within the wait cancel out")
	assert.Empty(t, tr.instances)
}

func TestCallbackTracker_StopThenRestartAnnihilates(t *testing.T) {
	tr := newCallbackTracker(50)

	tr.update(active("x@1000", 1000), 1000)
	require.Len(t, tr.flush(1100), 1)

	tr.update(nil, 2000)
	assert.Empty(t, tr.update(active("x@1000", 1000), 2010))

	assert.Empty(t, tr.flush(5000), "the stop never happened")
	assert.True(t, tr.instances["x@1000"].playing)
}

func TestCallbackTracker_LateStopDeliversStartEarly(t *testing.T) {
	tr := newCallbackTracker(50)

	tr.update(active("x@1000", 1000), 1000)
	early := tr.update(nil, 1100)

	require.Len(t, early, 1)
	assert.Equal(t, CallbackStart, early[0].Edge)
	assert.Empty(t, tr.flush(1149))
	stopped := tr.flush(1150)
	require.Len(t, stopped, 1)
	assert.Equal(t, CallbackStop, stopped[0].Edge)
}

func TestSortCallbacks_StopsFirst(t *testing.T) {
	cbs := []TimelineCallback{
		{Time: 10, InstanceID: "b", Edge: CallbackStart},
		{Time: 20, InstanceID: "a", Edge: CallbackStop},
		{Time: 10, InstanceID: "a", Edge: CallbackStart},
		{Time: 5, InstanceID: "c", Edge: CallbackStop},
	}
	sortCallbacks(cbs)

	var order []string
	for _, cb := range cbs {
		order = append(order, string(cb.Edge)+":"+cb.InstanceID)
	}
	assert.Equal(t, []string{"stop:c", "stop:a", "start:a", "start:b"}, order)
}

func TestActiveCallbacks(t *testing.T) {
	st := timeline.State{Layers: map[string]timeline.LayerInstance{
		"L1": {ID: "o1", InstanceID: "o1@0", Start: 0, Content: timeline.Content{
			timeline.ContentCallback:        "play",
			timeline.ContentCallbackStopped: "stop",
			timeline.ContentCallbackData:    map[string]any{"part": "p1"},
		}},
		"L2": {ID: "o2", InstanceID: "o2@0", Content: timeline.Content{"clip": "amb"}},
	}}

	got := activeCallbacks(st)
	require.Len(t, got, 1)
	assert.Equal(t, activeCallback{
		objectID: "o1",
		start:    0,
		onStart:  "play",
		onStop:   "stop",
		data:     map[string]any{"part": "p1"},
	}, got["o1@0"])
}

func callbackObject(id string, start, end int64) timeline.Object {
	o := objUntil(id, "L1", start, end)
	o.Content = timeline.Content{
		timeline.ContentCallback:        "onPlay",
		timeline.ContentCallbackStopped: "onStop",
		timeline.ContentCallbackData:    map[string]any{"part": "p1"},
	}
	return o
}

func TestConductor_CallbacksFlipFlopEmitsNothing(t *testing.T) {
	h := newHarness(t, 1000, nil)

	h.setTimeline([]timeline.Object{callbackObject("cb", 1000, 1020)}, nil)

	// The end at 1020 is resolved by the cycle at 1010.
	h.set(1010)
	h.set(2000)

	assert.Empty(t, h.rec.ofKind(EventTimelineCallback))
	assert.Equal(t, 1, h.clk.Pending(), "only the lookahead timer is left")
}

func TestConductor_CallbackAtZeroKeepsItsTime(t *testing.T) {
	h := newHarness(t, 1000, nil)

	h.setTimeline([]timeline.Object{callbackObject("cb", 0, 5000)}, nil)

	cbs := h.rec.ofKind(EventTimelineCallback)
	require.Len(t, cbs, 1)
	assert.Equal(t, CallbackStart, cbs[0].Callback.Edge)
	assert.Equal(t, int64(0), cbs[0].Callback.Time)
	assert.Equal(t, int64(0), cbs[0].Time)
}

func TestConductor_CallbacksStartAndStop(t *testing.T) {
	h := newHarness(t, 1000, nil)

	h.setTimeline([]timeline.Object{callbackObject("cb", 1000, 5000)}, nil)
	assert.Empty(t, h.rec.ofKind(EventTimelineCallback))

	h.set(1050)
	cbs := h.rec.ofKind(EventTimelineCallback)
	require.Len(t, cbs, 1)
	assert.Equal(t, TimelineCallback{
		Time:       1000,
		InstanceID: "cb@1000",
		ObjectID:   "cb",
		Edge:       CallbackStart,
		Callback:   "onPlay",
		Data:       map[string]any{"part": "p1"},
	}, *cbs[0].Callback)

	// Resolves 5000 at 3000; the stop is delivered once real time passes
	// 5000 plus the wait.
	h.set(3000)
	assert.Len(t, h.rec.ofKind(EventTimelineCallback), 1)

	h.set(5050)
	cbs = h.rec.ofKind(EventTimelineCallback)
	require.Len(t, cbs, 2)
	assert.Equal(t, CallbackStop, cbs[1].Callback.Edge)
	assert.Equal(t, "onStop", cbs[1].Callback.Callback)
	assert.Equal(t, int64(5000), cbs[1].Time)
}
