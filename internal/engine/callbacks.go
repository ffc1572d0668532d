package engine

import (
	"context"
	"sort"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// activeCallback is an active instance carrying a callback descriptor.
type activeCallback struct {
	objectID string
	start    int64
	onStart  string
	onStop   string
	data     any
}

// callbackInstance tracks one object instance. playing flips as soon as an
// edge is seen; the edge itself is held in start or stop until it is old
// enough to be delivered. At most one of start and stop is set.
type callbackInstance struct {
	playing bool
	start   *TimelineCallback
	stop    *TimelineCallback
	last    activeCallback
}

// callbackTracker turns the noisy per-cycle set of active callback objects
// into exactly one start and one stop per instance.
//
// A flip back within wait ms of a pending opposite edge cancels both, as if
// neither happened.
type callbackTracker struct {
	wait      int64
	instances map[string]*callbackInstance
}

func newCallbackTracker(wait int64) *callbackTracker {
	return &callbackTracker{wait: wait, instances: make(map[string]*callbackInstance)}
}

// update applies the active set seen by a cycle resolving at tlTime. Edges
// that had to be delivered early, because an opposite edge arrived after
// the wait window, are returned.
func (t *callbackTracker) update(active map[string]activeCallback, tlTime int64) []TimelineCallback {
	var early []TimelineCallback

	for _, id := range sortedKeys(active) {
		a := active[id]
		inst, ok := t.instances[id]
		if !ok {
			inst = &callbackInstance{}
			t.instances[id] = inst
		}
		inst.last = a
		if inst.playing {
			continue
		}
		inst.playing = true

		edge := &TimelineCallback{
			Time: a.start, InstanceID: id, ObjectID: a.objectID,
			Edge: CallbackStart, Callback: a.onStart, Data: a.data,
		}
		if inst.stop != nil {
			if edge.Time-inst.stop.Time <= t.wait {
				inst.stop = nil
				continue
			}
			early = append(early, *inst.stop)
			inst.stop = nil
		}
		inst.start = edge
	}

	for _, id := range sortedKeys(t.instances) {
		inst := t.instances[id]
		if _, ok := active[id]; ok || !inst.playing {
			continue
		}
		inst.playing = false

		a := inst.last
		edge := &TimelineCallback{
			Time: tlTime, InstanceID: id, ObjectID: a.objectID,
			Edge: CallbackStop, Callback: a.onStop, Data: a.data,
		}
		if inst.start != nil {
			if edge.Time-inst.start.Time <= t.wait {
				inst.start = nil
				t.gc(id)
				continue
			}
			early = append(early, *inst.start)
			inst.start = nil
		}
		inst.stop = edge
	}
	return early
}

// flush returns the edges that are at least wait ms old at now, stops
// first, then by time.
func (t *callbackTracker) flush(now int64) []TimelineCallback {
	var out []TimelineCallback
	for _, id := range sortedKeys(t.instances) {
		inst := t.instances[id]
		if inst.start != nil && inst.start.Time <= now-t.wait {
			out = append(out, *inst.start)
			inst.start = nil
		}
		if inst.stop != nil && inst.stop.Time <= now-t.wait {
			out = append(out, *inst.stop)
			inst.stop = nil
		}
		t.gc(id)
	}
	sortCallbacks(out)
	return out
}

// nextDue returns when the oldest pending edge becomes deliverable.
func (t *callbackTracker) nextDue() (int64, bool) {
	var due int64
	found := false
	for _, inst := range t.instances {
		for _, e := range []*TimelineCallback{inst.start, inst.stop} {
			if e != nil && (!found || e.Time+t.wait < due) {
				due = e.Time + t.wait
				found = true
			}
		}
	}
	return due, found
}

func (t *callbackTracker) gc(id string) {
	inst := t.instances[id]
	if inst != nil && !inst.playing && inst.start == nil && inst.stop == nil {
		delete(t.instances, id)
	}
}

func sortCallbacks(cbs []TimelineCallback) {
	sort.SliceStable(cbs, func(i, j int) bool {
		a, b := cbs[i], cbs[j]
		if a.Edge != b.Edge {
			return a.Edge == CallbackStop
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.InstanceID < b.InstanceID
	})
}

// activeCallbacks collects the instances in state carrying a callback
// descriptor.
func activeCallbacks(state timeline.State) map[string]activeCallback {
	out := make(map[string]activeCallback)
	for _, li := range state.Layers {
		onStart, _ := li.Content[timeline.ContentCallback].(string)
		onStop, _ := li.Content[timeline.ContentCallbackStopped].(string)
		if onStart == "" && onStop == "" {
			continue
		}
		out[li.InstanceID] = activeCallback{
			objectID: li.ID,
			start:    li.Start,
			onStart:  onStart,
			onStop:   onStop,
			data:     li.Content[timeline.ContentCallbackData],
		}
	}
	return out
}

// updateCallbacks runs the callback diff for a cycle. CRITICAL: loop
// goroutine only.
func (c *Conductor) updateCallbacks(state timeline.State, resolveTime int64) {
	early := c.st.callbacks.update(activeCallbacks(state), resolveTime)
	sortCallbacks(early)
	c.emitCallbacks(early)
	c.flushCallbacks()
}

// flushCallbacks delivers due edges and arms a timer for the rest.
func (c *Conductor) flushCallbacks() {
	c.emitCallbacks(c.st.callbacks.flush(c.clock.Now()))

	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.callbackTimer != nil {
		c.callbackTimer.Stop()
		c.callbackTimer = nil
	}
	due, ok := c.st.callbacks.nextDue()
	if !ok {
		return
	}
	delay := due - c.clock.Now()
	if delay < c.minTrigger {
		delay = c.minTrigger
	}
	c.callbackTimer = c.clock.AfterFunc(delay, func() {
		c.post("flushCallbacks", func(context.Context) error {
			c.flushCallbacks()
			return nil
		})
	})
}

func (c *Conductor) emitCallbacks(cbs []TimelineCallback) {
	for i := range cbs {
		cb := cbs[i]
		if cb.Callback == "" {
			continue
		}
		c.emitAt(cb.Time, Event{Kind: EventTimelineCallback, Callback: &cb})
	}
}
