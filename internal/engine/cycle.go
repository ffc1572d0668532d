package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/device"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/resolver"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// EstimateResolveTime predicts how long resolving a timeline of size
// objects takes, in ms:
//
//	multiplier * clamp(floor((size/250)^0.7 * 250 * 0.5), 20, 200)
//
// The curve is concave, so the estimate grows sub-linearly with size.
func EstimateResolveTime(size int, multiplier float64) int64 {
	base := math.Floor(math.Pow(float64(size)/250, 0.7) * 250 * 0.5)
	base = math.Max(20, math.Min(200, base))
	return int64(multiplier * base)
}

// triggerResolve queues a resolve cycle unless one is already queued.
// Safe from any goroutine.
func (c *Conductor) triggerResolve(reason string) {
	if !c.resolvePending.CompareAndSwap(false, true) {
		return
	}
	c.post("resolveTimeline", func(ctx context.Context) error {
		c.resolvePending.Store(false)
		c.resolveCycle(ctx, reason)
		return nil
	})
}

func (c *Conductor) armResolveTimer(delay int64) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.resolveTimer != nil {
		c.resolveTimer.Stop()
	}
	c.resolveTimer = c.clock.AfterFunc(delay, func() { c.triggerResolve("timer") })
}

func (c *Conductor) stopResolveTimer() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.resolveTimer != nil {
		c.resolveTimer.Stop()
		c.resolveTimer = nil
	}
}

func (c *Conductor) armTick() {
	if c.tick <= 0 {
		return
	}
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.queue.Closed() {
		return
	}
	c.tickTimer = c.clock.AfterFunc(c.tick, func() {
		c.triggerResolve("tick")
		c.armTick()
	})
}

func (c *Conductor) timelineSize() int {
	if c.st.size < 0 {
		c.st.size = c.st.timeline.Size()
	}
	return c.st.size
}

func (c *Conductor) invalidateCache() {
	c.st.cache = nil
	c.fixer.Cache().Invalidate()
}

// resolveCycle is one run of the scheduling loop. CRITICAL: loop goroutine
// only.
//
// Failures are reported and the next cycle is still scheduled.
func (c *Conductor) resolveCycle(ctx context.Context, reason string) {
	start := c.clock.Now()
	st := &c.st

	estimated := int64(0)
	if c.proactive {
		estimated = EstimateResolveTime(c.timelineSize(), c.multiplier)
	}

	resolveTime := st.nextResolveTime
	switch {
	case resolveTime == 0 || resolveTime < start+estimated:
		resolveTime = start + estimated
	case resolveTime > start+c.lookahead:
		slog.Debug("resolve postponed: too far ahead",
			"resolve_time", resolveTime,
			"now", start)
		c.armResolveTimer(c.lookahead)
		return
	}

	c.stopResolveTimer()

	resolved, cacheHit, err := c.resolveAt(resolveTime)
	if err != nil {
		slog.Error("resolve failed", "resolve_time", resolveTime, "error", err)
		c.emit(Event{
			Kind: EventError,
			Err:  &EngineError{Code: ErrCodeResolveFailed, Message: "resolve failed", Err: err},
		})
		c.armResolveTimer(c.lookahead)
		return
	}
	resolveDone := c.clock.Now()

	state := resolver.States(resolved, resolveTime)
	handles := c.registry.Initialized()
	buckets := project(state.Layers, st.mappings, handles)
	c.dispatch(ctx, resolveTime, buckets, handles)
	dispatchDone := c.clock.Now()

	c.scheduleNext(ctx, start, resolveTime, state, handles)

	c.updateCallbacks(state, resolveTime)

	c.emit(Event{
		Kind:        EventResolveDone,
		ResolveDone: &ResolveDone{TimelineHash: st.hash, Duration: resolveDone - start},
	})
	end := c.clock.Now()
	c.emit(Event{
		Kind: EventStatReport,
		Stats: &StatReport{
			Seq:                  c.seq.Next(),
			Reason:               reason,
			Time:                 start,
			ResolveTime:          resolveTime,
			EstimatedResolveTime: estimated,
			TimelineSize:         c.timelineSize(),
			ResolveDuration:      resolveDone - start,
			DispatchDuration:     dispatchDone - resolveDone,
			TotalDuration:        end - start,
			CacheHit:             cacheHit,
		},
	})
}

// resolveAt returns the resolved timeline covering resolveTime, from the
// cycle cache when resolveTime falls inside its window.
func (c *Conductor) resolveAt(resolveTime int64) (*resolver.Resolved, bool, error) {
	st := &c.st
	if cc := st.cache; cc != nil && resolveTime >= cc.resolveTime && resolveTime < cc.resolveTime+c.resolveLimit {
		return cc.resolved, true, nil
	}

	res, err := c.fixer.Resolve(st.timeline, resolveTime, c.resolveLimit, true)
	if err != nil {
		return nil, false, err
	}
	if len(res.ObjectsFixed) > 0 {
		// The fixes were applied to st.timeline in place.
		hash, err := st.timeline.Hash()
		if err != nil {
			return nil, false, fmt.Errorf("hash fixed timeline: %w", err)
		}
		st.hash = hash
		c.publish()
	}
	if !res.Converged {
		c.emit(Event{
			Kind:    EventWarning,
			Message: fmt.Sprintf("now-fix did not converge after %d passes", res.Passes),
		})
	}
	st.cache = &resolveCache{resolved: res.Resolved, resolveTime: resolveTime}
	return res.Resolved, false, nil
}

type dispatchJob struct {
	handle   *device.Handle
	state    timeline.DeviceState
	mappings timeline.Mappings
}

// dispatch sends every device its projected state, concurrently. A device
// failing does not affect the others; each failure is reported once.
func (c *Conductor) dispatch(ctx context.Context, resolveTime int64, buckets map[string]map[string]timeline.LayerInstance, handles []*device.Handle) {
	now := c.clock.Now()
	jobs := make([]dispatchJob, 0, len(handles))
	for _, h := range handles {
		projected := timeline.DeviceState{Time: resolveTime, Layers: buckets[h.ID()]}
		mappings := c.st.mappings.ForDevice(h.ID())
		filled, deps := FillState(projected, c.st.datastore)
		c.retain(h.ID(), retainedState{time: resolveTime, state: projected, deps: deps, mappings: mappings}, now)
		jobs = append(jobs, dispatchJob{handle: h, state: filled, mappings: mappings})
	}

	errs := c.fanOut(ctx, jobs, func(ctx context.Context, j dispatchJob) error {
		if err := j.handle.PrepareForHandleState(ctx, j.state.Time); err != nil {
			return err
		}
		return j.handle.HandleState(ctx, j.state, j.mappings)
	})
	c.reportDispatchErrors(errs)
}

// fanOut runs fn for every job concurrently and returns the failures keyed
// by device id. fn errors never cancel siblings.
func (c *Conductor) fanOut(ctx context.Context, jobs []dispatchJob, fn func(ctx context.Context, j dispatchJob) error) map[string]error {
	var (
		mu   sync.Mutex
		errs = make(map[string]error)
		g    errgroup.Group
	)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := fn(ctx, j); err != nil {
				mu.Lock()
				errs[j.handle.ID()] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (c *Conductor) reportDispatchErrors(errs map[string]error) {
	for _, id := range sortedKeys(errs) {
		err := NewDispatchError(id, errs[id])
		slog.Error("device dispatch failed", "device_id", id, "error", errs[id])
		c.emit(Event{Kind: EventError, DeviceID: id, Err: err, Message: err.Error()})
	}
}

// scheduleNext arms the timer for the next cycle from the nearest future
// event. Without one it tells every device the future is clear and looks
// again after the lookahead time.
func (c *Conductor) scheduleNext(ctx context.Context, now, resolveTime int64, state timeline.State, handles []*device.Handle) {
	next := int64(0)
	for _, ev := range state.NextEvents {
		if ev.Time > now {
			next = ev.Time
			break
		}
	}

	if next == 0 {
		c.st.nextResolveTime = 0
		jobs := make([]dispatchJob, 0, len(handles))
		for _, h := range handles {
			jobs = append(jobs, dispatchJob{handle: h})
		}
		errs := c.fanOut(ctx, jobs, func(ctx context.Context, j dispatchJob) error {
			return j.handle.ClearFuture(ctx, resolveTime)
		})
		for _, id := range sortedKeys(errs) {
			slog.Warn("clear future failed", "device_id", id, "error", errs[id])
			c.emit(Event{Kind: EventWarning, DeviceID: id, Err: errs[id], Message: "clearFuture failed"})
		}
		// Objects beyond the resolve window only show up in a later cycle.
		c.armResolveTimer(c.lookahead)
		return
	}

	upper := c.lookahead
	if c.resolveLimit < upper {
		upper = c.resolveLimit
	}
	delay := next - now - c.prepareTime
	if delay > upper {
		delay = upper
	}
	if delay < c.minTrigger {
		delay = c.minTrigger
	}
	c.st.nextResolveTime = next
	c.armResolveTimer(delay)
	slog.Debug("next resolve scheduled",
		"next_event", next,
		"delay", delay)
}
