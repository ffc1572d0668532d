package engine

import (
	"context"
	"log/slog"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// retainedState is a state dispatched to a device, kept so it can be
// re-filled and re-sent when the datastore changes.
type retainedState struct {
	time     int64
	state    timeline.DeviceState // before datastore substitution
	deps     map[string]struct{}
	mappings timeline.Mappings
}

// FillState substitutes datastore references into a copy of st and returns
// it with the set of datastore keys the state references.
//
// A reference with overwrite=false always takes the current value. With
// overwrite=true the value only applies when it was modified at or after
// the start of the instance, so a change cannot rewrite something that was
// already playing before it.
func FillState(st timeline.DeviceState, ds timeline.Datastore) (timeline.DeviceState, map[string]struct{}) {
	deps := make(map[string]struct{})
	out := timeline.DeviceState{Time: st.Time, Layers: make(map[string]timeline.LayerInstance, len(st.Layers))}

	for layerID, li := range st.Layers {
		refs := timeline.References(li.Content)
		if len(refs) == 0 {
			out.Layers[layerID] = li
			continue
		}

		content := timeline.CloneContent(li.Content)
		for _, path := range sortedKeys(refs) {
			ref := refs[path]
			deps[ref.DatastoreKey] = struct{}{}

			entry, ok := ds[ref.DatastoreKey]
			if !ok {
				continue
			}
			if ref.Overwrite && entry.Modified < li.Start {
				continue
			}
			timeline.SetPath(content, path, entry.Value)
		}
		li.Content = content
		out.Layers[layerID] = li
	}
	return out, deps
}

// retain records a dispatched state. Entries at or after its time are
// superseded; the rest is pruned relative to now.
func (c *Conductor) retain(deviceID string, rs retainedState, now int64) {
	list := c.st.retained[deviceID]
	kept := list[:0]
	for _, old := range list {
		if old.time < rs.time {
			kept = append(kept, old)
		}
	}
	kept = append(kept, rs)
	c.st.retained[deviceID] = pruneRetained(kept, now)
}

// pruneRetained keeps the latest entry at or before now and every entry
// after now. list is sorted by time.
func pruneRetained(list []retainedState, now int64) []retainedState {
	first := 0
	for i, rs := range list {
		if rs.time <= now {
			first = i
		}
	}
	return list[first:]
}

// applyDatastore replaces the datastore and re-sends the retained states
// that depend on a changed key, from the first affected one on.
func (c *Conductor) applyDatastore(ctx context.Context, ds timeline.Datastore) error {
	changed := c.st.datastore.ChangedKeys(ds)
	c.st.datastore = ds
	if len(changed) == 0 {
		return nil
	}

	now := c.clock.Now()
	replays := make(map[string][]retainedState)
	var jobs []dispatchJob

	for _, h := range c.registry.Initialized() {
		list := pruneRetained(c.st.retained[h.ID()], now)
		c.st.retained[h.ID()] = list

		from := -1
		for i, rs := range list {
			if intersects(rs.deps, changed) {
				from = i
				break
			}
		}
		if from < 0 {
			continue
		}
		replays[h.ID()] = list[from:]
		jobs = append(jobs, dispatchJob{handle: h})
	}
	if len(jobs) == 0 {
		return nil
	}

	slog.Debug("datastore changed, replaying states",
		"changed_keys", len(changed),
		"devices", len(jobs))

	errs := c.fanOut(ctx, jobs, func(ctx context.Context, j dispatchJob) error {
		states := replays[j.handle.ID()]
		if err := j.handle.PrepareForHandleState(ctx, states[0].time); err != nil {
			return err
		}
		for _, rs := range states {
			filled, _ := FillState(rs.state, ds)
			if err := j.handle.HandleState(ctx, filled, rs.mappings); err != nil {
				return err
			}
		}
		return nil
	})
	c.reportDispatchErrors(errs)
	return nil
}

func intersects(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
