package resolver

import (
	"math"
	"sort"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// States slices a resolved timeline at one point in time.
//
// Each layer is occupied by the active instance with the highest priority;
// ties go to the latest start, then to the lowest object id. Keyframes
// active at the given time are shallow-merged over a copy of the owning
// object's content. NextEvents lists every instance and keyframe boundary
// in (at, limit], sorted by time.
func States(r *Resolved, at int64) timeline.State {
	st := timeline.State{
		Time:   at,
		Layers: make(map[string]timeline.LayerInstance),
	}
	if r == nil {
		return st
	}

	type candidate struct {
		obj  *ResolvedObject
		inst Instance
	}
	best := make(map[string]candidate)
	limit := r.Limit()

	for _, id := range r.Order {
		obj := r.Objects[id]
		for _, inst := range obj.Instances {
			st.NextEvents = appendBoundaries(st.NextEvents, obj, inst, at, limit)

			if obj.Layer == "" || !inst.Covers(at) {
				continue
			}
			cur, ok := best[obj.Layer]
			if !ok || outranks(obj, inst, cur.obj, cur.inst) {
				best[obj.Layer] = candidate{obj: obj, inst: inst}
			}
		}
	}

	for layer, c := range best {
		st.Layers[layer] = timeline.LayerInstance{
			ID:                c.obj.ID,
			InstanceID:        c.inst.ID,
			Layer:             layer,
			Start:             c.inst.Start,
			End:               c.inst.End,
			Priority:          c.obj.Priority,
			Content:           contentAt(c.obj, c.inst, at),
			IsLookahead:       c.obj.IsLookahead,
			LookaheadForLayer: c.obj.LookaheadForLayer,
		}
	}

	sort.SliceStable(st.NextEvents, func(i, j int) bool {
		a, b := st.NextEvents[i], st.NextEvents[j]
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.ObjectID < b.ObjectID
	})
	return st
}

func outranks(obj *ResolvedObject, inst Instance, curObj *ResolvedObject, cur Instance) bool {
	if obj.Priority != curObj.Priority {
		return obj.Priority > curObj.Priority
	}
	if inst.Start != cur.Start {
		return inst.Start > cur.Start
	}
	return obj.ID < curObj.ID
}

// keyframeSpan is a keyframe interval in absolute time.
type keyframeSpan struct {
	start, end int64
	content    timeline.Content
}

func keyframeSpans(obj *ResolvedObject, inst Instance) []keyframeSpan {
	var spans []keyframeSpan
	instEnd := inst.endOr(math.MaxInt64)
	for _, kf := range obj.Keyframes {
		for _, en := range kf.Enable {
			if en.Start.Now {
				continue
			}
			s := inst.Start + en.Start.Value
			e := instEnd
			switch {
			case en.End != nil:
				e = inst.Start + en.End.Value
			case en.Duration > 0:
				e = s + en.Duration
			}
			if e > instEnd {
				e = instEnd
			}
			if e <= s {
				continue
			}
			spans = append(spans, keyframeSpan{start: s, end: e, content: kf.Content})
		}
	}
	return spans
}

func contentAt(obj *ResolvedObject, inst Instance, at int64) timeline.Content {
	out := make(timeline.Content, len(obj.Content))
	for k, v := range obj.Content {
		out[k] = v
	}
	for _, span := range keyframeSpans(obj, inst) {
		if span.start <= at && at < span.end {
			for k, v := range span.content {
				out[k] = v
			}
		}
	}
	return out
}

func appendBoundaries(events []timeline.NextEvent, obj *ResolvedObject, inst Instance, at, limit int64) []timeline.NextEvent {
	add := func(t int64, typ timeline.EventType) {
		if t > at && t <= limit {
			events = append(events, timeline.NextEvent{Time: t, Type: typ, ObjectID: obj.ID})
		}
	}
	add(inst.Start, timeline.EventStart)
	if inst.End != nil {
		add(*inst.End, timeline.EventEnd)
	}
	for _, span := range keyframeSpans(obj, inst) {
		add(span.start, timeline.EventKeyframe)
		if span.end != math.MaxInt64 {
			add(span.end, timeline.EventKeyframe)
		}
	}
	return events
}
