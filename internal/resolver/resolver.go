package resolver

import (
	"fmt"
	"math"
	"sort"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// DefaultLimitCount bounds the number of instances generated per object so
// that infinitely repeating objects stay cheap to resolve.
const DefaultLimitCount = 999

// IntervalResolver expands a timeline into absolute time intervals.
//
// Resolve covers the window [time, time+limitTime] and generates at most
// limitCount instances per object. Implementations must not modify tl.
type IntervalResolver interface {
	Resolve(tl *timeline.Timeline, time, limitTime int64, limitCount int) (*Resolved, error)
}

// Instance is one absolute interval during which an object is active.
//
// OriginalStart is the start before clipping to the parent instance. It is
// also what the instance id is derived from, so an instance keeps its id
// across re-resolves even when the resolve window moves past its start.
type Instance struct {
	ID            string `json:"id"`
	Start         int64  `json:"start"`
	End           *int64 `json:"end,omitempty"`
	OriginalStart int64  `json:"originalStart"`
}

// Covers reports whether the instance is active at t.
func (i Instance) Covers(t int64) bool {
	return i.Start <= t && (i.End == nil || t < *i.End)
}

func (i Instance) endOr(open int64) int64 {
	if i.End == nil {
		return open
	}
	return *i.End
}

// ResolvedObject is a timeline node together with its instances inside the
// resolve window. Objects that are not resolvable yet (a "now" start on the
// object or one of its ancestors) have no instances.
type ResolvedObject struct {
	ID        string
	Parent    string
	Layer     string
	Priority  int
	Content   timeline.Content
	Keyframes []timeline.Object

	IsLookahead       bool
	LookaheadForLayer string

	Instances []Instance
}

// Resolved is the output of an IntervalResolver.
type Resolved struct {
	Time      int64
	LimitTime int64
	Objects   map[string]*ResolvedObject

	// Order lists object ids in timeline declaration order.
	Order []string
}

// Limit returns the absolute end of the resolve window.
func (r *Resolved) Limit() int64 { return r.Time + r.LimitTime }

// Object returns the resolved object with the given id.
func (r *Resolved) Object(id string) (*ResolvedObject, bool) {
	o, ok := r.Objects[id]
	return o, ok
}

// Interval is the in-repo IntervalResolver.
//
// Root enable times are absolute. Children's enable times are relative to
// the start of the parent instance they belong to, and each child instance is
// clipped to its parent instance. A repeating enable restarts every
// Repeating ms; without an end or duration each repetition lasts until the
// next one.
type Interval struct{}

var _ IntervalResolver = Interval{}

// Resolve implements IntervalResolver.
func (Interval) Resolve(tl *timeline.Timeline, time, limitTime int64, limitCount int) (*Resolved, error) {
	if tl == nil {
		return nil, fmt.Errorf("resolve: nil timeline")
	}
	if limitTime < 0 {
		return nil, fmt.Errorf("resolve: negative limit time %d", limitTime)
	}
	if limitCount <= 0 {
		limitCount = DefaultLimitCount
	}

	r := &Resolved{
		Time:      time,
		LimitTime: limitTime,
		Objects:   make(map[string]*ResolvedObject, len(tl.Nodes)),
	}
	w := window{from: time, to: time + limitTime, count: limitCount}

	root := []Instance{{Start: math.MinInt64, OriginalStart: 0}}
	for _, id := range tl.Roots {
		if err := w.resolveNode(tl, r, id, root, true); err != nil {
			return nil, err
		}
	}
	return r, nil
}

type window struct {
	from, to int64
	count    int
}

// resolveNode records the node and its instances, then recurses into its
// children. parents are the instances of the parent node; for root nodes a
// single unbounded pseudo-instance anchored at 0.
func (w window) resolveNode(tl *timeline.Timeline, r *Resolved, id string, parents []Instance, resolvable bool) error {
	n, ok := tl.Node(id)
	if !ok {
		return fmt.Errorf("resolve: dangling node reference %q", id)
	}

	obj := &ResolvedObject{
		ID:                n.ID,
		Parent:            n.Parent,
		Layer:             n.Layer,
		Priority:          n.Priority,
		Content:           n.Content,
		Keyframes:         n.Keyframes,
		IsLookahead:       n.IsLookahead,
		LookaheadForLayer: n.LookaheadForLayer,
	}
	r.Objects[n.ID] = obj
	r.Order = append(r.Order, n.ID)

	resolvable = resolvable && !n.Enable.HasNow()
	if resolvable {
		for _, p := range parents {
			for _, en := range n.Enable {
				obj.Instances = w.expand(obj.Instances, n.ID, en, p)
				if len(obj.Instances) >= w.count {
					obj.Instances = obj.Instances[:w.count]
					break
				}
			}
			if len(obj.Instances) >= w.count {
				break
			}
		}
		sort.SliceStable(obj.Instances, func(i, j int) bool {
			return obj.Instances[i].Start < obj.Instances[j].Start
		})
	}

	for _, c := range n.Children {
		if err := w.resolveNode(tl, r, c, obj.Instances, resolvable); err != nil {
			return err
		}
	}
	return nil
}

// expand appends the instances produced by one enable inside one parent
// instance.
func (w window) expand(out []Instance, id string, en timeline.Enable, parent Instance) []Instance {
	base := parent.OriginalStart
	start := base + en.Start.Value

	var end *int64
	switch {
	case en.End != nil:
		v := base + en.End.Value
		end = &v
	case en.Duration > 0:
		v := start + en.Duration
		end = &v
	}

	if en.Repeating <= 0 {
		if inst, ok := w.clip(id, start, end, parent); ok {
			out = append(out, inst)
		}
		return out
	}

	period := en.Repeating
	length := period
	if end != nil {
		length = *end - start
	}
	if length <= 0 {
		return out
	}

	// First repetition still active at the window start.
	k := int64(0)
	if w.from > start+length {
		k = (w.from - start - length) / period
	}
	for ; len(out) < w.count; k++ {
		s := start + k*period
		if s > w.to {
			break
		}
		e := s + length
		if inst, ok := w.clip(id, s, &e, parent); ok {
			out = append(out, inst)
		}
	}
	return out
}

// clip intersects [start, end) with the parent instance and the window. It
// reports false when nothing of the interval is left.
func (w window) clip(id string, start int64, end *int64, parent Instance) (Instance, bool) {
	s := start
	if parent.Start > s {
		s = parent.Start
	}

	var e *int64
	if end != nil {
		v := *end
		e = &v
	}
	if parent.End != nil && (e == nil || *parent.End < *e) {
		v := *parent.End
		e = &v
	}

	if e != nil && *e <= s {
		return Instance{}, false
	}
	if s > w.to || (e != nil && *e <= w.from) {
		return Instance{}, false
	}
	return Instance{
		ID:            fmt.Sprintf("%s@%d", id, start),
		Start:         s,
		End:           e,
		OriginalStart: start,
	}, true
}
