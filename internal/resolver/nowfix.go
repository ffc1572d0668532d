package resolver

import (
	"fmt"
	"log/slog"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// DefaultMaxPasses caps the fixed-point iteration of NowFixer. The bound
// keeps worst-case latency finite; it does not guarantee convergence for
// arbitrarily deep nesting of "now" objects.
const DefaultMaxPasses = 10

// FixedObject records that the "now" start of object ID was rewritten to
// Time. For root objects Time is absolute; for children it is relative to
// the parent instance.
type FixedObject struct {
	ID   string `json:"id"`
	Time int64  `json:"time"`
}

// Result is the outcome of NowFixer.Resolve.
type Result struct {
	Resolved     *Resolved
	ObjectsFixed []FixedObject

	// Passes is the number of resolver invocations made while fixing.
	Passes int

	// Converged is false when the pass cap was hit with objects still
	// waiting for their parent to resolve.
	Converged bool
}

// NowFixer rewrites "now" start times to concrete times and then resolves.
//
// A "now" child can only be fixed once its parent has an instance, and the
// parent may itself be waiting on a "now" start, so fixing proceeds in
// passes: resolve, fix whatever has a resolved parent, repeat.
type NowFixer struct {
	resolver   IntervalResolver
	cache      *Cache
	onFixed    func([]FixedObject)
	maxPasses  int
	limitCount int
}

// FixerOption configures a NowFixer.
type FixerOption func(*NowFixer)

// WithOnFixed registers a callback invoked with the fixed objects whenever a
// call to Resolve fixed at least one.
func WithOnFixed(fn func([]FixedObject)) FixerOption {
	return func(f *NowFixer) {
		f.onFixed = fn
	}
}

// WithMaxPasses overrides DefaultMaxPasses.
func WithMaxPasses(n int) FixerOption {
	return func(f *NowFixer) {
		if n > 0 {
			f.maxPasses = n
		}
	}
}

// WithLimitCount overrides DefaultLimitCount.
func WithLimitCount(n int) FixerOption {
	return func(f *NowFixer) {
		if n > 0 {
			f.limitCount = n
		}
	}
}

// NewNowFixer wraps r. Resolve calls with useCache go through a Cache
// shared by all calls on this fixer.
func NewNowFixer(r IntervalResolver, opts ...FixerOption) *NowFixer {
	f := &NowFixer{
		resolver:   r,
		cache:      NewCache(r),
		maxPasses:  DefaultMaxPasses,
		limitCount: DefaultLimitCount,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Cache returns the cross-call cache used when useCache is set.
func (f *NowFixer) Cache() *Cache { return f.cache }

// Resolve fixes the "now" starts in tl in place and resolves the window
// [resolveTime, resolveTime+limitTime].
//
// tl is modified: every rewrite is applied to it so callers that keep tl as
// their source of truth never have to fix the same object twice.
func (f *NowFixer) Resolve(tl *timeline.Timeline, resolveTime, limitTime int64, useCache bool) (*Result, error) {
	var r IntervalResolver = f.resolver
	if useCache {
		r = f.cache
	}

	res := &Result{}
	fix := func(id string, t int64) {
		if tl.SetStart(id, t) {
			res.ObjectsFixed = append(res.ObjectsFixed, FixedObject{ID: id, Time: t})
		}
	}

	// Pass 0: roots need no resolve.
	for _, id := range tl.Roots {
		if n, ok := tl.Node(id); ok && n.Enable.HasNow() {
			fix(id, resolveTime)
		}
	}

	var last *Resolved
	lastFixedNothing := false
	for res.Passes < f.maxPasses {
		resolved, err := r.Resolve(tl, resolveTime, limitTime, f.limitCount)
		if err != nil {
			return nil, fmt.Errorf("now-fix pass %d: %w", res.Passes+1, err)
		}
		res.Passes++
		last = resolved

		fixed, again := f.fixPass(tl, resolved, resolveTime, fix)
		lastFixedNothing = fixed == 0
		if fixed == 0 && !again {
			res.Converged = true
			break
		}
	}

	if !res.Converged {
		slog.Warn("now-fix did not converge",
			"passes", res.Passes,
			"resolve_time", resolveTime,
			"fixed", len(res.ObjectsFixed))
	}

	// The last pass resolved exactly the current timeline; reuse it.
	if lastFixedNothing && last != nil {
		res.Resolved = last
	} else {
		resolved, err := r.Resolve(tl, resolveTime, limitTime, f.limitCount)
		if err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
		res.Resolved = resolved
	}

	if len(res.ObjectsFixed) > 0 && f.onFixed != nil {
		f.onFixed(res.ObjectsFixed)
	}
	return res, nil
}

// fixPass rewrites every remaining "now" object whose parent has an
// instance. again reports whether some object is still waiting on an
// unfixed ancestor.
func (f *NowFixer) fixPass(tl *timeline.Timeline, resolved *Resolved, resolveTime int64, fix func(string, int64)) (fixed int, again bool) {
	tl.Walk(func(n *timeline.Node) bool {
		if !n.Enable.HasNow() {
			return true
		}
		if n.Parent == "" {
			fix(n.ID, resolveTime)
			fixed++
			return true
		}
		parent, ok := resolved.Object(n.Parent)
		if ok && len(parent.Instances) > 0 {
			inst := pickInstance(parent.Instances, resolveTime)
			fix(n.ID, resolveTime-inst.OriginalStart)
			fixed++
			return true
		}
		if hasNowAncestor(tl, n) {
			again = true
		}
		// An ancestor outside the window can never give this object a
		// start; it stays unresolved.
		return true
	})
	return fixed, again
}

// pickInstance prefers the instance covering t, then the latest one that
// started before t, then the first.
func pickInstance(instances []Instance, t int64) Instance {
	for _, inst := range instances {
		if inst.Covers(t) {
			return inst
		}
	}
	best := instances[0]
	for _, inst := range instances {
		if inst.Start <= t && inst.Start >= best.Start {
			best = inst
		}
	}
	return best
}

func hasNowAncestor(tl *timeline.Timeline, n *timeline.Node) bool {
	for id := n.Parent; id != ""; {
		p, ok := tl.Node(id)
		if !ok {
			return false
		}
		if p.Enable.HasNow() {
			return true
		}
		id = p.Parent
	}
	return false
}
