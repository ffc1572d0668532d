package engine

import (
	"time"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/clock"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/device"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/resolver"
)

// Scheduling defaults, in ms.
const (
	// DefaultLookahead is how far ahead of now a resolve may target. A
	// cycle scheduled further out reschedules itself instead.
	DefaultLookahead int64 = 5000

	// DefaultPrepareTime is the lead time devices get before a state
	// change.
	DefaultPrepareTime int64 = 2000

	// DefaultMinTriggerTime is the shortest delay between two cycles.
	DefaultMinTriggerTime int64 = 10

	// DefaultResolveLimit is the length of the resolve window, and so the
	// lifetime of the resolve cache.
	DefaultResolveLimit int64 = 10000

	// DefaultTickInterval is the fallback interval between cycles.
	DefaultTickInterval int64 = 2500

	// DefaultCallbackWait is how long a callback edge is held back so that
	// a flip-flop can cancel it.
	DefaultCallbackWait int64 = 50

	// DefaultLifecycleTimeout bounds makeReady and standDown per device.
	// It is 10 s rather than 10 ms: a 10 ms bound would time out any
	// device that talks to real hardware.
	DefaultLifecycleTimeout = 10 * time.Second
)

// Option configures a Conductor.
type Option func(*Conductor)

// WithClock sets the time source. Default: clock.System.
func WithClock(c clock.Clock) Option {
	return func(cd *Conductor) {
		cd.clock = c
	}
}

// WithResolver sets the interval resolver. Default: resolver.Interval.
func WithResolver(r resolver.IntervalResolver) Option {
	return func(cd *Conductor) {
		cd.intervals = r
	}
}

// WithFactories sets the device factories. Default: device.DefaultFactories.
func WithFactories(f *device.Factories) Option {
	return func(cd *Conductor) {
		cd.factories = f
	}
}

// WithListener adds an event listener.
func WithListener(l Listener) Option {
	return func(cd *Conductor) {
		cd.listeners = append(cd.listeners, l)
	}
}

// WithIDGenerator sets the activation id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(cd *Conductor) {
		cd.ids = g
	}
}

// WithProactiveResolve enables resolving ahead of time by the estimated
// resolve duration.
func WithProactiveResolve(on bool) Option {
	return func(cd *Conductor) {
		cd.proactive = on
	}
}

// WithEstimateMultiplier scales EstimateResolveTime. Default: 1.
func WithEstimateMultiplier(m float64) Option {
	return func(cd *Conductor) {
		if m > 0 {
			cd.multiplier = m
		}
	}
}

// WithRemoveTimeout bounds device removal. Default: device.DefaultRemoveTimeout.
func WithRemoveTimeout(d time.Duration) Option {
	return func(cd *Conductor) {
		if d > 0 {
			cd.removeTimeout = d
		}
	}
}

// WithLifecycleTimeout bounds makeReady/standDown per device.
// Default: DefaultLifecycleTimeout.
func WithLifecycleTimeout(d time.Duration) Option {
	return func(cd *Conductor) {
		if d > 0 {
			cd.lifecycleTimeout = d
		}
	}
}

// WithTickInterval sets the fallback interval between cycles, in ms.
// Zero disables the fallback tick.
func WithTickInterval(ms int64) Option {
	return func(cd *Conductor) {
		cd.tick = ms
	}
}

// WithStatSeqStart makes StatReport sequence numbers continue after n,
// e.g. after the last report already journaled.
func WithStatSeqStart(n int64) Option {
	return func(cd *Conductor) {
		cd.seq = clock.NewSequenceAt(n)
	}
}
