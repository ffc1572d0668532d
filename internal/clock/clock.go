// Package clock provides the time source used by the conductor and by
// devices. All times are int64 milliseconds.
package clock

import "time"

// Clock is a source of wall-clock time plus one-shot timers.
//
// Implemented by System (production) and testutil.ManualClock (tests).
type Clock interface {
	// Now returns the current time in milliseconds.
	Now() int64

	// AfterFunc calls f in its own goroutine once delay milliseconds have
	// passed. A non-positive delay fires as soon as possible.
	AfterFunc(delay int64, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from firing. It reports whether the call was
	// still pending.
	Stop() bool
}

// System is the real clock.
type System struct{}

var _ Clock = System{}

// Now returns Unix time in milliseconds.
func (System) Now() int64 {
	return time.Now().UnixMilli()
}

// AfterFunc wraps time.AfterFunc.
func (System) AfterFunc(delay int64, f func()) Timer {
	if delay < 0 {
		delay = 0
	}
	return time.AfterFunc(time.Duration(delay)*time.Millisecond, f)
}
