// Package engine implements the Conductor, the scheduling engine that
// turns a timeline into per-device states just ahead of real time.
//
// ARCHITECTURE:
//
// Single-Writer Action Loop:
// Every mutation of engine state (timeline, mappings, datastore, resolve
// cycles, callback bookkeeping) is an action on one FIFO queue, executed by
// Conductor.Run one at a time. This ensures:
// - A reset, a datastore update and a resolve cycle never interleave
// - One failing action never stops the ones behind it
// - Device events reach listeners on the same goroutine as everything else
//
// Resolve Cycle:
//  1. Pick the resolve time: now (plus the estimated resolve duration when
//     proactive), or the scheduled next event; postpone if too far ahead
//  2. Resolve, reusing the previous result while inside its window
//  3. Slice the state at the resolve time and project it per device
//  4. Fill datastore references, retain, and dispatch to all devices
//     concurrently
//  5. Arm the timer for the next event, or tell devices the future is clear
//  6. Diff the callback objects and emit start/stop callbacks
//  7. Report ResolveDone and a StatReport
//
// Devices are slow and unreliable, so dispatch fans out per device and
// isolates failures: each failing device yields one Error event and the
// others still get their state.
//
// CRITICAL PATTERNS:
//
// Time is an int64 of ms read from a clock.Clock. Tests drive the engine
// with testutil.ManualClock and never sleep.
//
// Listeners run on the loop goroutine. Calling a blocking Conductor method
// from a listener deadlocks.
package engine
