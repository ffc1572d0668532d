// Package device defines the contract between the conductor and output
// devices, and the machinery around it.
//
// A Device is wrapped in a Handle, which runs it on a supervisor goroutine
// and clones every input crossing into it. Devices are built by factories
// looked up by device type and live in a Registry, which tracks their
// lifecycle (created, initializing, initialized, terminating, removed) and
// makes creation cancellable without leaking half-built devices.
package device
