package device

import (
	"context"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/clock"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// Device is the contract every output device implements.
//
// Calls on one device are never concurrent: the Handle owning it issues
// them one at a time, in order. States handed to HandleState are private
// copies the device may keep.
type Device interface {
	// Init connects to the device. Options are the device-specific part of
	// the configuration.
	Init(ctx context.Context, options map[string]any) error

	// PrepareForHandleState is called right before HandleState for a state
	// at the given time, so the device can drop anything queued at or
	// after it.
	PrepareForHandleState(ctx context.Context, time int64) error

	// HandleState receives the projected state for this device.
	HandleState(ctx context.Context, state timeline.DeviceState, mappings timeline.Mappings) error

	// ClearFuture tells the device that nothing is scheduled after time.
	ClearFuture(ctx context.Context, time int64) error

	// MakeReady prepares the device for a show. okToDestroyStuff allows
	// disruptive actions such as resetting outputs.
	MakeReady(ctx context.Context, okToDestroyStuff bool, activationID string) error

	// StandDown is the counterpart of MakeReady.
	StandDown(ctx context.Context, okToDestroyStuff bool) error

	// Terminate releases all resources. No other call follows it.
	Terminate(ctx context.Context) error
}

// Params is what a Factory gets to build a device.
type Params struct {
	DeviceID string
	Type     timeline.DeviceType
	Options  map[string]any
	Emit     EmitFunc
	Clock    clock.Clock
}

// Config is the configuration of one device.
type Config struct {
	Type    timeline.DeviceType `json:"type" yaml:"type"`
	Options map[string]any      `json:"options,omitempty" yaml:"options,omitempty"`
	Disable bool                `json:"disable,omitempty" yaml:"disable,omitempty"`
}
