package device

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// ---------------------------------------------------------------------------
// stubDevice
// ---------------------------------------------------------------------------

type stubDevice struct{ mock.Mock }

func (d *stubDevice) Init(ctx context.Context, options map[string]any) error {
	return d.Called(ctx, options).Error(0)
}
func (d *stubDevice) PrepareForHandleState(ctx context.Context, time int64) error {
	return d.Called(ctx, time).Error(0)
}
func (d *stubDevice) HandleState(ctx context.Context, st timeline.DeviceState, m timeline.Mappings) error {
	return d.Called(ctx, st, m).Error(0)
}
func (d *stubDevice) ClearFuture(ctx context.Context, time int64) error {
	return d.Called(ctx, time).Error(0)
}
func (d *stubDevice) MakeReady(ctx context.Context, ok bool, activationID string) error {
	return d.Called(ctx, ok, activationID).Error(0)
}
func (d *stubDevice) StandDown(ctx context.Context, ok bool) error {
	return d.Called(ctx, ok).Error(0)
}
func (d *stubDevice) Terminate(ctx context.Context) error {
	return d.Called(ctx).Error(0)
}

// stubFactories registers a "stub" type whose factory returns dev.
func stubFactories(dev Device) *Factories {
	f := NewFactories()
	f.Register("stub", func(context.Context, Params) (Device, error) { return dev, nil })
	return f
}
