package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/device"
)

// DevicesMakeReady calls MakeReady on every initialized device
// concurrently, each bounded by the lifecycle timeout, then resets the
// resolver. An empty activationID is replaced by a generated one; the id
// actually used is returned.
//
// A device that times out or fails is reported and does not hold back the
// others.
func (c *Conductor) DevicesMakeReady(ctx context.Context, okToDestroyStuff bool, activationID string) (string, error) {
	if activationID == "" {
		activationID = c.ids.Generate()
	}
	err := c.do(ctx, "devicesMakeReady", func(ctx context.Context) error {
		slog.Info("devices make ready",
			"activation_id", activationID,
			"ok_to_destroy", okToDestroyStuff)
		c.broadcast(ctx, "makeReady", func(ctx context.Context, h *device.Handle) error {
			return h.MakeReady(ctx, okToDestroyStuff, activationID)
		})
		c.resetResolver()
		return nil
	})
	return activationID, err
}

// DevicesStandDown calls StandDown on every initialized device, the same
// way DevicesMakeReady calls MakeReady.
func (c *Conductor) DevicesStandDown(ctx context.Context, okToDestroyStuff bool) error {
	return c.do(ctx, "devicesStandDown", func(ctx context.Context) error {
		slog.Info("devices stand down", "ok_to_destroy", okToDestroyStuff)
		c.broadcast(ctx, "standDown", func(ctx context.Context, h *device.Handle) error {
			return h.StandDown(ctx, okToDestroyStuff)
		})
		c.resetResolver()
		return nil
	})
}

// broadcast runs a lifecycle call on every initialized device and reports
// the failures. CRITICAL: loop goroutine only.
func (c *Conductor) broadcast(ctx context.Context, op string, fn func(ctx context.Context, h *device.Handle) error) {
	handles := c.registry.Initialized()
	jobs := make([]dispatchJob, 0, len(handles))
	for _, h := range handles {
		jobs = append(jobs, dispatchJob{handle: h})
	}

	errs := c.fanOut(ctx, jobs, func(ctx context.Context, j dispatchJob) error {
		ctx, cancel := context.WithTimeout(ctx, c.lifecycleTimeout)
		defer cancel()
		return fn(ctx, j.handle)
	})

	for _, id := range sortedKeys(errs) {
		err := errs[id]
		if errors.Is(err, context.DeadlineExceeded) {
			terr := NewTimeoutError(id, op, err)
			slog.Warn("device lifecycle call timed out", "device_id", id, "op", op)
			c.emit(Event{Kind: EventWarning, DeviceID: id, Err: terr, Message: terr.Error()})
			continue
		}
		ferr := &EngineError{Code: ErrCodeActionFailed, Message: op + " failed", DeviceID: id, Err: err}
		slog.Error("device lifecycle call failed", "device_id", id, "op", op, "error", err)
		c.emit(Event{Kind: EventError, DeviceID: id, Err: ferr, Message: ferr.Error()})
	}
}
