package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// ErrHandleClosed is returned by calls on a terminated handle.
var ErrHandleClosed = errors.New("device handle closed")

// Handle supervises one device on its own goroutine.
//
// Every call becomes a request on a channel that the supervisor serves in
// arrival order, so calls on one device are delivered in the order they
// were made and never overlap. Inputs are structurally cloned before they
// cross into the supervisor. A call returns when the device finishes or the
// caller's ctx ends, whichever comes first; an abandoned call still runs to
// completion on the supervisor.
type Handle struct {
	id  string
	typ timeline.DeviceType
	dev Device

	reqs      chan request
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type request struct {
	ctx   context.Context
	name  string
	fn    func(ctx context.Context) error
	reply chan error
	final bool
}

func newHandle(id string, typ timeline.DeviceType, dev Device) *Handle {
	h := &Handle{
		id:   id,
		typ:  typ,
		dev:  dev,
		reqs: make(chan request),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go h.loop()
	return h
}

// ID returns the device id.
func (h *Handle) ID() string { return h.id }

// Type returns the device type.
func (h *Handle) Type() timeline.DeviceType { return h.typ }

// Device returns the supervised device.
func (h *Handle) Device() Device { return h.dev }

func (h *Handle) loop() {
	defer close(h.done)
	for {
		select {
		case req := <-h.reqs:
			if err := req.ctx.Err(); err != nil {
				req.reply <- err
				continue
			}
			req.reply <- h.invoke(req)
			if req.final {
				return
			}
		case <-h.quit:
			return
		}
	}
}

func (h *Handle) invoke(req request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device %s: %s panicked: %v", h.id, req.name, r)
		}
	}()
	return req.fn(req.ctx)
}

func (h *Handle) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return h.send(ctx, request{name: name, fn: fn})
}

func (h *Handle) send(ctx context.Context, req request) error {
	req.ctx = ctx
	req.reply = make(chan error, 1)
	select {
	case h.reqs <- req:
	case <-h.done:
		return ErrHandleClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Init forwards to Device.Init.
func (h *Handle) Init(ctx context.Context, options map[string]any) error {
	opts, err := timeline.Clone(options)
	if err != nil {
		return err
	}
	return h.call(ctx, "init", func(ctx context.Context) error {
		return h.dev.Init(ctx, opts)
	})
}

// PrepareForHandleState forwards to Device.PrepareForHandleState.
func (h *Handle) PrepareForHandleState(ctx context.Context, time int64) error {
	return h.call(ctx, "prepareForHandleState", func(ctx context.Context) error {
		return h.dev.PrepareForHandleState(ctx, time)
	})
}

// HandleState forwards a cloned state and mappings to Device.HandleState.
func (h *Handle) HandleState(ctx context.Context, state timeline.DeviceState, mappings timeline.Mappings) error {
	st, err := timeline.Clone(state)
	if err != nil {
		return err
	}
	m, err := timeline.Clone(mappings)
	if err != nil {
		return err
	}
	return h.call(ctx, "handleState", func(ctx context.Context) error {
		return h.dev.HandleState(ctx, st, m)
	})
}

// ClearFuture forwards to Device.ClearFuture.
func (h *Handle) ClearFuture(ctx context.Context, time int64) error {
	return h.call(ctx, "clearFuture", func(ctx context.Context) error {
		return h.dev.ClearFuture(ctx, time)
	})
}

// MakeReady forwards to Device.MakeReady.
func (h *Handle) MakeReady(ctx context.Context, okToDestroyStuff bool, activationID string) error {
	return h.call(ctx, "makeReady", func(ctx context.Context) error {
		return h.dev.MakeReady(ctx, okToDestroyStuff, activationID)
	})
}

// StandDown forwards to Device.StandDown.
func (h *Handle) StandDown(ctx context.Context, okToDestroyStuff bool) error {
	return h.call(ctx, "standDown", func(ctx context.Context) error {
		return h.dev.StandDown(ctx, okToDestroyStuff)
	})
}

// Terminate forwards to Device.Terminate and then stops the supervisor,
// whether or not the device terminated cleanly. Calls made afterwards fail
// with ErrHandleClosed.
func (h *Handle) Terminate(ctx context.Context) error {
	defer h.close()
	return h.send(ctx, request{
		name:  "terminate",
		fn:    func(ctx context.Context) error { return h.dev.Terminate(ctx) },
		final: true,
	})
}

// close stops the supervisor once the request in progress, if any, has
// been served.
func (h *Handle) close() {
	h.closeOnce.Do(func() { close(h.quit) })
}
