package device

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/clock"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// TypeAbstract is the built-in device that talks to no hardware. It turns
// state changes into timed commands and reports each one as it runs, which
// makes it useful for dry runs and as a reference device.
const TypeAbstract timeline.DeviceType = "abstract"

// CommandType is what happened to a layer between two states.
type CommandType string

// Abstract device command types.
const (
	CommandAdded   CommandType = "added"
	CommandChanged CommandType = "changed"
	CommandRemoved CommandType = "removed"
)

// Command is one layer transition due at Time.
type Command struct {
	Time     int64
	Layer    string
	Type     CommandType
	Instance timeline.LayerInstance
}

// Diff returns the commands that turn from into to, sorted by layer.
func Diff(from, to timeline.DeviceState) []Command {
	var cmds []Command
	for layer, next := range to.Layers {
		prev, ok := from.Layers[layer]
		switch {
		case !ok:
			cmds = append(cmds, Command{Time: to.Time, Layer: layer, Type: CommandAdded, Instance: next})
		case prev.InstanceID != next.InstanceID || !reflect.DeepEqual(prev.Content, next.Content):
			cmds = append(cmds, Command{Time: to.Time, Layer: layer, Type: CommandChanged, Instance: next})
		}
	}
	for layer, prev := range from.Layers {
		if _, ok := to.Layers[layer]; !ok {
			cmds = append(cmds, Command{Time: to.Time, Layer: layer, Type: CommandRemoved, Instance: prev})
		}
	}
	sort.Slice(cmds, func(i, j int) bool {
		if cmds[i].Layer != cmds[j].Layer {
			return cmds[i].Layer < cmds[j].Layer
		}
		return cmds[i].Type < cmds[j].Type
	})
	return cmds
}

type scheduled struct {
	cmd   Command
	timer clock.Timer
}

// Abstract is the TypeAbstract device.
type Abstract struct {
	id    string
	emit  EmitFunc
	clock clock.Clock

	mu        sync.Mutex
	states    []timeline.DeviceState // sorted by time, oldest is the one in effect
	queue     []*scheduled
	activated string
}

// NewAbstract is the Factory for TypeAbstract.
func NewAbstract(_ context.Context, p Params) (Device, error) {
	emit := p.Emit
	if emit == nil {
		emit = discard
	}
	c := p.Clock
	if c == nil {
		c = clock.System{}
	}
	return &Abstract{id: p.DeviceID, emit: emit, clock: c}, nil
}

// Init implements Device.
func (a *Abstract) Init(_ context.Context, _ map[string]any) error {
	a.emit(Event{Kind: EventStatus, Status: &Status{Code: StatusGood}})
	return nil
}

// PrepareForHandleState drops queued commands at or after t.
func (a *Abstract) PrepareForHandleState(_ context.Context, t int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dropFrom(t)
	return nil
}

// HandleState diffs the state against the one in effect just before it and
// schedules the resulting commands.
func (a *Abstract) HandleState(_ context.Context, st timeline.DeviceState, _ timeline.Mappings) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.dropFrom(st.Time)

	var prev timeline.DeviceState
	if n := len(a.states); n > 0 {
		prev = a.states[n-1]
	}
	a.states = append(a.states, st)

	now := a.clock.Now()
	for _, cmd := range Diff(prev, st) {
		s := &scheduled{cmd: cmd}
		s.timer = a.clock.AfterFunc(cmd.Time-now, func() { a.execute(s) })
		a.queue = append(a.queue, s)
	}
	a.compact(now)
	return nil
}

// ClearFuture drops everything queued after t.
func (a *Abstract) ClearFuture(_ context.Context, t int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dropFrom(t + 1)
	return nil
}

// MakeReady records the activation. With okToDestroyStuff the device
// forgets its state and asks for a re-resolve so everything is sent again.
func (a *Abstract) MakeReady(_ context.Context, okToDestroyStuff bool, activationID string) error {
	a.mu.Lock()
	a.activated = activationID
	if okToDestroyStuff {
		a.dropFrom(0)
		a.states = nil
	}
	a.mu.Unlock()

	a.emit(Event{Kind: EventInfo, Message: fmt.Sprintf("make ready (activation %s)", activationID)})
	if okToDestroyStuff {
		a.emit(Event{Kind: EventResetResolver})
	}
	return nil
}

// StandDown implements Device.
func (a *Abstract) StandDown(_ context.Context, _ bool) error {
	a.mu.Lock()
	a.activated = ""
	a.mu.Unlock()
	a.emit(Event{Kind: EventInfo, Message: "stand down"})
	return nil
}

// Terminate stops all pending commands.
func (a *Abstract) Terminate(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dropFrom(0)
	a.states = nil
	return nil
}

// Queued returns the commands still waiting to run, in due order.
func (a *Abstract) Queued() []Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Command, 0, len(a.queue))
	for _, s := range a.queue {
		out = append(out, s.cmd)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// ActivationID returns the id of the current activation, if any.
func (a *Abstract) ActivationID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activated
}

func (a *Abstract) execute(s *scheduled) {
	a.mu.Lock()
	found := false
	for i, q := range a.queue {
		if q == s {
			a.queue = append(a.queue[:i], a.queue[i+1:]...)
			found = true
			break
		}
	}
	now := a.clock.Now()
	a.mu.Unlock()
	if !found {
		return
	}

	a.emit(Event{
		Kind: EventCommandReport,
		Command: &CommandReport{
			Time:     s.cmd.Time,
			Layer:    s.cmd.Layer,
			Type:     string(s.cmd.Type),
			Context:  s.cmd.Instance.InstanceID,
			Executed: now,
		},
	})
}

// dropFrom cancels commands and forgets states at or after t.
// Callers hold a.mu.
func (a *Abstract) dropFrom(t int64) {
	kept := a.queue[:0]
	for _, s := range a.queue {
		if s.cmd.Time >= t {
			s.timer.Stop()
			continue
		}
		kept = append(kept, s)
	}
	a.queue = kept

	n := 0
	for _, st := range a.states {
		if st.Time < t {
			a.states[n] = st
			n++
		}
	}
	a.states = a.states[:n]
}

// compact forgets states that can no longer serve as a diff base: all but
// the latest one at or before now.
// Callers hold a.mu.
func (a *Abstract) compact(now int64) {
	i := 0
	for i+1 < len(a.states) && a.states[i+1].Time <= now {
		i++
	}
	a.states = a.states[i:]
}
