package timeline

import (
	"errors"
	"fmt"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/ir"
)

// Validation errors returned by New.
var (
	ErrEmptyID          = errors.New("timeline object has an empty id")
	ErrDuplicateID      = errors.New("duplicate timeline object id")
	ErrChildrenNotGroup = errors.New("timeline object has children but is not a group")
)

// Node is one timeline object inside the arena. Children and Parent are ids,
// never pointers, so a Timeline can be cloned or sent across a goroutine
// boundary as plain data and can never contain a reference cycle.
type Node struct {
	ID                string   `json:"id"`
	Parent            string   `json:"parent,omitempty"`
	Children          []string `json:"children,omitempty"`
	Enable            Enables  `json:"enable"`
	Layer             string   `json:"layer,omitempty"`
	Priority          int      `json:"priority,omitempty"`
	IsGroup           bool     `json:"isGroup,omitempty"`
	Keyframes         []Object `json:"keyframes,omitempty"`
	Content           Content  `json:"content,omitempty"`
	IsLookahead       bool     `json:"isLookahead,omitempty"`
	LookaheadForLayer string   `json:"lookaheadForLayer,omitempty"`
}

// Timeline is the arena form of a timeline forest.
//
// INVARIANTS:
//   - every id in Roots and in any Node.Children is a key of Nodes
//   - every node is reachable from exactly one root
//   - ids are unique across the whole forest
type Timeline struct {
	Nodes map[string]*Node `json:"nodes"`
	Roots []string         `json:"roots"`
}

// New builds the arena from a forest of objects, rejecting empty and
// duplicate ids. Children order and root order are preserved.
func New(objects []Object) (*Timeline, error) {
	tl := &Timeline{Nodes: make(map[string]*Node, len(objects))}
	for _, obj := range objects {
		if err := tl.add(obj, ""); err != nil {
			return nil, err
		}
		tl.Roots = append(tl.Roots, obj.ID)
	}
	return tl, nil
}

// MustNew is like New but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustNew(objects []Object) *Timeline {
	tl, err := New(objects)
	if err != nil {
		panic(err)
	}
	return tl
}

func (t *Timeline) add(obj Object, parent string) error {
	if obj.ID == "" {
		return ErrEmptyID
	}
	// A repeated id is the only way a forest can alias a node, so rejecting
	// it keeps the arena acyclic.
	if _, seen := t.Nodes[obj.ID]; seen {
		return fmt.Errorf("%w: %q", ErrDuplicateID, obj.ID)
	}
	if len(obj.Children) > 0 && !obj.IsGroup {
		return fmt.Errorf("%w: %q", ErrChildrenNotGroup, obj.ID)
	}

	n := &Node{
		ID:                obj.ID,
		Parent:            parent,
		Enable:            append(Enables(nil), obj.Enable...),
		Layer:             obj.Layer,
		Priority:          obj.Priority,
		IsGroup:           obj.IsGroup,
		Keyframes:         obj.Keyframes,
		Content:           obj.Content,
		IsLookahead:       obj.IsLookahead,
		LookaheadForLayer: obj.LookaheadForLayer,
	}
	t.Nodes[obj.ID] = n

	for _, child := range obj.Children {
		if err := t.add(child, obj.ID); err != nil {
			return err
		}
		n.Children = append(n.Children, child.ID)
	}
	return nil
}

// Node returns the node with the given id.
func (t *Timeline) Node(id string) (*Node, bool) {
	if t == nil {
		return nil, false
	}
	n, ok := t.Nodes[id]
	return n, ok
}

// Walk visits every node depth-first in declaration order. Returning false
// from fn skips the node's children.
func (t *Timeline) Walk(fn func(n *Node) bool) {
	if t == nil {
		return
	}
	var visit func(id string)
	visit = func(id string) {
		n, ok := t.Nodes[id]
		if !ok {
			return
		}
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, r := range t.Roots {
		visit(r)
	}
}

// Objects rebuilds the forest form of the timeline.
func (t *Timeline) Objects() []Object {
	if t == nil {
		return nil
	}
	var build func(id string) Object
	build = func(id string) Object {
		n := t.Nodes[id]
		obj := Object{
			ID:                n.ID,
			Enable:            n.Enable,
			Layer:             n.Layer,
			Priority:          n.Priority,
			IsGroup:           n.IsGroup,
			Keyframes:         n.Keyframes,
			Content:           n.Content,
			IsLookahead:       n.IsLookahead,
			LookaheadForLayer: n.LookaheadForLayer,
		}
		for _, c := range n.Children {
			obj.Children = append(obj.Children, build(c))
		}
		return obj
	}
	out := make([]Object, 0, len(t.Roots))
	for _, r := range t.Roots {
		out = append(out, build(r))
	}
	return out
}

// Size counts every object, nested child and keyframe.
func (t *Timeline) Size() int {
	size := 0
	t.Walk(func(n *Node) bool {
		size += 1 + len(n.Keyframes)
		return true
	})
	return size
}

// SetStart rewrites the start of every enable of an object that currently
// starts at "now".
func (t *Timeline) SetStart(id string, start int64) bool {
	n, ok := t.Node(id)
	if !ok {
		return false
	}
	changed := false
	for i := range n.Enable {
		if n.Enable[i].Start.Now {
			n.Enable[i].Start = At(start)
			changed = true
		}
	}
	return changed
}

// Clone returns a structural deep copy of the timeline.
func (t *Timeline) Clone() (*Timeline, error) {
	if t == nil {
		return nil, nil
	}
	return Clone(t)
}

// Hash returns the content hash of the timeline.
func (t *Timeline) Hash() (string, error) {
	return ir.Hash(ir.DomainTimeline, t.Objects())
}
