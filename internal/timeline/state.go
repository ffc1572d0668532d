package timeline

// LayerInstance is the object instance occupying a layer at a point in time.
type LayerInstance struct {
	ID                string  `json:"id"`
	InstanceID        string  `json:"instanceId"`
	Layer             string  `json:"layer"`
	Start             int64   `json:"start"`
	End               *int64  `json:"end,omitempty"`
	Priority          int     `json:"priority,omitempty"`
	Content           Content `json:"content,omitempty"`
	IsLookahead       bool    `json:"isLookahead,omitempty"`
	LookaheadForLayer string  `json:"lookaheadForLayer,omitempty"`
}

// EventType classifies a NextEvent.
type EventType string

// Next event types.
const (
	EventStart    EventType = "start"
	EventEnd      EventType = "end"
	EventKeyframe EventType = "keyframe"
)

// NextEvent is a future point in time at which the resolved state changes.
type NextEvent struct {
	Time     int64     `json:"time"`
	Type     EventType `json:"type"`
	ObjectID string    `json:"objectId"`
}

// State is an immutable snapshot of the resolved timeline at Time.
type State struct {
	Time       int64                    `json:"time"`
	Layers     map[string]LayerInstance `json:"layers"`
	NextEvents []NextEvent              `json:"nextEvents,omitempty"`
}

// DeviceState is the projection of a State onto one device.
type DeviceState struct {
	Time   int64                    `json:"time"`
	Layers map[string]LayerInstance `json:"layers"`
}
