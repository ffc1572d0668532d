package engine

import (
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/device"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/resolver"
)

// EventKind classifies conductor events.
type EventKind string

// Conductor event kinds.
const (
	// EventSetTimelineTriggerTime carries the "now" starts fixed in the
	// last resolve, so the host can bake them into its own copy of the
	// timeline.
	EventSetTimelineTriggerTime EventKind = "setTimelineTriggerTime"
	EventTimelineCallback       EventKind = "timelineCallback"
	EventResolveDone            EventKind = "resolveDone"
	EventStatReport             EventKind = "statReport"
	EventDeviceStatus           EventKind = "deviceStatus"
	EventCommandReport          EventKind = "commandReport"
	EventError                  EventKind = "error"
	EventWarning                EventKind = "warning"
	EventInfo                   EventKind = "info"
	EventDebug                  EventKind = "debug"
)

// CallbackEdge is the kind of a timeline callback.
type CallbackEdge string

// Callback edges.
const (
	CallbackStart CallbackEdge = "start"
	CallbackStop  CallbackEdge = "stop"
)

// TimelineCallback notifies the host that an object instance carrying a
// callback descriptor started or stopped playing.
type TimelineCallback struct {
	Time       int64        `json:"time"`
	InstanceID string       `json:"instanceId"`
	ObjectID   string       `json:"objectId"`
	Edge       CallbackEdge `json:"edge"`
	Callback   string       `json:"callback"`
	Data       any          `json:"data,omitempty"`
}

// StatReport describes one resolve cycle.
type StatReport struct {
	Seq    int64  `json:"seq"`
	Reason string `json:"reason"`

	// Time is when the cycle started, ResolveTime the time it resolved for.
	Time        int64 `json:"time"`
	ResolveTime int64 `json:"resolveTime"`

	EstimatedResolveTime int64 `json:"estimatedResolveTime"`
	TimelineSize         int   `json:"timelineSize"`

	// Durations in ms of the phases of the cycle.
	ResolveDuration  int64 `json:"resolveDuration"`
	DispatchDuration int64 `json:"dispatchDuration"`
	TotalDuration    int64 `json:"totalDuration"`

	CacheHit bool `json:"cacheHit"`
}

// ResolveDone reports that a cycle resolved the timeline with the given
// hash.
type ResolveDone struct {
	TimelineHash string `json:"timelineHash"`
	Duration     int64  `json:"duration"`
}

// Event is something the conductor reports to its host.
type Event struct {
	Kind     EventKind
	Time     int64
	DeviceID string
	Message  string
	Err      error

	ObjectsFixed []resolver.FixedObject
	Callback     *TimelineCallback
	ResolveDone  *ResolveDone
	Stats        *StatReport
	Status       *device.Status
	Command      *device.CommandReport
}

// Listener receives conductor events. Listeners run on the conductor's
// loop goroutine and must not call back into the conductor synchronously
// (Sync would deadlock); enqueueing calls is fine.
type Listener func(Event)
