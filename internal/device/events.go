package device

import "fmt"

// EventKind classifies events emitted by devices.
type EventKind string

// Device event kinds.
const (
	EventStatus        EventKind = "status"
	EventInfo          EventKind = "info"
	EventWarning       EventKind = "warning"
	EventError         EventKind = "error"
	EventDebug         EventKind = "debug"
	EventCommandReport EventKind = "commandReport"

	// EventResetResolver asks the conductor to resolve again at now.
	EventResetResolver EventKind = "resetResolver"
)

// StatusCode is the coarse health of a device.
type StatusCode uint8

const (
	StatusUnknown StatusCode = iota
	StatusGood
	StatusWarningMinor
	StatusWarningMajor
	StatusBad
	StatusFatal
)

// String returns a human-readable status name.
func (s StatusCode) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusGood:
		return "GOOD"
	case StatusWarningMinor:
		return "WARNING_MINOR"
	case StatusWarningMajor:
		return "WARNING_MAJOR"
	case StatusBad:
		return "BAD"
	case StatusFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("StatusCode(%d)", uint8(s))
	}
}

// Status is a device health report.
type Status struct {
	Code     StatusCode `json:"code"`
	Messages []string   `json:"messages,omitempty"`
}

// CommandReport describes one command a device executed.
type CommandReport struct {
	Time    int64  `json:"time"`
	Layer   string `json:"layer"`
	Type    string `json:"type"`
	Context string `json:"context,omitempty"`

	// Executed is the clock time at which the command actually ran.
	Executed int64 `json:"executed"`
}

// Event is something a device reports to its host.
type Event struct {
	Kind     EventKind
	DeviceID string
	Message  string
	Status   *Status
	Command  *CommandReport
	Err      error
}

// EmitFunc delivers device events. It must be safe to call from any
// goroutine and must not block for long.
type EmitFunc func(Event)

func discard(Event) {}
