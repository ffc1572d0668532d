package engine

import (
	"errors"
	"fmt"
)

// EngineError is an error the conductor reports through an Error or
// Warning event.
//
// The conductor never returns these to a caller of a background activity:
// resolve cycles, dispatch and lifecycle broadcasts report and carry on.
type EngineError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// DeviceID identifies the affected device, if any.
	DeviceID string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeResolveFailed: a resolve cycle failed. The next cycle is
	// still scheduled.
	ErrCodeResolveFailed ErrorCode = "RESOLVE_FAILED"

	// ErrCodeDispatchFailed: a device failed to take a state. Other devices
	// in the same cycle are unaffected.
	ErrCodeDispatchFailed ErrorCode = "DEVICE_DISPATCH_FAILED"

	// ErrCodeLifecycleTimeout: makeReady, standDown or removal exceeded its
	// deadline.
	ErrCodeLifecycleTimeout ErrorCode = "LIFECYCLE_TIMEOUT"

	// ErrCodeActionFailed: a queued action failed. The queue continues.
	ErrCodeActionFailed ErrorCode = "ACTION_FAILED"
)

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.DeviceID != "" {
		return fmt.Sprintf("%s: %s (device=%s)", e.Code, msg, e.DeviceID)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsDispatchError returns true if the error is a per-device dispatch error.
// Uses errors.As to handle wrapped errors.
func IsDispatchError(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeDispatchFailed
	}
	return false
}

// IsTimeoutError returns true if the error is a lifecycle timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeoutError(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeLifecycleTimeout
	}
	return false
}

// IsResolveError returns true if the error is a failed resolve cycle.
func IsResolveError(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeResolveFailed
	}
	return false
}

// NewDispatchError creates an EngineError for a failed device dispatch.
func NewDispatchError(deviceID string, err error) *EngineError {
	return &EngineError{
		Code:     ErrCodeDispatchFailed,
		Message:  "device failed to handle state",
		DeviceID: deviceID,
		Err:      err,
	}
}

// NewTimeoutError creates an EngineError for a lifecycle deadline.
func NewTimeoutError(deviceID, op string, err error) *EngineError {
	return &EngineError{
		Code:     ErrCodeLifecycleTimeout,
		Message:  fmt.Sprintf("%s timed out", op),
		DeviceID: deviceID,
		Err:      err,
	}
}
