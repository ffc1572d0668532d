package config

import (
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes (C001-C099).
const (
	ErrCodeRead          = "C001" // file missing or unreadable
	ErrCodeSchema        = "C002" // CUE syntax or schema violation
	ErrCodeDecode        = "C003" // YAML document malformed
	ErrCodeUnknownDevice = "C010" // mapping names a device that is not configured
	ErrCodeTypeMismatch  = "C011" // mapping device type differs from the device's
	ErrCodeUnknownType   = "C012" // no factory for the device type
	ErrCodeDuplicateID   = "C020" // timeline object id used twice
	ErrCodeEmptyID       = "C021" // timeline object without id
)

// Error is one configuration problem.
type Error struct {
	Code    string    `json:"code"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message"`
	Pos     token.Pos `json:"-"`
}

func (e *Error) Error() string {
	loc := e.Path
	if e.Pos.IsValid() {
		loc = fmt.Sprintf("%s:%d:%d", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
		if e.Path != "" {
			loc += " " + e.Path
		}
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", loc, e.Code, e.Message)
}

// Line returns the 1-based source line, or 0 when unknown.
func (e *Error) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// Errors collects every problem found in one pass.
type Errors []*Error

func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// Err returns es as an error, or nil when empty.
func (es Errors) Err() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

func fromCUE(err error) Errors {
	var out Errors
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		out = append(out, &Error{
			Code:    ErrCodeSchema,
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
			Pos:     e.Position(),
		})
	}
	if len(out) == 0 {
		out = Errors{{Code: ErrCodeSchema, Message: err.Error()}}
	}
	return out
}
