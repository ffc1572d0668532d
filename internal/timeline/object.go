package timeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// NowToken is the symbolic start time meaning "whenever this object first
// becomes relevant".
const NowToken = "now"

// TimeExpr is an enable time: either a number (absolute for root objects,
// relative to the parent instance for children) or the "now" token.
type TimeExpr struct {
	Value int64
	Now   bool
}

// At returns a numeric TimeExpr.
func At(v int64) TimeExpr { return TimeExpr{Value: v} }

// Now returns the symbolic "now" TimeExpr.
func Now() TimeExpr { return TimeExpr{Now: true} }

func (e TimeExpr) String() string {
	if e.Now {
		return NowToken
	}
	return strconv.FormatInt(e.Value, 10)
}

// MarshalJSON writes "now" as a string and numbers as numbers.
func (e TimeExpr) MarshalJSON() ([]byte, error) {
	if e.Now {
		return []byte(`"now"`), nil
	}
	return []byte(strconv.FormatInt(e.Value, 10)), nil
}

// UnmarshalJSON accepts a number or the string "now".
func (e *TimeExpr) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return e.parse(s)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("time expression: %w", err)
	}
	*e = TimeExpr{Value: int64(f)}
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (e TimeExpr) MarshalYAML() (any, error) {
	if e.Now {
		return NowToken, nil
	}
	return e.Value, nil
}

// UnmarshalYAML accepts a scalar number or "now".
func (e *TimeExpr) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: time expression must be a scalar", node.Line)
	}
	if err := e.parse(node.Value); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

func (e *TimeExpr) parse(s string) error {
	if s == NowToken {
		*e = Now()
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		*e = At(i)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid time expression %q", s)
	}
	*e = At(int64(f))
	return nil
}

// Enable describes when an object is active. End and Duration are
// alternatives; with neither the object is open-ended.
type Enable struct {
	Start     TimeExpr  `json:"start" yaml:"start"`
	End       *TimeExpr `json:"end,omitempty" yaml:"end,omitempty"`
	Duration  int64     `json:"duration,omitempty" yaml:"duration,omitempty"`
	Repeating int64     `json:"repeating,omitempty" yaml:"repeating,omitempty"`
}

// Enables is one or more enable expressions. It decodes from either a
// single mapping or a list of mappings.
type Enables []Enable

// UnmarshalJSON accepts an object or an array of objects.
func (e *Enables) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []Enable
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*e = list
		return nil
	}
	var one Enable
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*e = Enables{one}
	return nil
}

// UnmarshalYAML accepts a mapping or a sequence of mappings.
func (e *Enables) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var list []Enable
		if err := node.Decode(&list); err != nil {
			return err
		}
		*e = list
		return nil
	}
	var one Enable
	if err := node.Decode(&one); err != nil {
		return err
	}
	*e = Enables{one}
	return nil
}

// HasNow reports whether any enable starts at "now".
func (e Enables) HasNow() bool {
	for _, en := range e {
		if en.Start.Now {
			return true
		}
	}
	return false
}

// Content is the opaque payload interpreted by the device layer.
type Content map[string]any

// Content keys the engine itself interprets.
const (
	ContentCallback        = "callBack"
	ContentCallbackStopped = "callBackStopped"
	ContentCallbackData    = "callBackData"
)

// Object is a timeline object as supplied by consumers. Groups nest their
// children; keyframes are objects whose enable is relative to the owning
// object's instance and whose content is merged over it while active.
type Object struct {
	ID                string   `json:"id" yaml:"id"`
	Enable            Enables  `json:"enable" yaml:"enable"`
	Layer             string   `json:"layer,omitempty" yaml:"layer,omitempty"`
	Priority          int      `json:"priority,omitempty" yaml:"priority,omitempty"`
	IsGroup           bool     `json:"isGroup,omitempty" yaml:"isGroup,omitempty"`
	Children          []Object `json:"children,omitempty" yaml:"children,omitempty"`
	Keyframes         []Object `json:"keyframes,omitempty" yaml:"keyframes,omitempty"`
	Content           Content  `json:"content,omitempty" yaml:"content,omitempty"`
	IsLookahead       bool     `json:"isLookahead,omitempty" yaml:"isLookahead,omitempty"`
	LookaheadForLayer string   `json:"lookaheadForLayer,omitempty" yaml:"lookaheadForLayer,omitempty"`
}
