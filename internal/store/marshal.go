package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/ir"
)

// marshalValue converts an arbitrary value to canonical JSON TEXT so equal
// values are stored byte-identically.
func marshalValue(v any) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalValue parses JSON TEXT. Integral numbers come back as int64 and
// the rest as float64, so values written as integers read back unchanged
// even above 2^53.
func unmarshalValue(data string) (any, error) {
	if data == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
		return x
	default:
		return v
	}
}
