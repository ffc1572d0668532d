package timeline

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode and decMode implement the structured clone used whenever data
// crosses a device supervisor boundary: no live references survive, and
// generic maps come back as map[string]any.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		ShortestFloat: cbor.ShortestFloatNone,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		IndefLength:    cbor.IndefLengthAllowed,
		IntDec:         cbor.IntDecConvertSignedOrFail,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Clone returns a structural deep copy of v. Integers held in interface
// values come back as int64.
func Clone[T any](v T) (T, error) {
	var out T
	data, err := encMode.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("clone %T: encode: %w", v, err)
	}
	if err := decMode.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("clone %T: decode: %w", v, err)
	}
	return out, nil
}

// CloneContent deep-copies content. Content that cannot be encoded is
// returned as a shallow copy.
func CloneContent(c Content) Content {
	if c == nil {
		return nil
	}
	out, err := Clone(c)
	if err != nil {
		shallow := make(Content, len(c))
		for k, v := range c {
			shallow[k] = v
		}
		return shallow
	}
	return out
}
