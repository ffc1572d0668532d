package config

import (
	"fmt"
	"sort"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// Validate checks cross references the schema cannot express. Every
// problem is returned; the order is deterministic.
//
// knownTypes lists the device types with a registered factory. When nil
// the device types are not checked. objects may be nil.
func Validate(cfg *Config, objects []timeline.Object, knownTypes []timeline.DeviceType) Errors {
	var errs Errors

	if knownTypes != nil {
		known := make(map[timeline.DeviceType]bool, len(knownTypes))
		for _, t := range knownTypes {
			known[t] = true
		}
		for _, id := range sortedKeys(cfg.Devices) {
			d := cfg.Devices[id]
			if !known[d.Type] {
				errs = append(errs, &Error{
					Code:    ErrCodeUnknownType,
					Path:    "devices." + id + ".type",
					Message: fmt.Sprintf("unknown device type %q", d.Type),
				})
			}
		}
	}

	for _, layer := range sortedKeys(cfg.Mappings) {
		m := cfg.Mappings[layer]
		d, ok := cfg.Devices[m.DeviceID]
		switch {
		case !ok:
			errs = append(errs, &Error{
				Code:    ErrCodeUnknownDevice,
				Path:    "mappings." + layer + ".deviceId",
				Message: fmt.Sprintf("device %q is not configured", m.DeviceID),
			})
		case d.Type != m.Device:
			errs = append(errs, &Error{
				Code:    ErrCodeTypeMismatch,
				Path:    "mappings." + layer + ".device",
				Message: fmt.Sprintf("device %q has type %q, mapping says %q", m.DeviceID, d.Type, m.Device),
			})
		}
	}

	seen := make(map[string]bool)
	var walk func(objs []timeline.Object, path string)
	walk = func(objs []timeline.Object, path string) {
		for i, obj := range objs {
			p := fmt.Sprintf("%s[%d]", path, i)
			switch {
			case obj.ID == "":
				errs = append(errs, &Error{Code: ErrCodeEmptyID, Path: p, Message: "object has no id"})
			case seen[obj.ID]:
				errs = append(errs, &Error{Code: ErrCodeDuplicateID, Path: p, Message: fmt.Sprintf("duplicate object id %q", obj.ID)})
			default:
				seen[obj.ID] = true
			}
			walk(obj.Children, p+".children")
			walk(obj.Keyframes, p+".keyframes")
		}
	}
	walk(objects, "timeline")

	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
