package engine

import (
	"sort"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/device"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// project partitions resolved layers into one bucket per device.
func project(layers map[string]timeline.LayerInstance, mappings timeline.Mappings, devices []*device.Handle) map[string]map[string]timeline.LayerInstance {
	types := make(map[string]timeline.DeviceType, len(devices))
	for _, h := range devices {
		types[h.ID()] = h.Type()
	}
	return Project(layers, mappings, types)
}

// Project partitions resolved layers into one bucket per device, where
// devices maps device id to device type.
//
// A layer goes to the device its mapping names, provided that device is
// among devices with a matching type. A lookahead layer without a mapping
// of its own borrows the mapping of the layer it looks ahead for. Layers
// that match no device are dropped; a timeline may well target devices
// this conductor does not have.
//
// Every device gets a bucket, possibly empty.
func Project(layers map[string]timeline.LayerInstance, mappings timeline.Mappings, devices map[string]timeline.DeviceType) map[string]map[string]timeline.LayerInstance {
	out := make(map[string]map[string]timeline.LayerInstance, len(devices))
	for id := range devices {
		out[id] = make(map[string]timeline.LayerInstance)
	}

	for layerID, li := range layers {
		m, ok := mappings[layerID]
		if !ok && li.IsLookahead && li.LookaheadForLayer != "" {
			m, ok = mappings[li.LookaheadForLayer]
		}
		if !ok {
			continue
		}
		typ, ok := devices[m.DeviceID]
		if !ok || typ != m.Device {
			continue
		}
		out[m.DeviceID][layerID] = li
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
