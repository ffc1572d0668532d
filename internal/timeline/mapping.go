package timeline

import "github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/ir"

// DeviceType tags a kind of device (e.g. "abstract", "casparcg").
type DeviceType string

// Mapping binds a logical output layer to a physical device.
type Mapping struct {
	Device   DeviceType     `json:"device" yaml:"device"`
	DeviceID string         `json:"deviceId" yaml:"deviceId"`
	Options  map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Mappings is keyed by layer name. Many layers may map to one device.
type Mappings map[string]Mapping

// ForDevice returns the subset of mappings addressing deviceID.
func (m Mappings) ForDevice(deviceID string) Mappings {
	out := make(Mappings)
	for layer, mapping := range m {
		if mapping.DeviceID == deviceID {
			out[layer] = mapping
		}
	}
	return out
}

// Hash returns the content hash of the mappings.
func (m Mappings) Hash() (string, error) {
	return ir.Hash(ir.DomainMappings, m)
}
