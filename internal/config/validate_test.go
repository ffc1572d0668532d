package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/device"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

func TestValidate_Clean(t *testing.T) {
	cfg, err := Parse([]byte(studioConfig), "studio.cue")
	require.NoError(t, err)

	objects := []timeline.Object{
		{ID: "a", Layer: "gfx", Enable: timeline.Enables{{Start: timeline.At(0)}}},
	}
	assert.Empty(t, Validate(cfg, objects, []timeline.DeviceType{"abstract"}))
}

func TestValidate_CrossReferences(t *testing.T) {
	cfg := &Config{
		Devices: map[string]device.Config{
			"abs0": {Type: "abstract"},
			"cg":   {Type: "casparcg"},
		},
		Mappings: timeline.Mappings{
			"gfx":  {Device: "abstract", DeviceID: "ghost"},
			"vt":   {Device: "casparcg", DeviceID: "abs0"},
			"fine": {Device: "abstract", DeviceID: "abs0"},
		},
	}
	objects := []timeline.Object{
		{ID: "a", Children: []timeline.Object{{ID: "b"}, {ID: "a"}}},
		{ID: "", Keyframes: []timeline.Object{{ID: "b"}}},
	}

	errs := Validate(cfg, objects, []timeline.DeviceType{"abstract"})

	codes := make([]string, len(errs))
	paths := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
		paths[i] = e.Path
	}
	assert.Equal(t, []string{
		ErrCodeUnknownType,
		ErrCodeUnknownDevice,
		ErrCodeTypeMismatch,
		ErrCodeDuplicateID,
		ErrCodeEmptyID,
		ErrCodeDuplicateID,
	}, codes)
	assert.Equal(t, []string{
		"devices.cg.type",
		"mappings.gfx.deviceId",
		"mappings.vt.device",
		"timeline[0].children[1]",
		"timeline[1]",
		"timeline[1].keyframes[0]",
	}, paths)
}

func TestValidate_NilKnownTypesSkipsTypeCheck(t *testing.T) {
	cfg := &Config{Devices: map[string]device.Config{"x": {Type: "anything"}}}
	assert.Empty(t, Validate(cfg, nil, nil))
}
