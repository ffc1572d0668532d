package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

func TestParseTimeline_Sequence(t *testing.T) {
	src := `
- id: bg
  layer: gfx
  enable: {start: 0}
  content: {clip: loop.mp4}
- id: grp
  isGroup: true
  enable:
    - {start: now, duration: 5000}
  children:
    - id: child
      layer: vt
      enable: {start: 100, end: 400}
      content: {callBack: onChild}
`
	objects, err := ParseTimeline([]byte(src))
	require.NoError(t, err)
	require.Len(t, objects, 2)

	assert.Equal(t, timeline.Enables{{Start: timeline.At(0)}}, objects[0].Enable)
	assert.Equal(t, timeline.Content{"clip": "loop.mp4"}, objects[0].Content)

	grp := objects[1]
	assert.True(t, grp.IsGroup)
	assert.True(t, grp.Enable.HasNow())
	assert.Equal(t, int64(5000), grp.Enable[0].Duration)
	require.Len(t, grp.Children, 1)

	end := timeline.At(400)
	assert.Equal(t, timeline.Enables{{Start: timeline.At(100), End: &end}}, grp.Children[0].Enable)
}

func TestParseTimeline_MappingAndJSON(t *testing.T) {
	objects, err := ParseTimeline([]byte(`timeline: [{id: a, layer: L, enable: {start: 10}}]`))
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "a", objects[0].ID)

	objects, err = ParseTimeline([]byte(`[{"id":"b","layer":"L","enable":{"start":"now"}}]`))
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.True(t, objects[0].Enable.HasNow())
}

func TestParseTimeline_Empty(t *testing.T) {
	objects, err := ParseTimeline(nil)
	require.NoError(t, err)
	assert.NotNil(t, objects)
	assert.Empty(t, objects)
}

func TestParseTimeline_Invalid(t *testing.T) {
	for _, src := range []string{
		`"just a string"`,
		`- id: a
  enable: {start: soon}`,
		`[{id: a`,
	} {
		_, err := ParseTimeline([]byte(src))
		var errs Errors
		require.True(t, errors.As(err, &errs), "source %q", src)
		assert.Equal(t, ErrCodeDecode, errs[0].Code)
	}
}

func TestParseDatastore(t *testing.T) {
	src := `
title:
  value: Evening News
  modified: 100
score:
  value: {home: 2, away: 1, ratio: 0.5}
  modified: 200
`
	ds, err := ParseDatastore([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, timeline.Datastore{
		"title": {Value: "Evening News", Modified: 100},
		"score": {Value: map[string]any{"home": int64(2), "away": int64(1), "ratio": 0.5}, Modified: 200},
	}, ds)
}

func TestLoadDatastore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("k: {value: true, modified: 1}\n"), 0o644))

	ds, err := LoadDatastore(path)
	require.NoError(t, err)
	assert.Equal(t, timeline.Datastore{"k": {Value: true, Modified: 1}}, ds)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	ds, err = LoadDatastore(empty)
	require.NoError(t, err)
	assert.Empty(t, ds)
}
