package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// timelineDoc is the mapping form of a timeline document. The bare
// sequence form holds only the objects.
type timelineDoc struct {
	Timeline []timeline.Object `yaml:"timeline"`
}

// LoadTimeline reads a YAML (or JSON) timeline document.
func LoadTimeline(path string) ([]timeline.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Errors{{Code: ErrCodeRead, Path: path, Message: err.Error()}}
	}
	return ParseTimeline(data)
}

// ParseTimeline accepts either a sequence of objects or a mapping with a
// "timeline" key holding one.
func ParseTimeline(data []byte) ([]timeline.Object, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, decodeError("timeline", err)
	}
	if len(root.Content) == 0 {
		return []timeline.Object{}, nil
	}

	doc := root.Content[0]
	var objects []timeline.Object
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&objects); err != nil {
			return nil, decodeError("timeline", err)
		}
	case yaml.MappingNode:
		var td timelineDoc
		if err := doc.Decode(&td); err != nil {
			return nil, decodeError("timeline", err)
		}
		objects = td.Timeline
	default:
		return nil, Errors{{Code: ErrCodeDecode, Path: "timeline", Message: fmt.Sprintf("line %d: expected a sequence or mapping", doc.Line)}}
	}

	if objects == nil {
		objects = []timeline.Object{}
	}
	return objects, nil
}

// LoadDatastore reads a YAML (or JSON) datastore document: a mapping of
// key to {value, modified}.
func LoadDatastore(path string) (timeline.Datastore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Errors{{Code: ErrCodeRead, Path: path, Message: err.Error()}}
	}
	return ParseDatastore(data)
}

// ParseDatastore decodes a datastore document. Integers in values come back
// as int64, as they would from any other clone of the datastore.
func ParseDatastore(data []byte) (timeline.Datastore, error) {
	var ds timeline.Datastore
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, decodeError("datastore", err)
	}
	if len(ds) == 0 {
		return timeline.Datastore{}, nil
	}

	out, err := timeline.Clone(ds)
	if err != nil {
		return nil, decodeError("datastore", err)
	}
	return out, nil
}

func decodeError(path string, err error) Errors {
	return Errors{{Code: ErrCodeDecode, Path: path, Message: err.Error()}}
}
