package timeline

import (
	"reflect"
	"strings"
)

// ReferencesKey is the content key holding datastore references:
// content["$references"][path] = {datastoreKey, overwrite}.
const ReferencesKey = "$references"

// DatastoreEntry is a value plus the time it was last modified.
type DatastoreEntry struct {
	Value    any   `json:"value" yaml:"value"`
	Modified int64 `json:"modified" yaml:"modified"`
}

// Datastore is the externally supplied key/value store whose values are
// substituted into resolved content at dispatch time.
type Datastore map[string]DatastoreEntry

// Reference points a content path at a datastore key.
//
// With Overwrite=false the latest value is always used. With Overwrite=true
// the value only applies if it was modified at or after the start of the
// object instance, so a later change cannot retroactively alter something
// that already started.
type Reference struct {
	DatastoreKey string `json:"datastoreKey" yaml:"datastoreKey"`
	Overwrite    bool   `json:"overwrite" yaml:"overwrite"`
}

// References extracts the datastore references declared in content.
// Malformed entries are skipped.
func References(c Content) map[string]Reference {
	raw, ok := c[ReferencesKey]
	if !ok {
		return nil
	}
	refs := make(map[string]Reference)
	switch m := raw.(type) {
	case map[string]Reference:
		for path, ref := range m {
			if ref.DatastoreKey != "" {
				refs[path] = ref
			}
		}
	case map[string]any:
		for path, v := range m {
			entry, ok := v.(map[string]any)
			if !ok {
				continue
			}
			key, _ := entry["datastoreKey"].(string)
			if key == "" {
				continue
			}
			overwrite, _ := entry["overwrite"].(bool)
			refs[path] = Reference{DatastoreKey: key, Overwrite: overwrite}
		}
	}
	return refs
}

// SetPath sets a dot-separated path inside content, creating intermediate
// maps as needed.
func SetPath(c Content, path string, value any) {
	parts := strings.Split(path, ".")
	cur := map[string]any(c)
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// ChangedKeys returns the keys whose entry differs between d and other,
// including keys present in only one of them.
func (d Datastore) ChangedKeys(other Datastore) map[string]struct{} {
	changed := make(map[string]struct{})
	for k, a := range d {
		b, ok := other[k]
		if !ok || a.Modified != b.Modified || !reflect.DeepEqual(a.Value, b.Value) {
			changed[k] = struct{}{}
		}
	}
	for k := range other {
		if _, ok := d[k]; !ok {
			changed[k] = struct{}{}
		}
	}
	return changed
}
