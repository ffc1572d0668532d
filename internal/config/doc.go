// Package config loads the files a conductor process is started from.
//
// The configuration proper (devices, mappings, conductor options) is CUE,
// checked against an embedded closed schema. Timelines and datastores are
// YAML documents, since hosts usually generate them. Validate adds the
// cross-reference checks between the two.
package config
