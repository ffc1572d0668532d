// Package timeline holds the data model shared by the resolver, the device
// layer and the conductor: timeline objects and their arena form, layer
// mappings, resolved states, and the datastore.
//
// Timelines are supplied as a forest of Objects and converted into an arena
// (Timeline) whose nodes refer to each other by id only. The arena is plain
// data: it can be cloned with Clone and handed to another goroutine without
// sharing anything with the source.
package timeline
