// Package ir provides canonical JSON encoding and content-addressed hashing.
//
// The conductor reports a hash of the active timeline with every resolve
// (resolveDone) and the resolver keys its cross-call cache by it, so the hash
// must be independent of map ordering, Unicode normalization form and the
// Go type used to hold a number.
//
// ir imports nothing internal; every other package may import it.
package ir
