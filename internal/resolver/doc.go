// Package resolver expands a timeline into absolute intervals and slices the
// result into layer states.
//
// Interval is the interval resolver. Cache memoizes its last result.
// NowFixer turns "now" start times into concrete ones before resolving, in
// place, so that callers can keep the fixed timeline as their source of
// truth.
package resolver
