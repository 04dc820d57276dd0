// Package linker computes each node's linked-ID cache from the references
// found in its capacities.
//
// For a node n the cache holds the IDs of n's own capacities, plus, for
// every other node m that n's payloads reference: m's ID (in the variable
// set), the IDs of m's capacities, and m's exposed variable. n never lists
// itself. References that resolve to nothing are reported as
// DANGLING_REFERENCE diagnostics and skipped.
//
// The cache is derived state. RebuildLinks is pure; Service persists the
// result and skips nodes whose sets did not change.
package linker
