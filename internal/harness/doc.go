// Package harness runs conformance scenarios against a fresh in-memory
// store.
//
// A scenario names a tree document, imports it, then runs steps in order:
//
//	rebuild    recompute the linked sets of the whole tree
//	duplicate  copy a template subtree under a suffix (NextSuffix if omitted)
//	evaluate   evaluate a capacity or node against form data
//
// Each step is recorded in a trace with its outcome, either "ok" or an
// error code. Steps may carry an expect clause; a step without one must
// succeed. After the steps, assertions check the final store state.
//
// Operation IDs come from a fixed generator, so the trace of a scenario is
// byte-identical across runs and can be compared to a golden file:
//
//	go test ./internal/harness -update
package harness
