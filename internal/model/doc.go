// Package model defines the configuration tree: nodes, the four capacity
// kinds they may own, the linked-ID caches derived from them, and the
// persistence contract the engine talks to.
//
// Capacity payloads are stored as raw ir values so unknown shapes survive a
// load/save cycle. The typed views in payload.go (Token, Expr, Action,
// ConditionSet, TableView) are parsed on demand and report problems as
// Diagnostics instead of errors.
package model
