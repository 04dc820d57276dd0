// Package store provides SQLite-backed persistence for configuration trees.
//
// Store implements model.Repository. Three tables back it:
//   - nodes: tree structure, linked sets and cached values
//   - capacities: one row per capacity, payload as canonical JSON
//   - template_suffixes: copy suffixes reserved per template root
//
// # Payloads
//
// Capacity payloads are stored as RFC 8785 canonical JSON TEXT next to a
// domain-separated SHA-256 of the same bytes (see internal/ir/hash.go).
// Linked sets are stored as sorted JSON arrays.
//
// # Ordering
//
// Every list query orders by sort_order then id, so results are stable for
// siblings that share an order value.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Capacities are deleted with their node
package store
