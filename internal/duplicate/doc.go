// Package duplicate copies a template subtree under a numeric suffix.
//
// A duplication runs in four passes over data held in memory, then one
// write phase:
//
//  1. Allocation: every node and capacity of the subtree gets
//     StripSuffix(id) + "-k". The complete old->new map exists before
//     anything is rewritten.
//  2. Structural copy: nodes and capacities are cloned with the new IDs.
//     Copies start with no calculated value and ForceRecalculation set.
//  3. Reference rewrite: payload identifiers that belong to the subtree are
//     replaced using the map; shared-ref identifiers outside it get the
//     suffix unless the policy marks them global.
//  4. Hermetic check: no copied payload may still name an original.
//
// The write phase runs in a single repository transaction: reserve the
// suffix, create nodes, create capacities, rebuild linked sets for the
// copies. Any failure rolls everything back, so a retry with the same
// (template, suffix) either completes the same copy or is rejected.
//
// Shared tables are never copied unless the request asks for it; copies
// keep pointing at the original table.
package duplicate
