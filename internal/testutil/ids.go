// Package testutil holds deterministic stand-ins for the generators that
// make operation IDs and document IDs unpredictable in production.
package testutil

// FixedOperationIDs returns the same operation ID for every duplication, so
// scenario runs produce byte-identical snapshots.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedOperationIDs struct {
	id string
}

// NewFixedOperationIDs returns a generator for id. An empty id becomes
// "op-test".
func NewFixedOperationIDs(id string) *FixedOperationIDs {
	if id == "" {
		id = "op-test"
	}
	return &FixedOperationIDs{id: id}
}

// Generate returns the fixed ID. It satisfies duplicate.OperationIDGenerator.
func (g *FixedOperationIDs) Generate() string {
	return g.id
}
