package linker

import (
	"slices"

	"github.com/roach88/captree/internal/ident"
	"github.com/roach88/captree/internal/model"
	"github.com/roach88/captree/internal/refs"
)

// Result is the output of RebuildLinks.
type Result struct {
	// Links maps node ID to its normalized linked sets.
	Links map[string]model.LinkedSets
	// Edges maps node ID to the other nodes its capacities reference.
	Edges       map[string][]string
	Diagnostics model.Diagnostics
}

// Index resolves identifiers against a set of nodes.
type Index struct {
	nodes  map[string]*model.Node
	owners map[string]*model.Node
	order  []string
}

// NewIndex indexes nodes and the capacities they own.
func NewIndex(nodes []*model.Node) *Index {
	ix := &Index{
		nodes:  make(map[string]*model.Node, len(nodes)),
		owners: make(map[string]*model.Node),
	}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if _, dup := ix.nodes[n.ID]; !dup {
			ix.order = append(ix.order, n.ID)
		}
		ix.nodes[n.ID] = n
		for _, c := range n.Capacities() {
			ix.owners[c.CapacityID()] = n
		}
	}
	return ix
}

// Node returns the node with the given ID.
func (ix *Index) Node(id string) (*model.Node, bool) {
	n, ok := ix.nodes[id]
	return n, ok
}

// Owner returns the node owning the capacity with the given ID.
func (ix *Index) Owner(capacityID string) (*model.Node, bool) {
	n, ok := ix.owners[capacityID]
	return n, ok
}

// Resolve maps a reference to the node it denotes. Capacity references
// resolve to the owning node. A capacity-prefixed reference holding a node
// ID is accepted too, the way the source data sometimes writes
// "node-formula:<nodeId>".
func (ix *Index) Resolve(ref ident.Ref) (*model.Node, bool) {
	switch ref.Kind {
	case ident.KindFormula, ident.KindCondition, ident.KindTable:
		if n, ok := ix.owners[ref.ID]; ok {
			return n, true
		}
		n, ok := ix.nodes[ref.ID]
		return n, ok
	default:
		if n, ok := ix.nodes[ref.ID]; ok {
			return n, true
		}
		n, ok := ix.owners[ref.ID]
		return n, ok
	}
}

// RebuildLinks computes linked sets for every node.
func RebuildLinks(nodes []*model.Node) Result {
	ix := NewIndex(nodes)
	return ix.Rebuild(ix.order)
}

// Rebuild computes linked sets for the nodes in ids, resolving references
// against the whole index. Unknown IDs are ignored.
func (ix *Index) Rebuild(ids []string) Result {
	res := Result{
		Links: make(map[string]model.LinkedSets, len(ids)),
		Edges: make(map[string][]string, len(ids)),
	}
	for _, id := range ids {
		n, ok := ix.nodes[id]
		if !ok {
			continue
		}
		sets, edges := ix.linksFor(n, &res.Diagnostics)
		res.Links[id] = sets
		res.Edges[id] = edges
	}
	return res
}

func (ix *Index) linksFor(n *model.Node, diags *model.Diagnostics) (model.LinkedSets, []string) {
	var sets model.LinkedSets
	for _, c := range n.Capacities() {
		sets.Add(c.Kind(), c.CapacityID())
	}

	var edges []string
	for _, c := range n.Capacities() {
		for _, ref := range refs.ExtractRefs(c.Payload()) {
			m, ok := ix.Resolve(ref)
			if !ok {
				d := diags.Warn(model.DiagDanglingReference, "%s reference %q does not resolve", ref.Kind, ref.ID)
				d.NodeID = n.ID
				d.CapacityID = c.CapacityID()
				d.Ref = ref.ID
				continue
			}
			if m.ID == n.ID {
				continue
			}
			sets.Add(model.KindVariable, m.ID)
			for _, mc := range m.Capacities() {
				sets.Add(mc.Kind(), mc.CapacityID())
			}
			if !slices.Contains(edges, m.ID) {
				edges = append(edges, m.ID)
			}
		}
	}

	sets.Remove(n.ID)
	slices.Sort(edges)
	return sets.Normalized(), edges
}

// Apply returns copies of nodes with their linked sets replaced by links.
// Nodes missing from links keep their current sets.
func Apply(nodes []*model.Node, links map[string]model.LinkedSets) []*model.Node {
	out := make([]*model.Node, 0, len(nodes))
	for _, n := range nodes {
		cp := *n
		if sets, ok := links[n.ID]; ok {
			cp.Linked = sets
		}
		out = append(out, &cp)
	}
	return out
}

// Changed reports whether next differs from prev as sorted arrays.
func Changed(prev, next model.LinkedSets) bool {
	return !prev.Equal(next)
}
