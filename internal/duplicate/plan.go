package duplicate

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/roach88/captree/internal/ident"
	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
	"github.com/roach88/captree/internal/refs"
)

// Plan is a fully rewritten copy held in memory, ready to be written.
type Plan struct {
	Suffix int

	// Mapping holds old->new for every copied node and capacity.
	Mapping map[string]string

	// Nodes are the copies in template walk order, root first, with their
	// capacities attached.
	Nodes []*model.Node

	// Capacities are the copied capacities in creation order.
	Capacities []model.Capacity

	// Kept lists shared capacities left in place instead of copied.
	Kept []string
}

// Root returns the copy of the template root.
func (p *Plan) Root() *model.Node {
	if len(p.Nodes) == 0 {
		return nil
	}
	return p.Nodes[0]
}

// NodeIDs returns the IDs of the copied nodes in creation order.
func (p *Plan) NodeIDs() []string {
	ids := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// CapacityIDs returns the IDs of the copied capacities in creation order.
func (p *Plan) CapacityIDs() []string {
	ids := make([]string, len(p.Capacities))
	for i, c := range p.Capacities {
		ids[i] = c.CapacityID()
	}
	return ids
}

// Fingerprint hashes the copied subtree. Two plans for the same template
// state and suffix have the same fingerprint.
func (p *Plan) Fingerprint() (string, error) {
	nodes := make(ir.IRArray, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		caps := ir.IRArray{}
		for _, c := range n.Capacities() {
			caps = append(caps, ir.IRObject{
				"id":      ir.IRString(c.CapacityID()),
				"kind":    ir.IRString(c.Kind()),
				"payload": c.Payload(),
			})
		}
		nodes = append(nodes, ir.IRObject{
			"id":         ir.IRString(n.ID),
			"parentId":   ir.IRString(n.ParentID),
			"label":      ir.IRString(n.Label),
			"capacities": caps,
		})
	}
	return ir.Fingerprint(ir.DomainCopy, ir.IRObject{
		"suffix": ir.IRNumber(p.Suffix),
		"nodes":  nodes,
	})
}

// BuildPlan runs the allocation, copy, rewrite and hermetic passes over a
// template subtree. subtree must start with the template root and hold
// every descendant. Nothing is written.
//
// Shared tables, and capacities whose ID is in policy.Shared, are left in
// place unless copyShared is set.
func BuildPlan(subtree []*model.Node, suffix int, policy refs.Policy, copyShared bool) (*Plan, error) {
	if len(subtree) == 0 {
		return nil, fmt.Errorf("empty subtree")
	}
	if suffix < 1 {
		return nil, fmt.Errorf("suffix %d: must be at least 1", suffix)
	}

	shared := make(map[string]bool, len(policy.Shared))
	maps.Copy(shared, policy.Shared)

	p := &Plan{Suffix: suffix, Mapping: make(map[string]string)}

	// Allocation. Completes before any rewrite.
	taken := make(map[string]string)
	allocate := func(id string) error {
		next := ident.WithSuffix(id, suffix)
		if next == id {
			return fmt.Errorf("%s already carries suffix %d", id, suffix)
		}
		if prev, dup := taken[next]; dup && prev != id {
			return fmt.Errorf("%s and %s both become %s", prev, id, next)
		}
		taken[next] = id
		p.Mapping[id] = next
		return nil
	}
	for _, n := range subtree {
		if err := allocate(n.ID); err != nil {
			return nil, err
		}
		for _, c := range n.Capacities() {
			if !copyShared && isShared(c, shared) {
				shared[c.CapacityID()] = true
				p.Kept = append(p.Kept, c.CapacityID())
				continue
			}
			if copyShared {
				delete(shared, c.CapacityID())
			}
			if err := allocate(c.CapacityID()); err != nil {
				return nil, err
			}
		}
	}

	rw := refs.NewRewriter(p.Mapping, suffix, refs.Policy{
		GlobalSharedRefs: policy.GlobalSharedRefs,
		Shared:           shared,
	})

	rootID := subtree[0].ID
	for _, n := range subtree {
		labeler := copyLabeler{suffix: suffix, fromCopy: n.SourceTemplateID != ""}
		cp := copyNode(n, p.Mapping, labeler)
		if n.ID == rootID {
			cp.ParentID = n.ParentID
		}
		for _, c := range n.Capacities() {
			if shared[c.CapacityID()] {
				continue
			}
			cc := rewriteCapacity(c, rw, p.Mapping[c.CapacityID()], cp.ID, labeler)
			if err := cp.Attach(cc); err != nil {
				return nil, err
			}
			p.Capacities = append(p.Capacities, cc)
		}
		p.Nodes = append(p.Nodes, cp)
	}

	if err := p.checkHermetic(); err != nil {
		return nil, err
	}
	return p, nil
}

func isShared(c model.Capacity, shared map[string]bool) bool {
	if shared[c.CapacityID()] {
		return true
	}
	t, ok := c.(*model.Table)
	return ok && t.Shared
}

func copyNode(n *model.Node, mapping map[string]string, l copyLabeler) *model.Node {
	parent := n.ParentID
	if mapped, ok := mapping[parent]; ok {
		parent = mapped
	}
	return &model.Node{
		ID:                 mapping[n.ID],
		TreeID:             n.TreeID,
		ParentID:           parent,
		Label:              l.label(n.Label),
		Type:               n.Type,
		Order:              n.Order,
		ForceRecalculation: true,
		SourceTemplateID:   n.ID,
	}
}

// copyLabeler appends the copy suffix to the names of one copied node and
// its capacities. A previous "-<k>" is replaced only when the node is
// itself a copy.
type copyLabeler struct {
	suffix   int
	fromCopy bool
}

func (l copyLabeler) label(s string) string {
	if s == "" {
		return ""
	}
	if l.fromCopy {
		return ident.WithSuffix(s, l.suffix)
	}
	return s + "-" + strconv.Itoa(l.suffix)
}

// rewriteCapacity clones c under newID and owner, rewriting its payload.
func rewriteCapacity(c model.Capacity, rw *refs.Rewriter, newID, owner string, l copyLabeler) model.Capacity {
	switch v := c.(type) {
	case *model.Formula:
		return &model.Formula{ID: newID, NodeID: owner, Name: l.label(v.Name), Tokens: rewriteArray(rw, v.Tokens)}
	case *model.Condition:
		return &model.Condition{ID: newID, NodeID: owner, Name: l.label(v.Name), Set: rewriteObject(rw, v.Set)}
	case *model.Table:
		return &model.Table{
			ID: newID, NodeID: owner, Name: l.label(v.Name),
			Columns: rewriteArray(rw, v.Columns),
			Rows:    rewriteArray(rw, v.Rows),
			Data:    rewriteArray(rw, v.Data),
			Meta:    rewriteObject(rw, v.Meta),
			Shared:  v.Shared,
		}
	case *model.Variable:
		return &model.Variable{
			ID:         newID,
			NodeID:     owner,
			ExposedKey: l.label(v.ExposedKey),
			SourceRef:  rw.RewriteString(v.SourceRef, true),
			SourceType: v.SourceType,
		}
	}
	return c
}

func rewriteArray(rw *refs.Rewriter, a ir.IRArray) ir.IRArray {
	if a == nil {
		return nil
	}
	return rw.Rewrite(a).(ir.IRArray)
}

func rewriteObject(rw *refs.Rewriter, o ir.IRObject) ir.IRObject {
	if o == nil {
		return nil
	}
	return rw.Rewrite(o).(ir.IRObject)
}

// checkHermetic fails if any copied payload still names an identifier that
// was mapped, that is an original inside the template subtree.
func (p *Plan) checkHermetic() error {
	for _, c := range p.Capacities {
		for _, ref := range refs.ExtractRefs(c.Payload()) {
			if _, original := p.Mapping[ref.ID]; original {
				return &leakError{capacityID: c.CapacityID(), ref: ref.ID}
			}
		}
	}
	return nil
}

type leakError struct {
	capacityID string
	ref        string
}

func (e *leakError) Error() string {
	return fmt.Sprintf("capacity %s still references original %s", e.capacityID, e.ref)
}

// newIDs returns every ID the plan creates, sorted.
func (p *Plan) newIDs() []string {
	return slices.Sorted(maps.Values(p.Mapping))
}
