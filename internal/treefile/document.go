package treefile

import (
	"fmt"
	"slices"

	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
)

// Document is a validated tree document.
type Document struct {
	Tree   string
	Source string
	nodes  []*model.Node
}

// Nodes returns the document's nodes with their capacities attached, every
// parent before its children. The slice is a copy; the nodes are shared.
func (d *Document) Nodes() []*model.Node {
	return slices.Clone(d.nodes)
}

type rawDocument struct {
	Tree  string    `json:"tree"`
	Nodes []rawNode `json:"nodes"`
}

type rawNode struct {
	ID                 string  `json:"id"`
	ParentID           string  `json:"parentId"`
	Label              string  `json:"label"`
	Type               string  `json:"type"`
	Order              *int    `json:"order"`
	CalculatedValue    *string `json:"calculatedValue"`
	ForceRecalculation bool    `json:"forceRecalculation"`

	Formula *struct {
		ID     string     `json:"id"`
		Name   string     `json:"name"`
		Tokens ir.IRArray `json:"tokens"`
	} `json:"formula"`
	Condition *struct {
		ID   string      `json:"id"`
		Name string      `json:"name"`
		Set  ir.IRObject `json:"set"`
	} `json:"condition"`
	Table *struct {
		ID      string      `json:"id"`
		Name    string      `json:"name"`
		Columns ir.IRArray  `json:"columns"`
		Rows    ir.IRArray  `json:"rows"`
		Data    ir.IRArray  `json:"data"`
		Meta    ir.IRObject `json:"meta"`
		Shared  bool        `json:"shared"`
	} `json:"table"`
	Variable *struct {
		ID         string `json:"id"`
		ExposedKey string `json:"exposedKey"`
		SourceRef  string `json:"sourceRef"`
		SourceType string `json:"sourceType"`
	} `json:"variable"`

	Children []rawNode `json:"children"`
}

func build(raw rawDocument, newID IDGenerator) (*Document, error) {
	b := &builder{
		tree:   raw.Tree,
		newID:  newID,
		byID:   make(map[string]*model.Node),
		capIDs: make(map[string]bool),
	}
	for i, rn := range raw.Nodes {
		if err := b.add(rn, "", i, false); err != nil {
			return nil, err
		}
	}
	nodes, err := b.ordered()
	if err != nil {
		return nil, err
	}
	return &Document{Tree: raw.Tree, nodes: nodes}, nil
}

type builder struct {
	tree   string
	newID  IDGenerator
	byID   map[string]*model.Node
	capIDs map[string]bool
	flat   []*model.Node
}

// add converts rn and its nested children. nested is set for nodes found
// under a "children" list, whose parent is implied.
func (b *builder) add(rn rawNode, parent string, index int, nested bool) error {
	n := &model.Node{
		ID:                 rn.ID,
		TreeID:             b.tree,
		ParentID:           rn.ParentID,
		Label:              rn.Label,
		Type:               rn.Type,
		Order:              index,
		CalculatedValue:    rn.CalculatedValue,
		ForceRecalculation: rn.ForceRecalculation,
	}
	if n.ID == "" {
		n.ID = b.newID()
	}
	if rn.Order != nil {
		n.Order = *rn.Order
	}
	if nested {
		if rn.ParentID != "" && rn.ParentID != parent {
			return fmt.Errorf("node %s: parentId %s contradicts its position under %s", n.ID, rn.ParentID, parent)
		}
		n.ParentID = parent
	}
	if _, dup := b.byID[n.ID]; dup {
		return fmt.Errorf("node %s: duplicate id", n.ID)
	}

	if err := b.capacities(n, rn); err != nil {
		return err
	}
	b.byID[n.ID] = n
	b.flat = append(b.flat, n)

	for i, child := range rn.Children {
		if err := b.add(child, n.ID, i, true); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) capacities(n *model.Node, rn rawNode) error {
	var caps []model.Capacity
	if f := rn.Formula; f != nil {
		caps = append(caps, &model.Formula{ID: b.capacityID(f.ID), NodeID: n.ID, Name: f.Name, Tokens: f.Tokens})
	}
	if c := rn.Condition; c != nil {
		caps = append(caps, &model.Condition{ID: b.capacityID(c.ID), NodeID: n.ID, Name: c.Name, Set: c.Set})
	}
	if t := rn.Table; t != nil {
		caps = append(caps, &model.Table{
			ID: b.capacityID(t.ID), NodeID: n.ID, Name: t.Name,
			Columns: t.Columns, Rows: t.Rows, Data: t.Data, Meta: t.Meta, Shared: t.Shared,
		})
	}
	if v := rn.Variable; v != nil {
		caps = append(caps, &model.Variable{
			ID: b.capacityID(v.ID), NodeID: n.ID,
			ExposedKey: v.ExposedKey, SourceRef: v.SourceRef, SourceType: v.SourceType,
		})
	}

	for _, c := range caps {
		if b.capIDs[c.CapacityID()] {
			return fmt.Errorf("node %s: duplicate capacity id %s", n.ID, c.CapacityID())
		}
		b.capIDs[c.CapacityID()] = true
		if err := n.Attach(c); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) capacityID(id string) string {
	if id == "" {
		return b.newID()
	}
	return id
}

// ordered returns the nodes parents first, keeping document order among
// nodes whose parents are already placed. Roots are nodes with no parent
// or whose parent lies outside the document.
func (b *builder) ordered() ([]*model.Node, error) {
	placed := make(map[string]bool, len(b.flat))
	out := make([]*model.Node, 0, len(b.flat))
	pending := b.flat
	for len(pending) > 0 {
		var next []*model.Node
		for _, n := range pending {
			_, inDoc := b.byID[n.ParentID]
			if n.ParentID == "" || !inDoc || placed[n.ParentID] {
				placed[n.ID] = true
				out = append(out, n)
				continue
			}
			next = append(next, n)
		}
		if len(next) == len(pending) {
			return nil, fmt.Errorf("node %s: parent chain loops back on itself", next[0].ID)
		}
		pending = next
	}
	return out, nil
}
