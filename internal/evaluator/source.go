package evaluator

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/captree/internal/model"
)

// MemorySource is a model.Reader over nodes held in memory. It serves
// evaluation of tree documents that were never imported into a store.
type MemorySource struct {
	nodes    map[string]*model.Node
	owners   map[string]*model.Node
	children map[string][]*model.Node
	trees    map[string][]*model.Node
}

var _ model.Reader = (*MemorySource)(nil)

// NewMemorySource indexes nodes. Later duplicates of an ID replace earlier
// ones.
func NewMemorySource(nodes []*model.Node) *MemorySource {
	s := &MemorySource{
		nodes:    make(map[string]*model.Node, len(nodes)),
		owners:   make(map[string]*model.Node),
		children: make(map[string][]*model.Node),
		trees:    make(map[string][]*model.Node),
	}
	for _, n := range nodes {
		s.nodes[n.ID] = n
		for _, c := range n.Capacities() {
			s.owners[c.CapacityID()] = n
		}
	}
	for _, n := range s.nodes {
		s.children[n.ParentID] = append(s.children[n.ParentID], n)
		s.trees[n.TreeID] = append(s.trees[n.TreeID], n)
	}
	for _, list := range s.children {
		sortNodes(list)
	}
	for _, list := range s.trees {
		sortNodes(list)
	}
	return s
}

func sortNodes(nodes []*model.Node) {
	slices.SortFunc(nodes, func(a, b *model.Node) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})
}

func (s *MemorySource) FindNode(_ context.Context, id string) (*model.Node, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, model.ErrNotFound)
	}
	return n, nil
}

func (s *MemorySource) ListChildren(_ context.Context, parentID string) ([]*model.Node, error) {
	return slices.Clone(s.children[parentID]), nil
}

func (s *MemorySource) ListTree(_ context.Context, treeID string) ([]*model.Node, error) {
	return slices.Clone(s.trees[treeID]), nil
}

func (s *MemorySource) FindCapacity(_ context.Context, kind model.CapacityKind, id string) (model.Capacity, error) {
	if n, ok := s.owners[id]; ok {
		for _, c := range n.Capacities() {
			if c.CapacityID() == id && (kind == "" || c.Kind() == kind) {
				return c, nil
			}
		}
	}
	return nil, fmt.Errorf("capacity %s: %w", id, model.ErrNotFound)
}
