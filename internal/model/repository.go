package model

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a node or capacity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would violate a uniqueness rule,
	// such as an existing ID or an already reserved copy suffix.
	ErrConflict = errors.New("conflict")
)

// Reader is the read side of the persistence collaborator.
type Reader interface {
	// FindNode returns the node with its capacities attached.
	FindNode(ctx context.Context, id string) (*Node, error)

	// ListChildren returns the direct children of parentID by Order.
	ListChildren(ctx context.Context, parentID string) ([]*Node, error)

	// ListTree returns every node of a tree with capacities attached.
	ListTree(ctx context.Context, treeID string) ([]*Node, error)

	// FindCapacity returns the capacity of kind with the given ID. An empty
	// kind matches any kind.
	FindCapacity(ctx context.Context, kind CapacityKind, id string) (Capacity, error)
}

// Repository is the persistence collaborator the engine writes through.
// The engine never issues queries of its own.
type Repository interface {
	Reader

	CreateNode(ctx context.Context, n *Node) error
	CreateCapacity(ctx context.Context, c Capacity) error
	UpdateLinkedSets(ctx context.Context, nodeID string, sets LinkedSets) error

	// UsedSuffixes returns the copy suffixes already reserved for a
	// template root.
	UsedSuffixes(ctx context.Context, templateID string) ([]int, error)

	// ReserveSuffix records suffix as used for templateID. It returns an
	// error wrapping ErrConflict if the suffix is already taken.
	ReserveSuffix(ctx context.Context, templateID string, suffix int, operationID string) error

	// DeleteTree removes every node of a tree with its capacities and
	// returns how many nodes were removed.
	DeleteTree(ctx context.Context, treeID string) (int64, error)

	// RunInTransaction runs fn against a transactional view. If fn returns
	// an error every write made through tx is rolled back.
	RunInTransaction(ctx context.Context, fn func(tx Repository) error) error
}
