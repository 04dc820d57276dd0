package linker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/captree/internal/model"
)

// Report summarizes one persisted rebuild.
type Report struct {
	// Updated lists the nodes whose sets were written.
	Updated     []string          `json:"updated"`
	Unchanged   int               `json:"unchanged"`
	Cycles      []Cycle           `json:"cycles,omitempty"`
	Diagnostics model.Diagnostics `json:"diagnostics,omitempty"`
}

// Service persists linked sets through a repository.
type Service struct {
	repo   model.Repository
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService returns a Service writing through repo.
func NewService(repo model.Repository, opts ...Option) *Service {
	s := &Service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// RebuildTree recomputes the sets of every node in a tree in one
// transaction and writes only those that changed.
func (s *Service) RebuildTree(ctx context.Context, treeID string) (Report, error) {
	var report Report
	err := s.repo.RunInTransaction(ctx, func(tx model.Repository) error {
		nodes, err := tx.ListTree(ctx, treeID)
		if err != nil {
			return fmt.Errorf("list tree %s: %w", treeID, err)
		}
		ix := NewIndex(nodes)
		report, err = s.persist(ctx, tx, nodes, ix.Rebuild(ix.order))
		return err
	})
	if err != nil {
		return Report{}, fmt.Errorf("rebuild tree: %w", err)
	}

	s.logger.Info("linked sets rebuilt",
		"tree", treeID,
		"updated", len(report.Updated),
		"unchanged", report.Unchanged,
		"diagnostics", len(report.Diagnostics))
	return report, nil
}

// RebuildNodes recomputes the sets of the nodes in ids, resolving against
// the whole tree, and writes them through repo. Pass a transactional
// repository to make the writes part of a larger operation.
func (s *Service) RebuildNodes(ctx context.Context, repo model.Repository, treeID string, ids []string) (Report, error) {
	nodes, err := repo.ListTree(ctx, treeID)
	if err != nil {
		return Report{}, fmt.Errorf("list tree %s: %w", treeID, err)
	}
	ix := NewIndex(nodes)

	scoped := make([]*model.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := ix.Node(id); ok {
			scoped = append(scoped, n)
		}
	}
	report, err := s.persist(ctx, repo, scoped, ix.Rebuild(ids))
	if err != nil {
		return Report{}, err
	}

	s.logger.Debug("linked sets rebuilt for nodes",
		"tree", treeID,
		"requested", len(ids),
		"updated", len(report.Updated))
	return report, nil
}

func (s *Service) persist(ctx context.Context, repo model.Repository, nodes []*model.Node, res Result) (Report, error) {
	report := Report{Diagnostics: res.Diagnostics}
	for _, n := range nodes {
		next, ok := res.Links[n.ID]
		if !ok {
			continue
		}
		if !Changed(n.Linked, next) {
			report.Unchanged++
			continue
		}
		if err := repo.UpdateLinkedSets(ctx, n.ID, next); err != nil {
			return Report{}, fmt.Errorf("update linked sets of %s: %w", n.ID, err)
		}
		report.Updated = append(report.Updated, n.ID)
	}

	cycles, diags := AnalyzeCycles(res.Edges)
	report.Cycles = cycles
	report.Diagnostics.Append(diags)
	return report, nil
}
