package evaluator

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func s(v string) ir.IRValue { return ir.IRString(v) }
func n(v float64) ir.IRValue { return ir.IRNumber(v) }

func tokens(vals ...ir.IRValue) ir.IRArray { return ir.IRArray(vals) }

func formulaNode(id, fid string, toks ir.IRArray) *model.Node {
	node := &model.Node{ID: id, TreeID: "tree"}
	node.Formula = &model.Formula{ID: fid, NodeID: id, Tokens: toks}
	return node
}

func eval(t *testing.T, nodes []*model.Node, c model.Capacity, form FormData) (ir.IRValue, model.Diagnostics) {
	t.Helper()
	return New(NewMemorySource(nodes), quiet()).Evaluate(context.Background(), c, form)
}
