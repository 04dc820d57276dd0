package linker

import (
	"slices"
	"strings"

	"github.com/roach88/captree/internal/ident"
	"github.com/roach88/captree/internal/model"
)

// SharedLabels reports shared-ref nodes that carry the same label. This is
// tolerated, so each group gives one info diagnostic.
func SharedLabels(nodes []*model.Node) model.Diagnostics {
	byLabel := make(map[string][]string)
	for _, n := range nodes {
		if n == nil || !ident.IsShared(n.ID) {
			continue
		}
		label := strings.TrimSpace(n.Label)
		if label == "" {
			continue
		}
		byLabel[label] = append(byLabel[label], n.ID)
	}

	labels := make([]string, 0, len(byLabel))
	for label, ids := range byLabel {
		if len(ids) > 1 {
			labels = append(labels, label)
		}
	}
	slices.Sort(labels)

	var diags model.Diagnostics
	for _, label := range labels {
		ids := byLabel[label]
		slices.Sort(ids)
		d := diags.Info(model.DiagDuplicateSharedLabel, "shared references %s share the label %q",
			strings.Join(ids, ", "), label)
		d.NodeID = ids[0]
		d.Ref = label
	}
	return diags
}
