package evaluator

import (
	"strings"

	"github.com/roach88/captree/internal/ir"
	"github.com/roach88/captree/internal/model"
)

// table resolves a lookup cell. Rows[0] and Columns[0] are the corner
// header, so the cell for Rows[r] x Columns[c] is Data[r-1][c-1].
func (r *run) table(t *model.Table) ir.IRValue {
	lk, ok := model.ParseLookup(t.Meta)
	switch {
	case !ok:
		return r.lookupFailed(t, "table has no lookup configuration")
	case !lk.Enabled:
		return r.lookupFailed(t, "lookup is disabled")
	case !lk.RowEnabled && !lk.ColumnEnabled:
		return r.lookupFailed(t, "no lookup axis is enabled")
	}

	rows := headerLabels(t.Rows)
	cols := headerLabels(t.Columns)

	var cells [][2]int
	switch {
	case lk.RowEnabled && lk.ColumnEnabled:
		rowSel, okR := r.selection(lk.RowFieldID)
		colSel, okC := r.selection(lk.ColumnFieldID)
		if !okR || !okC {
			return r.lookupFailed(t, "row or column selection is missing")
		}
		ri, ci := locate(rowSel, rows), locate(colSel, cols)
		if ri < 0 || ci < 0 {
			// The selectors may be wired to the other axis.
			if swappedR, swappedC := locate(colSel, rows), locate(rowSel, cols); swappedR >= 0 && swappedC >= 0 {
				ri, ci = swappedR, swappedC
			}
		}
		if ri < 0 || ci < 0 {
			return r.lookupFailed(t, "no cell matches row %q and column %q", rowSel, colSel)
		}
		cells = append(cells, [2]int{ri, ci})

	case lk.ColumnEnabled:
		colSel, ok := r.selection(lk.ColumnFieldID)
		if !ok {
			return r.lookupFailed(t, "column selection is missing")
		}
		cells = crossFixed(colSel, lk.DisplayRow, cols, rows, false)
		if cells == nil {
			return r.lookupFailed(t, "no cell matches column %q", colSel)
		}

	default:
		rowSel, ok := r.selection(lk.RowFieldID)
		if !ok {
			return r.lookupFailed(t, "row selection is missing")
		}
		cells = crossFixed(rowSel, lk.DisplayColumn, rows, cols, true)
		if cells == nil {
			return r.lookupFailed(t, "no cell matches row %q", rowSel)
		}
	}

	var out ir.IRArray
	for _, rc := range cells {
		v, ok := cell(t.Data, rc[0], rc[1])
		if !ok {
			r.lookupFailed(t, "cell [%d][%d] is out of range", rc[0], rc[1])
			continue
		}
		out = append(out, v)
	}
	switch len(out) {
	case 0:
		return ir.Null
	case 1:
		return out[0]
	}
	return out
}

// crossFixed crosses the selected label on one axis with each fixed label
// on the other. selAxis is where sel is looked up first; if sel is only
// found on the other axis the two swap. rowSelected tells which axis sel
// belongs to so the result is always (row, column).
func crossFixed(sel string, fixed []string, selAxis, otherAxis []string, rowSelected bool) [][2]int {
	si := locate(sel, selAxis)
	if si < 0 {
		si = locate(sel, otherAxis)
		if si < 0 {
			return nil
		}
		otherAxis = selAxis
		rowSelected = !rowSelected
	}

	var cells [][2]int
	for _, f := range fixed {
		fi := locate(f, otherAxis)
		if fi < 0 {
			continue
		}
		if rowSelected {
			cells = append(cells, [2]int{si, fi})
		} else {
			cells = append(cells, [2]int{fi, si})
		}
	}
	return cells
}

func (r *run) selection(fieldID string) (string, bool) {
	if fieldID == "" {
		return "", false
	}
	v := r.resolveID(fieldID)
	if isEmpty(v) {
		return "", false
	}
	return toText(v), true
}

func (r *run) lookupFailed(t *model.Table, format string, args ...any) ir.IRValue {
	d := r.diags.Warn(model.DiagLookupFailed, format, args...)
	d.CapacityID = t.ID
	d.NodeID = t.NodeID
	return ir.Null
}

func headerLabels(headers ir.IRArray) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = model.HeaderLabel(h)
	}
	return out
}

// locate returns the header index (1-based, index 0 is the corner) that
// label matches: exact case-folded first, then prefix, then substring.
// It returns -1 when nothing matches.
func locate(label string, headers []string) int {
	want := fold(label)
	if want == "" {
		return -1
	}
	for i := 1; i < len(headers); i++ {
		if fold(headers[i]) == want {
			return i
		}
	}
	for i := 1; i < len(headers); i++ {
		h := fold(headers[i])
		if h != "" && (strings.HasPrefix(h, want) || strings.HasPrefix(want, h)) {
			return i
		}
	}
	for i := 1; i < len(headers); i++ {
		h := fold(headers[i])
		if h != "" && (strings.Contains(h, want) || strings.Contains(want, h)) {
			return i
		}
	}
	return -1
}

func cell(data ir.IRArray, r, c int) (ir.IRValue, bool) {
	if r < 1 || r > len(data) {
		return nil, false
	}
	row, ok := data[r-1].(ir.IRArray)
	if !ok || c < 1 || c > len(row) {
		return nil, false
	}
	return row[c-1], true
}
