// Package refs finds identifiers embedded in capacity payloads and rewrites
// them for duplicated subtrees.
package refs

import (
	"encoding/json"
	"reflect"
	"slices"

	"github.com/roach88/captree/internal/ident"
	"github.com/roach88/captree/internal/ir"
)

// structuralKeys hold a whole identifier (or a list of them) rather than
// free text. Their values are parsed with ident.ParseRef, which accepts
// opaque ids the free-text grammar would miss.
var structuralKeys = map[string]bool{
	"nodeIds":              true,
	"ref":                  true,
	"lookupNodeId":         true,
	"selectedNodeId":       true,
	"nodeId":               true,
	"sourceRef":            true,
	"rowFieldId":           true,
	"columnFieldId":        true,
	"rowSelectorNodeId":    true,
	"columnSelectorNodeId": true,
	"fieldId":              true,
}

// IsStructuralKey reports whether values under key are whole identifiers.
func IsStructuralKey(key string) bool {
	return structuralKeys[key]
}

// Set is a set of identifiers.
type Set map[string]struct{}

// Add inserts id.
func (s Set) Add(id string) {
	if id != "" {
		s[id] = struct{}{}
	}
}

// Has reports whether id is in the set.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Extract returns the identifiers found in payload. See ExtractRefs.
func Extract(payload any) Set {
	set := make(Set)
	for _, r := range ExtractRefs(payload) {
		set.Add(r.ID)
	}
	return set
}

// ExtractRefs walks payload to any depth and returns every reference it
// finds, deduplicated by (kind, id) in first-seen order.
//
// payload may be an ir value, plain Go maps/slices, a JSON string or
// json.RawMessage, or any value encoding/json can marshal. Cycles in the
// object graph are tolerated. Malformed input never panics; whatever can be
// recognized is returned.
func ExtractRefs(payload any) []ident.Ref {
	w := &walker{
		visited: make(map[uintptr]bool),
		seen:    make(map[ident.Ref]bool),
	}
	func() {
		defer func() {
			// Reflection over arbitrary caller values is the only source of
			// panics here; keep whatever was collected before it.
			_ = recover()
		}()
		w.walk(payload, false)
	}()
	return w.refs
}

type walker struct {
	visited map[uintptr]bool
	seen    map[ident.Ref]bool
	refs    []ident.Ref
}

func (w *walker) add(r ident.Ref) {
	key := ident.Ref{Kind: r.Kind, ID: r.ID}
	if w.seen[key] {
		return
	}
	w.seen[key] = true
	w.refs = append(w.refs, key)
}

func (w *walker) scan(s string, structural bool) {
	if structural {
		if r, ok := ident.ParseRef(s); ok {
			w.add(r)
			return
		}
	}
	for _, m := range ident.Scan(s) {
		w.add(m.Ref)
	}
}

// enter marks a map or slice as visited. It returns false if it was already
// on the walk, which breaks cycles.
func (w *walker) enter(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		if rv.IsNil() {
			return false
		}
		p := uintptr(rv.UnsafePointer())
		if rv.Kind() == reflect.Slice && rv.Len() == 0 {
			return true
		}
		if w.visited[p] {
			return false
		}
		w.visited[p] = true
	}
	return true
}

func (w *walker) walk(v any, structural bool) {
	switch val := v.(type) {
	case nil, ir.IRNull, ir.IRNumber, ir.IRBool, bool, float64, float32, int, int64, json.Number:
		return
	case ir.IRString:
		w.scan(string(val), structural)
	case string:
		w.scanStringOrJSON(val, structural)
	case json.RawMessage:
		w.walkJSON(val)
	case []byte:
		w.walkJSON(val)
	case ir.IRArray:
		if !w.enter(val) {
			return
		}
		for _, e := range val {
			w.walk(e, structural)
		}
	case ir.IRObject:
		if !w.enter(val) {
			return
		}
		for _, k := range val.SortedKeys() {
			w.walk(val[k], structuralKeys[k])
		}
	case []any:
		if !w.enter(val) {
			return
		}
		for _, e := range val {
			w.walk(e, structural)
		}
	case []string:
		for _, e := range val {
			w.scan(e, structural)
		}
	case map[string]any:
		if !w.enter(val) {
			return
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			w.walk(val[k], structuralKeys[k])
		}
	case *any:
		if !w.enter(val) {
			return
		}
		w.walk(*val, structural)
	default:
		w.walkOther(v, structural)
	}
}

// scanStringOrJSON handles strings that hold serialized JSON, which the
// source data sometimes stores instead of nested objects.
func (w *walker) scanStringOrJSON(s string, structural bool) {
	if len(s) > 1 && (s[0] == '{' || s[0] == '[') && json.Valid([]byte(s)) {
		w.walkJSON([]byte(s))
		return
	}
	w.scan(s, structural)
}

func (w *walker) walkJSON(data []byte) {
	v, err := ir.ParseJSON(data)
	if err != nil {
		w.scan(string(data), false)
		return
	}
	w.walk(v, false)
}

// walkOther handles typed Go values: pointers are followed with cycle
// tracking, everything else goes through encoding/json.
func (w *walker) walkOther(v any, structural bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if !w.enter(v) {
			return
		}
		w.walk(rv.Elem().Interface(), structural)
		return
	}
	if rv.Kind() == reflect.String {
		w.scan(rv.String(), structural)
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	w.walkJSON(data)
}
