package refs

import (
	"strings"

	"github.com/roach88/captree/internal/ident"
	"github.com/roach88/captree/internal/ir"
)

// Policy controls how identifiers outside the copy map are treated.
type Policy struct {
	// GlobalSharedRefs keeps unmapped shared-ref-* identifiers as they are.
	// When false they get the copy suffix like everything else in the copy.
	GlobalSharedRefs bool

	// Shared lists identifiers that are never rewritten, such as globally
	// shared lookup tables.
	Shared map[string]bool
}

// Rewriter replaces identifiers in payloads according to an old->new map
// built for one duplication.
type Rewriter struct {
	mapping map[string]string
	suffix  int
	policy  Policy
}

// NewRewriter returns a rewriter for a copy with the given suffix. mapping
// must be complete before any rewrite runs; forward references inside the
// subtree are otherwise left pointing at the template.
func NewRewriter(mapping map[string]string, suffix int, policy Policy) *Rewriter {
	return &Rewriter{mapping: mapping, suffix: suffix, policy: policy}
}

// MapID returns the identifier id becomes in the copy.
func (r *Rewriter) MapID(id string) string {
	if r.policy.Shared[id] {
		return id
	}
	if mapped, ok := r.mapping[id]; ok {
		return mapped
	}
	if ident.IsShared(id) && !r.policy.GlobalSharedRefs {
		return ident.WithSuffix(id, r.suffix)
	}
	return id
}

// Rewrite returns a rewritten deep copy of v. v itself is not modified.
func (r *Rewriter) Rewrite(v ir.IRValue) ir.IRValue {
	return r.rewrite(v, false)
}

func (r *Rewriter) rewrite(v ir.IRValue, structural bool) ir.IRValue {
	switch val := v.(type) {
	case ir.IRString:
		return ir.IRString(r.RewriteString(string(val), structural))
	case ir.IRArray:
		out := make(ir.IRArray, len(val))
		for i, e := range val {
			out[i] = r.rewrite(e, structural)
		}
		return out
	case ir.IRObject:
		out := make(ir.IRObject, len(val))
		for k, e := range val {
			out[r.RewriteString(k, false)] = r.rewrite(e, structuralKeys[k])
		}
		return out
	case nil:
		return ir.Null
	default:
		return val
	}
}

// RewriteString rewrites the identifiers inside s. When structural is set
// and s parses as one whole reference, the identifier is replaced even if
// it does not match the free-text grammar. Prefixes are kept.
func (r *Rewriter) RewriteString(s string, structural bool) string {
	if structural {
		if ref, ok := ident.ParseRef(s); ok {
			trimmed := strings.TrimSpace(s)
			if i := strings.LastIndex(trimmed, ref.ID); i >= 0 && i+len(ref.ID) == len(trimmed) {
				return trimmed[:i] + r.MapID(ref.ID)
			}
		}
	}

	matches := ident.Scan(s)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m.Start])
		b.WriteString(r.MapID(m.Ref.ID))
		last = m.End
	}
	b.WriteString(s[last:])
	return b.String()
}
