package ident

import (
	"regexp"
	"strings"
)

// Kind classifies what an identifier points at.
type Kind string

const (
	KindNode      Kind = "node"
	KindShared    Kind = "shared"
	KindFormula   Kind = "formula"
	KindCondition Kind = "condition"
	KindTable     Kind = "table"
)

// Value reference prefixes, in the order they are tried.
var valuePrefixes = []string{"@value.", "@select.", "@calculated.", "@input."}

// Capacity prefixes. Longer forms come first so "node-condition:" is not
// read as "condition:".
var capacityPrefixes = []struct {
	prefix string
	kind   Kind
}{
	{"node-formula:", KindFormula},
	{"node-condition:", KindCondition},
	{"node-table:", KindTable},
	{"condition:", KindCondition},
	{"formula:", KindFormula},
	{"@table.", KindTable},
}

const sharedRefPrefix = "shared-ref-"

// refPattern finds references embedded in free text.
//
// Group layout:
//
//	1: value prefix   2: capacity prefix   3: id        (prefixed reference)
//	4: capacity prefix                      5: id        (bare capacity reference)
//	6: id                                                (bare node / shared reference)
var refPattern = regexp.MustCompile(
	`(@(?:value|select|calculated|input)\.|@table\.)` +
		`((?:node-formula|node-condition|node-table|condition|formula):)?` +
		`([A-Za-z0-9_-]+)` +
		`|\b((?:node-formula|node-condition|node-table|condition|formula):)([A-Za-z0-9_-]+)` +
		`|\b(shared-ref-[A-Za-z0-9_-]*[A-Za-z0-9_]` +
		`|[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}(?:-[0-9]+)*\b` +
		`|node_[A-Za-z0-9_-]*[A-Za-z0-9_])`,
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Ref is a parsed reference.
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
	// Raw is the full text the reference was parsed from, prefixes included.
	Raw string `json:"raw"`
}

// Match is a reference found inside a larger string. Start and End delimit
// the identifier itself (prefixes excluded) so callers can splice in a
// replacement without touching the prefix.
type Match struct {
	Ref   Ref
	Start int
	End   int
}

// Scan returns every reference in s, left to right.
func Scan(s string) []Match {
	if s == "" {
		return nil
	}
	locs := refPattern.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		raw := s[loc[0]:loc[1]]
		switch {
		case loc[6] >= 0:
			kind := kindForPrefixes(s[loc[2]:loc[3]], group(s, loc, 2))
			id := s[loc[6]:loc[7]]
			if kind == KindNode && strings.HasPrefix(id, sharedRefPrefix) {
				kind = KindShared
			}
			matches = append(matches, Match{Ref: Ref{Kind: kind, ID: id, Raw: raw}, Start: loc[6], End: loc[7]})
		case loc[10] >= 0:
			kind := kindForPrefixes("", s[loc[8]:loc[9]])
			matches = append(matches, Match{Ref: Ref{Kind: kind, ID: s[loc[10]:loc[11]], Raw: raw}, Start: loc[10], End: loc[11]})
		case loc[12] >= 0:
			id := s[loc[12]:loc[13]]
			kind := KindNode
			if strings.HasPrefix(id, sharedRefPrefix) {
				kind = KindShared
			}
			matches = append(matches, Match{Ref: Ref{Kind: kind, ID: id, Raw: raw}, Start: loc[12], End: loc[13]})
		}
	}
	return matches
}

func group(s string, loc []int, n int) string {
	if loc[2*n] < 0 {
		return ""
	}
	return s[loc[2*n]:loc[2*n+1]]
}

func kindForPrefixes(valuePrefix, capacityPrefix string) Kind {
	if capacityPrefix != "" {
		for _, p := range capacityPrefixes {
			if p.prefix == capacityPrefix {
				return p.kind
			}
		}
	}
	if valuePrefix == "@table." {
		return KindTable
	}
	return KindNode
}

// ParseRef interprets s as a single whole reference, the way structural
// fields such as "nodeIds" or "sourceRef" hold them. Unlike Scan it accepts
// any non-empty opaque id, not only grammar-shaped ones.
func ParseRef(s string) (Ref, bool) {
	raw := s
	s = strings.TrimSpace(s)
	for _, p := range valuePrefixes {
		if strings.HasPrefix(s, p) {
			s = s[len(p):]
			break
		}
	}

	kind := KindNode
	for _, p := range capacityPrefixes {
		if strings.HasPrefix(s, p.prefix) {
			s = s[len(p.prefix):]
			kind = p.kind
			break
		}
	}

	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return Ref{}, false
	}
	if kind == KindNode && strings.HasPrefix(s, sharedRefPrefix) {
		kind = KindShared
	}
	return Ref{Kind: kind, ID: s, Raw: raw}, true
}

// StripValuePrefix removes a leading "@value." style prefix.
func StripValuePrefix(s string) string {
	for _, p := range valuePrefixes {
		if strings.HasPrefix(s, p) {
			return s[len(p):]
		}
	}
	return s
}

// IsUUID reports whether s is a bare 36-character UUID with no suffix.
func IsUUID(s string) bool {
	return len(s) == 36 && uuidPattern.MatchString(s)
}

// IsShared reports whether id is a shared reference.
func IsShared(id string) bool {
	return strings.HasPrefix(id, sharedRefPrefix)
}
