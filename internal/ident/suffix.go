package ident

import (
	"regexp"
	"strconv"
	"strings"
)

var trailingSuffix = regexp.MustCompile(`-([0-9]+)$`)

// StripSuffix removes every trailing copy suffix from id.
//
//	"uuid-1-2"          -> "uuid"
//	"shared-ref-abc-3"  -> "shared-ref-abc"
//	"B-1"               -> "B"
//
// A UUID's own last group is never treated as a suffix even when it is all
// digits, and a shared reference always keeps its opaque part.
func StripSuffix(id string) string {
	if len(id) >= 36 && uuidPattern.MatchString(id[:36]) {
		if len(id) == 36 || isSuffixChain(id[36:]) {
			return id[:36]
		}
	}

	base := id
	for {
		loc := trailingSuffix.FindStringIndex(base)
		if loc == nil {
			return base
		}
		next := base[:loc[0]]
		if next == "" || next == strings.TrimSuffix(sharedRefPrefix, "-") {
			return base
		}
		base = next
	}
}

// isSuffixChain reports whether s is one or more "-<digits>" groups.
func isSuffixChain(s string) bool {
	if s == "" {
		return false
	}
	for s != "" {
		loc := trailingSuffix.FindStringIndex(s)
		if loc == nil {
			return false
		}
		s = s[:loc[0]]
	}
	return true
}

// WithSuffix returns the copy identifier for id under suffix k. Existing
// suffixes are stripped first, so the result never stacks ("uuid-1-1").
func WithSuffix(id string, k int) string {
	return StripSuffix(id) + "-" + strconv.Itoa(k)
}

// Suffix returns the last copy suffix of id, if any.
func Suffix(id string) (int, bool) {
	base := StripSuffix(id)
	if base == id {
		return 0, false
	}
	m := trailingSuffix.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// HasSuffix reports whether id carries at least one copy suffix.
func HasSuffix(id string) bool {
	return StripSuffix(id) != id
}
