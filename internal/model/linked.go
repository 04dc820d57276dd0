package model

import (
	"slices"
)

// LinkedSets is the per-node linked-ID cache. It is derived state: the
// linker recomputes it from capacity payloads and never patches it in place.
type LinkedSets struct {
	Variables  []string `json:"linkedVariableIds"`
	Formulas   []string `json:"linkedFormulaIds"`
	Conditions []string `json:"linkedConditionIds"`
	Tables     []string `json:"linkedTableIds"`
}

// Add inserts id into the set for kind. Variables also collect node IDs.
func (s *LinkedSets) Add(kind CapacityKind, id string) {
	if id == "" {
		return
	}
	switch kind {
	case KindFormula:
		s.Formulas = appendUnique(s.Formulas, id)
	case KindCondition:
		s.Conditions = appendUnique(s.Conditions, id)
	case KindTable:
		s.Tables = appendUnique(s.Tables, id)
	case KindVariable:
		s.Variables = appendUnique(s.Variables, id)
	}
}

// Remove deletes id from all four sets.
func (s *LinkedSets) Remove(id string) {
	del := func(list []string) []string {
		return slices.DeleteFunc(list, func(x string) bool { return x == id })
	}
	s.Variables = del(s.Variables)
	s.Formulas = del(s.Formulas)
	s.Conditions = del(s.Conditions)
	s.Tables = del(s.Tables)
}

// Normalized returns a copy with every set sorted and deduplicated. Empty
// sets are nil so two empty caches compare equal however they were built.
func (s LinkedSets) Normalized() LinkedSets {
	return LinkedSets{
		Variables:  normalize(s.Variables),
		Formulas:   normalize(s.Formulas),
		Conditions: normalize(s.Conditions),
		Tables:     normalize(s.Tables),
	}
}

// Equal compares two caches as sorted arrays.
func (s LinkedSets) Equal(o LinkedSets) bool {
	a, b := s.Normalized(), o.Normalized()
	return slices.Equal(a.Variables, b.Variables) &&
		slices.Equal(a.Formulas, b.Formulas) &&
		slices.Equal(a.Conditions, b.Conditions) &&
		slices.Equal(a.Tables, b.Tables)
}

// Contains reports whether id appears in any of the four sets.
func (s LinkedSets) Contains(id string) bool {
	return slices.Contains(s.Variables, id) ||
		slices.Contains(s.Formulas, id) ||
		slices.Contains(s.Conditions, id) ||
		slices.Contains(s.Tables, id)
}

// All returns the union of the four sets, sorted.
func (s LinkedSets) All() []string {
	var all []string
	all = append(all, s.Variables...)
	all = append(all, s.Formulas...)
	all = append(all, s.Conditions...)
	all = append(all, s.Tables...)
	return normalize(all)
}

// IsEmpty reports whether all four sets are empty.
func (s LinkedSets) IsEmpty() bool {
	return len(s.Variables) == 0 && len(s.Formulas) == 0 &&
		len(s.Conditions) == 0 && len(s.Tables) == 0
}

func appendUnique(list []string, id string) []string {
	if slices.Contains(list, id) {
		return list
	}
	return append(list, id)
}

func normalize(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := slices.Clone(list)
	slices.Sort(out)
	return slices.Compact(out)
}
