package findings

import (
	"sort"

	"externaltypes/internal/core/errors"
)

// Set collects findings keyed by Finding.Key. The first finding added for a
// key wins; later ones are dropped.
type Set struct {
	byKey  map[string]*Finding
	faults *errors.Faults
}

// NewSet creates an empty set. Span-carrying findings added without a span
// are reported on faults.
func NewSet(faults *errors.Faults) *Set {
	if faults == nil {
		faults = errors.NewFaults(nil)
	}
	return &Set{byKey: make(map[string]*Finding), faults: faults}
}

// Add inserts f and reports whether it was new.
func (s *Set) Add(f *Finding) bool {
	if f.Span == nil && f.Kind.hasSpan() {
		level := "A warning"
		if f.Severity() == SeverityError {
			level = "An error"
		}
		s.faults.Bug(level+" is missing a span and will be printed without context, file name, and line number.",
			"kind", f.Kind.String(), "type", f.TypeName, "in", f.In)
	}
	if _, ok := s.byKey[f.key]; ok {
		return false
	}
	s.byKey[f.key] = f
	return true
}

func (s *Set) Len() int {
	return len(s.byKey)
}

func (s *Set) IsEmpty() bool {
	return len(s.byKey) == 0
}

// Sorted returns the findings ordered by key.
func (s *Set) Sorted() []*Finding {
	out := make([]*Finding, 0, len(s.byKey))
	for _, f := range s.byKey {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func (s *Set) ErrorCount() int {
	return s.count(SeverityError)
}

func (s *Set) WarningCount() int {
	return s.count(SeverityWarning)
}

// CountByKind tallies findings per kind.
func (s *Set) CountByKind() map[Kind]int {
	counts := make(map[Kind]int, len(Kinds))
	for _, f := range s.byKey {
		counts[f.Kind]++
	}
	return counts
}

func (s *Set) count(severity Severity) int {
	n := 0
	for _, f := range s.byKey {
		if f.Severity() == severity {
			n++
		}
	}
	return n
}
