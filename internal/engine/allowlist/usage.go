package allowlist

import "sort"

// Usage tracks which patterns have not matched anything yet. Patterns are
// keyed by source text, so a pattern listed twice is one entry.
type Usage struct {
	unused map[string]struct{}
}

func NewUsage(patterns []*Pattern) *Usage {
	u := &Usage{unused: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		u.unused[p.Source] = struct{}{}
	}
	return u
}

func (u *Usage) MarkUsed(p *Pattern) {
	delete(u.unused, p.Source)
}

// Unused returns the patterns that never matched, sorted.
func (u *Usage) Unused() []string {
	out := make([]string, 0, len(u.unused))
	for source := range u.unused {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}
