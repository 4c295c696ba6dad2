// Package allowlist decides whether an external type may appear in a public API.
package allowlist

import (
	"errors"
	"fmt"
	"strings"

	"externaltypes/internal/core/config"

	"github.com/gobwas/glob"
)

// BaseLibraries are always linked and gated by config booleans rather than
// patterns.
var BaseLibraries = []string{"alloc", "core", "std"}

// Pattern is one compiled allow-list entry.
type Pattern struct {
	Source string
	glob   glob.Glob
}

// CompilePattern compiles an allow-list entry. Only `*` is special: it
// matches any run of characters, `::` included. Everything else matches
// literally.
func CompilePattern(source string) (*Pattern, error) {
	parts := strings.Split(source, "*")
	for i, part := range parts {
		parts[i] = glob.QuoteMeta(part)
	}
	g, err := glob.Compile(strings.Join(parts, "*"))
	if err != nil {
		return nil, fmt.Errorf("invalid allowed external type pattern %q: %w", source, err)
	}
	return &Pattern{Source: source, glob: g}, nil
}

func (p *Pattern) Matches(typeName string) bool {
	return p.glob.Match(typeName)
}

func (p *Pattern) String() string {
	return p.Source
}

type MatchKind int

const (
	MatchRoot MatchKind = iota
	MatchBaseLibrary
	MatchApproved
)

// Match is a successful classification.
type Match struct {
	Kind MatchKind
	// Library is set for MatchBaseLibrary.
	Library string
	// Pattern is set for MatchApproved.
	Pattern *Pattern
}

// ErrNoMatch means no pattern approves the type.
var ErrNoMatch = errors.New("no match found")

type BaseLibraryNotAllowedError struct {
	Library string
}

func (e *BaseLibraryNotAllowedError) Error() string {
	return fmt.Sprintf("base library %q not allowed", e.Library)
}

// DuplicateMatchesError lists every pattern that matched the same type, in
// config order.
type DuplicateMatchesError struct {
	Patterns []*Pattern
}

func (e *DuplicateMatchesError) Error() string {
	sources := make([]string, len(e.Patterns))
	for i, p := range e.Patterns {
		sources[i] = p.Source
	}
	return "duplicate matches: " + strings.Join(sources, ", ")
}

// Matcher classifies fully qualified type names against a Config.
type Matcher struct {
	allow    map[string]bool
	patterns []*Pattern
}

func Compile(cfg config.Config) (*Matcher, error) {
	m := &Matcher{
		allow: map[string]bool{
			"alloc": cfg.AllowAlloc,
			"core":  cfg.AllowCore,
			"std":   cfg.AllowStd,
		},
		patterns: make([]*Pattern, 0, len(cfg.AllowedExternalTypes)),
	}
	for _, source := range cfg.AllowedExternalTypes {
		p, err := CompilePattern(source)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// Patterns returns the compiled patterns in config order.
func (m *Matcher) Patterns() []*Pattern {
	return m.patterns
}

// Classify returns how typeName is allowed in rootCrate's public API, or why
// it is not: *BaseLibraryNotAllowedError, ErrNoMatch or
// *DuplicateMatchesError.
func (m *Matcher) Classify(rootCrate, typeName string) (Match, error) {
	crateName := CrateName(typeName)
	if crateName == rootCrate {
		return Match{Kind: MatchRoot}, nil
	}

	if allowed, ok := m.allow[crateName]; ok {
		if !allowed {
			return Match{}, &BaseLibraryNotAllowedError{Library: crateName}
		}
		return Match{Kind: MatchBaseLibrary, Library: crateName}, nil
	}

	var matches []*Pattern
	for _, p := range m.patterns {
		if p.Matches(typeName) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return Match{}, ErrNoMatch
	case 1:
		return Match{Kind: MatchApproved, Pattern: matches[0]}, nil
	default:
		return Match{}, &DuplicateMatchesError{Patterns: matches}
	}
}

// CrateName returns the leading path segment of a fully qualified name.
func CrateName(typeName string) string {
	if i := strings.Index(typeName, "::"); i >= 0 {
		return typeName[:i]
	}
	return typeName
}
