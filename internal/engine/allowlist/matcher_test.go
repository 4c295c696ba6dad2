package allowlist

import (
	"errors"
	"testing"

	"externaltypes/internal/core/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, patterns ...string) *Matcher {
	t.Helper()
	cfg := config.Default()
	cfg.AllowedExternalTypes = patterns
	m, err := Compile(cfg)
	require.NoError(t, err)
	return m
}

func TestPatternMatching(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"test::*", "test::something", true},
		{"test::*", "other::something", false},
		{"another_test::something::*::something", "another_test::something::foo::something", true},
		{"another_test::something::*::something", "another_test::other::foo::something", false},
		{"*::foo", "another_test::foo", true},
		{"external::*", "external::deep::nested::Type", true},
		{"external::Foo", "external::Foo", true},
		{"external::Foo", "external::Foo2", false},
		{"External::*", "external::Foo", false},
		{"weird::[a]?{b}", "weird::[a]?{b}", true},
		{"weird::[a]?{b}", "weird::a!b", false},
	}
	for _, tt := range tests {
		p, err := CompilePattern(tt.pattern)
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.Matches(tt.name), "%s against %s", tt.pattern, tt.name)
	}
}

func TestClassify(t *testing.T) {
	m := compile(t, "one::*", "two::*")

	match, err := m.Classify("root", "alloc::System")
	require.NoError(t, err)
	assert.Equal(t, Match{Kind: MatchBaseLibrary, Library: "alloc"}, match)

	match, err = m.Classify("root", "std::vec::Vec")
	require.NoError(t, err)
	assert.Equal(t, "std", match.Library)

	match, err = m.Classify("root", "std::path::Path")
	require.NoError(t, err)
	assert.Equal(t, MatchBaseLibrary, match.Kind)

	match, err = m.Classify("root", "root::thing")
	require.NoError(t, err)
	assert.Equal(t, MatchRoot, match.Kind)

	_, err = m.Classify("other_root", "root::thing")
	assert.ErrorIs(t, err, ErrNoMatch)

	match, err = m.Classify("root", "one::thing")
	require.NoError(t, err)
	assert.Equal(t, MatchApproved, match.Kind)
	assert.Equal(t, "one::*", match.Pattern.Source)

	match, err = m.Classify("root", "two::thing")
	require.NoError(t, err)
	assert.Equal(t, "two::*", match.Pattern.Source)

	_, err = m.Classify("root", "three::thing")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestClassifyRootAlwaysWins(t *testing.T) {
	cfg := config.Config{AllowedExternalTypes: []string{"*", "*"}}
	m, err := Compile(cfg)
	require.NoError(t, err)

	for _, name := range []string{"std", "std::fmt::Debug", "core::Foo", "alloc::Bar"} {
		crate := CrateName(name)
		match, err := m.Classify(crate, name)
		require.NoError(t, err, name)
		assert.Equal(t, MatchRoot, match.Kind, name)
	}
}

func TestClassifyBaseLibraryDisallowed(t *testing.T) {
	cfg := config.Config{AllowedExternalTypes: []string{"std::*", "core::*", "alloc::*"}}
	m, err := Compile(cfg)
	require.NoError(t, err)

	for _, lib := range BaseLibraries {
		_, err := m.Classify("root", lib+"::Thing")
		var notAllowed *BaseLibraryNotAllowedError
		require.True(t, errors.As(err, &notAllowed), "expected %s to be rejected, got %v", lib, err)
		assert.Equal(t, lib, notAllowed.Library)
	}
}

func TestClassifyDuplicateMatches(t *testing.T) {
	m := compile(t, "test::*", "test::*", "another_test::*", "*::foo")

	_, err := m.Classify("root", "test::thing")
	var dup *DuplicateMatchesError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"test::*", "test::*"}, sources(dup.Patterns))

	_, err = m.Classify("root", "another_test::foo")
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"another_test::*", "*::foo"}, sources(dup.Patterns))
}

func TestClassifyDuplicateIsOrderIndependent(t *testing.T) {
	forward := compile(t, "a::*", "*::Foo")
	backward := compile(t, "*::Foo", "a::*")

	for _, m := range []*Matcher{forward, backward} {
		_, err := m.Classify("root", "a::Foo")
		var dup *DuplicateMatchesError
		require.True(t, errors.As(err, &dup))
		assert.ElementsMatch(t, []string{"a::*", "*::Foo"}, sources(dup.Patterns))
	}
}

func TestCrateName(t *testing.T) {
	assert.Equal(t, "external", CrateName("external::Foo"))
	assert.Equal(t, "single", CrateName("single"))
	assert.Equal(t, "", CrateName("::leading"))
}

func TestUsage(t *testing.T) {
	m := compile(t, "b::*", "a::*", "a::*", "c::*")
	usage := NewUsage(m.Patterns())
	assert.Equal(t, []string{"a::*", "b::*", "c::*"}, usage.Unused())

	match, err := m.Classify("root", "b::X")
	require.NoError(t, err)
	usage.MarkUsed(match.Pattern)
	assert.Equal(t, []string{"a::*", "c::*"}, usage.Unused())

	_, err = m.Classify("root", "a::X")
	var dup *DuplicateMatchesError
	require.True(t, errors.As(err, &dup))
	for _, p := range dup.Patterns {
		usage.MarkUsed(p)
	}
	assert.Equal(t, []string{"c::*"}, usage.Unused())
}

func sources(patterns []*Pattern) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.Source
	}
	return out
}
