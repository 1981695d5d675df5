// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package solver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBasic(t *testing.T) {
	s, err := Parse("pattern a\npattern b\ndepth 2")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, s.Patterns)
	require.Equal(t, 2, s.Depth)
	require.Equal(t, int64(4), s.TotalCombinations())
}

func TestParseDefaultsDepthToOne(t *testing.T) {
	s, err := Parse("pattern x\npattern y\npattern z")
	require.NoError(t, err)
	require.Equal(t, 1, s.Depth)
	require.Equal(t, int64(3), s.TotalCombinations())
}

func TestParseIgnoresUnknownLines(t *testing.T) {
	s, err := Parse("# comment\npattern a\nbogus line\ndepth 1\n")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, s.Patterns)
	require.Equal(t, int64(1), s.TotalCombinations())
}

func TestParseTrimsLeadingWhitespace(t *testing.T) {
	s, err := Parse("   pattern a\n\tdepth 3")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, s.Patterns)
	require.Equal(t, 3, s.Depth)
}

func TestParseInvalidDepth(t *testing.T) {
	_, err := Parse("pattern a\ndepth not-a-number")
	require.Error(t, err)

	_, err = Parse("pattern a\ndepth 0")
	require.Error(t, err)
}

func TestParseRoundTripPreservesDerivedFields(t *testing.T) {
	// Parsing then re-emitting a solver file preserves (patterns, depth).
	text := "pattern a\npattern bb\ndepth 3"
	s1, err := Parse(text)
	require.NoError(t, err)

	s2, err := Parse(s1.Text)
	require.NoError(t, err)

	require.Equal(t, s1.Patterns, s2.Patterns)
	require.Equal(t, s1.Depth, s2.Depth)
}

func TestNoPatternsYieldsZeroCombinations(t *testing.T) {
	s, err := Parse("depth 5")
	require.NoError(t, err)
	require.Equal(t, int64(0), s.TotalCombinations())
}
