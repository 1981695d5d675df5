// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package solver parses the line-oriented grammar of a solver file into the
// derived quantities the coordinator uses to build a combination space.
package solver

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Solver holds the text of a solver file plus the quantities derived from it.
type Solver struct {
	Text     string   // the solver text exactly as supplied
	Patterns []string // ordered list of pattern tokens
	Depth    int      // search depth
}

// Parse reads a solver file's grammar: leading whitespace on each line is
// ignored, "pattern <token>" appends to Patterns, "depth <n>" sets Depth, and
// any other line is ignored (reserved for future extension).
//
// Depth defaults to 1 if no "depth" directive is present.
func Parse(text string) (*Solver, error) {
	s := &Solver{Text: text, Depth: 1}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(line, "pattern "):
			s.Patterns = append(s.Patterns, strings.TrimSpace(line[len("pattern "):]))
		case strings.HasPrefix(line, "depth "):
			n, err := strconv.Atoi(strings.TrimSpace(line[len("depth "):]))
			if err != nil {
				return nil, fmt.Errorf("solver: invalid depth directive %q: %w", line, err)
			}
			if n <= 0 {
				return nil, fmt.Errorf("solver: depth must be positive, got %d", n)
			}
			s.Depth = n
		}
	}

	return s, nil
}

// TotalCombinations returns |patterns|^depth as the count of combination
// indices in [0, TotalCombinations). Zero patterns yields zero combinations
// regardless of depth.
func (s *Solver) TotalCombinations() int64 {
	if len(s.Patterns) == 0 {
		return 0
	}

	total := big.NewInt(1)
	base := big.NewInt(int64(len(s.Patterns)))
	for i := 0; i < s.Depth; i++ {
		total.Mul(total, base)
	}

	if !total.IsInt64() {
		// A combination space this large cannot be enumerated in memory; the
		// coordinator's unsolved list is a concrete []int64, so clamp rather
		// than overflow silently.
		return int64(^uint64(0) >> 1)
	}
	return total.Int64()
}
