// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package catalog manages the on-disk catalog of named solver files available
// for the operator console to pick from.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Entry is one named solver file in the catalog.
type Entry struct {
	Name string // filename stem, sans ".solve"
	Text string // raw solver file contents
}

// Catalog enumerates entries from a root directory of "*.solve" files,
// matched recursively so nested solver directories are picked up too.
type Catalog struct {
	dir string
}

// New returns a Catalog rooted at dir. dir need not exist yet; Load then
// returns an empty slice rather than an error.
func New(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Load walks the catalog directory and returns its entries ordered
// ascendingly by name.
func (c *Catalog) Load() ([]Entry, error) {
	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(c.dir), "**/*.solve")
	if err != nil {
		return nil, fmt.Errorf("catalog: glob failed: %w", err)
	}

	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		text, err := os.ReadFile(filepath.Join(c.dir, m))
		if err != nil {
			return nil, fmt.Errorf("catalog: reading %s: %w", m, err)
		}

		name := strings.TrimSuffix(m, ".solve")
		entries = append(entries, Entry{Name: name, Text: string(text)})
	}

	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })

	return entries, nil
}

// ByName loads the catalog and returns the entry with the given name, if any.
func (c *Catalog) ByName(name string) (Entry, bool, error) {
	entries, err := c.Load()
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}
