// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package coordinator

import "github.com/rivo/uniseg"

// truncateGraphemes shortens an operator-supplied worker id to at most max
// grapheme clusters for log lines, so a byte-index cut can't split a
// multi-byte character worker ids are free to contain.
func truncateGraphemes(s string, max int) string {
	g := uniseg.NewGraphemes(s)
	count := 0
	end := 0
	for g.Next() {
		count++
		if count > max {
			return s[:end] + "…"
		}
		_, to := g.Positions()
		end = to
	}
	return s
}
