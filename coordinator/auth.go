// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package coordinator

import "crypto/subtle"

// constantTimeEqual compares two strings in constant time so a worker
// probing the bearer token (or an operator probing console credentials)
// cannot learn anything from response timing. Length is not secret, so
// mismatched lengths short-circuit before the constant-time compare.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
