// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response reads from the homeserver so a
// misbehaving server cannot exhaust memory.
package netutil

import (
	"io"
)

// MaxResponseSize bounds JSON API response reads. Initial /sync
// responses for accounts in many rooms are the largest legitimate
// bodies; 256 MB leaves ample room while still capping the damage.
const MaxResponseSize int64 = 256 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}
