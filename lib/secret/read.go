// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// maxSecretSize bounds how much ReadFrom will read. Passwords and
// tokens are far smaller; the bound only stops a misdirected path (a
// device or a huge file) from being slurped into locked memory.
const maxSecretSize = 64 << 10

// ReadFrom reads a secret from reader, trims surrounding whitespace, and
// returns it in a protected buffer. Intermediate heap copies are zeroed.
func ReadFrom(reader io.Reader) (*Buffer, error) {
	data, err := io.ReadAll(io.LimitReader(reader, maxSecretSize))
	if err != nil {
		Zero(data)
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	defer Zero(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret is empty")
	}
	return NewFromBytes(trimmed)
}

// ReadFromPath reads a secret from a file, or from stdin when path is "-".
func ReadFromPath(path string) (*Buffer, error) {
	if path == "-" {
		return ReadFrom(os.Stdin)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFrom(file)
}
