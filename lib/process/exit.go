// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Fatal reports err for program on stderr and exits with status 1. Use
// it in main() for errors from run(), where the logger may not exist.
func Fatal(program string, err error) {
	Report(os.Stderr, program, err)
	os.Exit(1)
}

// Report writes "program: error: err" to w.
func Report(w io.Writer, program string, err error) {
	fmt.Fprintf(w, "%s: error: %v\n", program, err)
}
