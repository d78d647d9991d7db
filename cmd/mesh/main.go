// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// mesh is the command-line client of the mesh session daemon. It talks
// to mesh-session over its command socket: discovering login options,
// logging in and out, and listing the joined rooms. The media command
// resolves mxc:// references offline.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/mesh/cmd/mesh/cli"
	"github.com/bureau-foundation/mesh/lib/version"
)

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err == nil {
		return
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if coder, ok := err.(interface{ ExitCode() int }); ok {
		os.Exit(coder.ExitCode())
	}
	os.Exit(cli.ExitFailure)
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "--version" {
		version.Fprint(stdout, "mesh")
		return nil
	}
	return rootCommand(stdout, stderr).Execute(args)
}
