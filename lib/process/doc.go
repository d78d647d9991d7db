// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the mesh binaries: the
// one place where an error is written to stderr before (or instead of)
// the structured logger.
package process
