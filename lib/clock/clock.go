// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the time operations used by retry and backoff
// code so tests can drive them deterministically. Production code passes
// Real(); tests pass Fake() and call Advance.
package clock

import "time"

// Clock is the subset of the time package that backoff loops use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time
}
