// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable value types for the Matrix
// identifiers the session core passes around: room IDs, user IDs,
// event IDs, and mxc:// content URIs.
//
// Identifiers arrive from the homeserver as strings and are parsed into
// these types at the boundary, so code past the boundary never handles
// an unchecked identifier. The zero value of each type means "unset";
// use IsZero to check.
//
// Every type implements encoding.TextMarshaler and TextUnmarshaler, so
// it serializes as its canonical string form in JSON and CBOR and can
// be used as a map key.
package ref
