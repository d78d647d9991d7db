// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the slice of the Matrix client-server API that
// the mesh session core needs.
//
// [Client] is the unauthenticated connection descriptor: it holds the
// homeserver base URL and HTTP transport, probes the server
// ([Client.ServerVersions]), lists the advertised login flows
// ([Client.LoginFlows]), and exchanges a password for an access token
// ([Client.Login]). A successful login returns a [DirectSession], the
// authenticated handle used for /sync, joined-room listing, room state
// reads and logout. The access token lives in a secret.Buffer; callers
// must Close the session to release it.
//
// All API errors are returned as [*MatrixError] carrying the Matrix
// error code and HTTP status. [IsMatrixError] tests for a specific code.
// Request URLs are built by string concatenation rather than url.URL so
// escaped path segments are never re-encoded.
//
// Sync responses keep individual events as raw JSON. [DecodeEvents]
// decodes them one at a time so a single malformed event cannot poison
// a whole response.
package messaging
