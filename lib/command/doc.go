// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package command serves an account manager's boundary operations on a
// Unix socket and provides the matching client.
//
// The protocol is one CBOR request and one CBOR response per
// connection. A request is a map with an "action" field plus
// action-specific fields; the response is [Response]. Failed actions
// carry the error message and, for account errors, the error category,
// so a caller can tell a wrong password from an unreachable homeserver
// without parsing text.
//
// Actions:
//
//   - get_login_options {homeserver_url} -> []account.LoginOption
//   - get_username -> [UsernameResult]
//   - login {kind, username, password}
//   - logout
//   - get_rooms -> []session.Room
//   - status -> [StatusResult]
//
// Login attempts are rate limited per server.
package command
