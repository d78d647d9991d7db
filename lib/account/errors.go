// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"errors"
	"fmt"
)

// Category classifies account errors so boundary callers (the command
// socket, the CLI) can decide how to react without parsing messages.
type Category string

const (
	// CategoryConfiguration: the homeserver URL is malformed. The user
	// must correct the input.
	CategoryConfiguration Category = "configuration"

	// CategoryConnectivity: the homeserver could not be reached.
	// Retrying later may help.
	CategoryConnectivity Category = "connectivity"

	// CategoryProtocol: the homeserver answered, but not with usable
	// login flows.
	CategoryProtocol Category = "protocol"

	// CategoryAuthentication: the credential exchange failed. Never
	// retried automatically.
	CategoryAuthentication Category = "authentication"

	// CategoryUnsupportedLoginKind: the requested login kind is not
	// implemented.
	CategoryUnsupportedLoginKind Category = "unsupported_login_kind"

	// CategoryInvalidState: the operation was called out of order, such
	// as login before discovery.
	CategoryInvalidState Category = "invalid_state"

	// CategorySync: credentials were accepted but the session could not
	// start syncing. Nothing was committed.
	CategorySync Category = "sync"
)

// Error is a categorized account error. It wraps the underlying error
// so errors.As still finds *messaging.MatrixError in the chain.
type Error struct {
	Category Category
	Err      error
}

// Error returns the underlying message. The category travels
// separately.
func (e *Error) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

func newError(category Category, format string, args ...any) *Error {
	return &Error{Category: category, Err: fmt.Errorf(format, args...)}
}

// Configuration creates a configuration error.
func Configuration(format string, args ...any) *Error {
	return newError(CategoryConfiguration, format, args...)
}

// Connectivity creates a connectivity error.
func Connectivity(format string, args ...any) *Error {
	return newError(CategoryConnectivity, format, args...)
}

// Protocol creates a protocol error.
func Protocol(format string, args ...any) *Error {
	return newError(CategoryProtocol, format, args...)
}

// Authentication creates an authentication error.
func Authentication(format string, args ...any) *Error {
	return newError(CategoryAuthentication, format, args...)
}

// UnsupportedLoginKind creates an unsupported-login-kind error.
func UnsupportedLoginKind(format string, args ...any) *Error {
	return newError(CategoryUnsupportedLoginKind, format, args...)
}

// InvalidState creates an invalid-state error.
func InvalidState(format string, args ...any) *Error {
	return newError(CategoryInvalidState, format, args...)
}

// SyncFailure creates a sync error.
func SyncFailure(format string, args ...any) *Error {
	return newError(CategorySync, format, args...)
}

// CategoryOf returns the category of the first *Error in err's chain,
// or "" if there is none.
func CategoryOf(err error) Category {
	var accountErr *Error
	if errors.As(err, &accountErr) {
		return accountErr.Category
	}
	return ""
}

// IsCategory reports whether err's chain holds an *Error of category.
func IsCategory(err error, category Category) bool {
	return err != nil && CategoryOf(err) == category
}
