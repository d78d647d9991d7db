// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import "github.com/bureau-foundation/mesh/lib/secret"

// Kind is the boundary name of a login method.
type Kind string

const (
	KindPassword Kind = "Password"
	KindSSO      Kind = "SSO"
)

// ParseKind maps a boundary kind string to a Kind. Unknown kinds fail
// with an unsupported-login-kind error naming the kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindPassword:
		return KindPassword, nil
	case KindSSO:
		return KindSSO, nil
	}
	return "", UnsupportedLoginKind("login kind %q is not supported", raw)
}

// Method is a login method. The set is closed: only this package's
// Password and SSO implement it.
type Method interface {
	Kind() Kind
	method()
}

// Password logs in with a username and password. The manager reads the
// buffer but does not close it.
type Password struct {
	Username string
	Password *secret.Buffer
}

// Kind returns KindPassword.
func (Password) Kind() Kind { return KindPassword }

func (Password) method() {}

// SSO names an identity provider. Advertised by discovery; logging in
// with it is not implemented.
type SSO struct {
	Provider string
}

// Kind returns KindSSO.
func (SSO) Kind() Kind { return KindSSO }

func (SSO) method() {}
