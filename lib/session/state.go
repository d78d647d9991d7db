// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds the client's session state: the connection
// descriptor installed by login-option discovery, and the username,
// authenticated handle and joined-room index installed by login.
//
// All fields sit behind one mutex. Multi-field updates go through
// [State.Transact], which holds the lock for the whole update and
// restores every field if the update fails, so readers see either the
// complete old state or the complete new one.
package session

import (
	"errors"
	"sync"

	"github.com/bureau-foundation/mesh/messaging"
)

// Status is the externally visible login state.
type Status string

const (
	StatusLoggedOut Status = "logged_out"
	StatusLoggedIn  Status = "logged_in"
)

// ErrRoomsWithoutSession is returned by Transact when an update would
// leave a room index installed with no authenticated handle.
var ErrRoomsWithoutSession = errors.New("session: room index installed without an authenticated session")

type fields struct {
	homeserverURL string
	client        *messaging.Client
	username      string
	handle        messaging.Session
	rooms         *RoomIndex
}

// State is the mutex-guarded session state. The zero value is ready to
// use and logged out.
type State struct {
	mu sync.Mutex
	fields
}

// Snapshot is a consistent copy of the state's scalar fields.
type Snapshot struct {
	HomeserverURL string
	Username      string
	Status        Status
	RoomCount     int
}

// Transact runs fn with the state locked. If fn returns an error, or
// leaves the state violating its invariants, every field is restored to
// its value before the call and the error is returned.
func (s *State) Transact(fn func(*Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.fields
	txn := &Txn{state: s}
	err := fn(txn)
	txn.state = nil
	if err == nil && s.rooms != nil && s.handle == nil {
		err = ErrRoomsWithoutSession
	}
	if err != nil {
		s.fields = saved
		return err
	}
	return nil
}

// Username returns the logged-in username, if any.
func (s *State) Username() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.username != ""
}

// Session returns the authenticated handle, or nil when logged out.
func (s *State) Session() messaging.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Client returns the connection descriptor, or nil before discovery.
func (s *State) Client() *messaging.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Rooms returns the joined-room index, or nil when logged out.
func (s *State) Rooms() *RoomIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms
}

// Status reports whether an authenticated handle is installed.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Snapshot returns a consistent view of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := Snapshot{
		HomeserverURL: s.homeserverURL,
		Username:      s.username,
		Status:        s.statusLocked(),
	}
	if s.rooms != nil {
		snapshot.RoomCount = s.rooms.Len()
	}
	return snapshot
}

func (s *State) statusLocked() Status {
	if s.handle != nil {
		return StatusLoggedIn
	}
	return StatusLoggedOut
}

// Txn is the view of State inside Transact. It must not be retained
// after the transaction function returns.
type Txn struct {
	state *State
}

// HomeserverURL returns the installed homeserver URL.
func (t *Txn) HomeserverURL() string { return t.state.homeserverURL }

// Client returns the installed connection descriptor.
func (t *Txn) Client() *messaging.Client { return t.state.client }

// Username returns the installed username.
func (t *Txn) Username() (string, bool) { return t.state.username, t.state.username != "" }

// Session returns the installed authenticated handle.
func (t *Txn) Session() messaging.Session { return t.state.handle }

// Rooms returns the installed room index.
func (t *Txn) Rooms() *RoomIndex { return t.state.rooms }

// Authenticated reports whether a handle is installed.
func (t *Txn) Authenticated() bool { return t.state.handle != nil }

// InstallDescriptor records the homeserver URL and its unauthenticated
// client.
func (t *Txn) InstallDescriptor(homeserverURL string, client *messaging.Client) {
	t.state.homeserverURL = homeserverURL
	t.state.client = client
}

// InstallSession replaces the authenticated handle.
func (t *Txn) InstallSession(handle messaging.Session) { t.state.handle = handle }

// InstallRoomIndex replaces the joined-room index.
func (t *Txn) InstallRoomIndex(rooms *RoomIndex) { t.state.rooms = rooms }

// InstallUsername replaces the username.
func (t *Txn) InstallUsername(username string) { t.state.username = username }

// Clear drops the username, handle and room index, leaving the
// connection descriptor in place. It does not close the handle.
func (t *Txn) Clear() {
	t.state.username = ""
	t.state.handle = nil
	t.state.rooms = nil
}
