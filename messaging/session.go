// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"

	"github.com/bureau-foundation/mesh/lib/ref"
)

// Session is the authenticated handle the session core holds after a
// login. *DirectSession is the production implementation; tests that
// need to inject failures can substitute their own.
type Session interface {
	// UserID returns the fully-qualified Matrix user ID.
	UserID() ref.UserID

	// Close releases any resources held by the session. Idempotent.
	Close() error

	// WhoAmI validates the session and returns the user ID.
	WhoAmI(ctx context.Context) (ref.UserID, error)

	// GetStateEvent fetches a specific state event's content from a room.
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType, stateKey string) (json.RawMessage, error)

	// JoinedRooms returns the list of room IDs the user has joined.
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)

	// Sync performs a /sync request.
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)

	// Logout invalidates the access token on the homeserver.
	Logout(ctx context.Context) error
}

var _ Session = (*DirectSession)(nil)
