// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package account drives the client's authentication lifecycle:
// discovering how a homeserver lets users log in, logging in, indexing
// the joined rooms, and running the sync loop for the logged-in session.
//
// A [Manager] owns one session.State. Discovery installs the homeserver
// connection descriptor; [Manager.Login] runs as a single state
// transaction that either commits username, session handle and room
// index together with a running sync loop, or commits nothing.
// Concurrent logins serialize on the state lock.
//
// A login whose initial sync fails is rolled back: the new session is
// logged out and discarded, and whatever state existed before the call
// (including an earlier login and its loop) is left untouched. If a
// committed session's sync loop later dies (revoked token, persistent
// failures), the manager clears the state back to logged out.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/mesh/lib/clock"
	"github.com/bureau-foundation/mesh/lib/ref"
	"github.com/bureau-foundation/mesh/lib/secret"
	"github.com/bureau-foundation/mesh/lib/session"
	"github.com/bureau-foundation/mesh/lib/syncloop"
	"github.com/bureau-foundation/mesh/messaging"
)

// DefaultRoomLookupConcurrency bounds concurrent m.room.name fetches
// while indexing rooms at login.
const DefaultRoomLookupConcurrency = 8

// DefaultLogoutTimeout bounds each POST /logout, whether requested by
// Logout or sent best-effort for a session being thrown away.
const DefaultLogoutTimeout = 5 * time.Second

// Config configures a Manager.
type Config struct {
	// DeviceDisplayName is sent as the initial device display name at
	// login. Default: messaging.DefaultDeviceDisplayName.
	DeviceDisplayName string

	// HTTPClient is used for every homeserver request. Default:
	// http.DefaultClient.
	HTTPClient *http.Client

	// Sync configures each login's sync loop.
	Sync syncloop.Config

	// RoomLookupConcurrency bounds concurrent room-name lookups.
	// Default: DefaultRoomLookupConcurrency.
	RoomLookupConcurrency int

	// ObserverQueueSize is the capacity of the queue between the sync
	// loop and the observer. Default: syncloop.DefaultQueueSize.
	ObserverQueueSize int

	// LogoutTimeout bounds each logout request. Default:
	// DefaultLogoutTimeout.
	LogoutTimeout time.Duration
}

// Manager owns the session state and the sync loop of the current
// login.
type Manager struct {
	state    session.State
	config   Config
	observer syncloop.Observer
	clock    clock.Clock
	logger   *slog.Logger

	// active is the running login. Read and written only inside
	// state.Transact. A login is detached from active inside a
	// transaction and torn down after it: stopping the loop waits for the
	// observer, and the observer may read the state.
	active *activeLogin
}

type activeLogin struct {
	handle     messaging.Session
	loop       *syncloop.Loop
	dispatcher *syncloop.Dispatcher
}

// NewManager returns a logged-out Manager. Text messages from every
// login's sync loop go to observer, which may be nil.
func NewManager(config Config, observer syncloop.Observer, clk clock.Clock, logger *slog.Logger) *Manager {
	if config.RoomLookupConcurrency <= 0 {
		config.RoomLookupConcurrency = DefaultRoomLookupConcurrency
	}
	if config.LogoutTimeout <= 0 {
		config.LogoutTimeout = DefaultLogoutTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:   config,
		observer: observer,
		clock:    clk,
		logger:   logger,
	}
}

// State exposes the session state for read access.
func (m *Manager) State() *session.State {
	return &m.state
}

// GetLoginOptions discovers the login options of homeserverURL. While
// no login is active, the discovered connection descriptor replaces any
// earlier one, so the next Login targets this homeserver.
func (m *Manager) GetLoginOptions(ctx context.Context, homeserverURL string) ([]LoginOption, error) {
	client, options, err := Discover(ctx, homeserverURL, m.clientConfig())
	if err != nil {
		return nil, err
	}

	m.state.Transact(func(txn *session.Txn) error {
		if txn.Authenticated() {
			m.logger.Info("logged in, keeping current homeserver descriptor",
				"homeserver", txn.HomeserverURL(),
				"discovered", homeserverURL,
			)
			return nil
		}
		txn.InstallDescriptor(homeserverURL, client)
		return nil
	})
	return options, nil
}

// GetUsername returns the logged-in username, if any.
func (m *Manager) GetUsername() (string, bool) {
	return m.state.Username()
}

// Status reports whether a session is logged in.
func (m *Manager) Status() session.Status {
	return m.state.Status()
}

// Rooms lists the joined rooms of the current login, or nil when logged
// out.
func (m *Manager) Rooms() []session.Room {
	index := m.state.Rooms()
	if index == nil {
		return nil
	}
	return index.Rooms()
}

// Login is the boundary form of LoginWith: kind is parsed with
// ParseKind and the password is moved into protected memory for the
// duration of the call.
func (m *Manager) Login(ctx context.Context, kind, username, password string) error {
	var release func()
	err := m.state.Transact(func(txn *session.Txn) error {
		if txn.Client() == nil {
			return InvalidState("no homeserver selected: discover login options first")
		}
		parsed, err := ParseKind(kind)
		if err != nil {
			return err
		}
		if parsed != KindPassword {
			return UnsupportedLoginKind("login kind %q is not supported", kind)
		}

		buffer, err := secret.NewFromString(password)
		if err != nil {
			return Authentication("protecting password: %w", err)
		}
		defer buffer.Close()
		release, err = m.loginLocked(ctx, txn, Password{Username: username, Password: buffer})
		return err
	})
	if release != nil {
		release()
	}
	return err
}

// LoginWith logs in with method against the discovered homeserver.
func (m *Manager) LoginWith(ctx context.Context, method Method) error {
	var release func()
	err := m.state.Transact(func(txn *session.Txn) error {
		if txn.Client() == nil {
			return InvalidState("no homeserver selected: discover login options first")
		}
		var err error
		release, err = m.loginLocked(ctx, txn, method)
		return err
	})
	if release != nil {
		release()
	}
	return err
}

// loginLocked runs inside the login transaction. The returned release
// function, if any, tears down whatever the attempt displaced or
// abandoned and must be called after the transaction ends.
func (m *Manager) loginLocked(ctx context.Context, txn *session.Txn, method Method) (func(), error) {
	var credentials Password
	switch method := method.(type) {
	case Password:
		credentials = method
	case nil:
		return nil, UnsupportedLoginKind("no login method given")
	default:
		return nil, UnsupportedLoginKind("login kind %q is not supported", method.Kind())
	}

	handle, err := txn.Client().Login(ctx, credentials.Username, credentials.Password)
	if err != nil {
		return nil, Authentication("logging in as %q: %w", credentials.Username, err)
	}
	logger := m.logger.With("user_id", handle.UserID())

	rooms, err := m.discoverRooms(ctx, handle)
	if err != nil {
		return func() { m.discard(handle) }, SyncFailure("indexing joined rooms: %w", err)
	}
	index := session.NewRoomIndex(rooms...)

	dispatcher := syncloop.NewDispatcher(index, m.observer, m.config.ObserverQueueSize, logger)
	loop, err := syncloop.Start(ctx, handle, m.config.Sync, dispatcher.Handle, m.clock, logger)
	if err != nil {
		release := func() {
			dispatcher.Close()
			m.discard(handle)
		}
		return release, SyncFailure("starting sync for %q: %w", credentials.Username, err)
	}

	var release func()
	if previous := m.active; previous != nil {
		logger.Info("replacing previous login", "previous_user_id", previous.handle.UserID())
		release = func() { m.retire(previous) }
	}

	txn.InstallUsername(credentials.Username)
	txn.InstallSession(handle)
	txn.InstallRoomIndex(index)

	login := &activeLogin{handle: handle, loop: loop, dispatcher: dispatcher}
	m.active = login
	go m.watch(login)

	logger.Info("login complete", "rooms", index.Len())
	return release, nil
}

// discoverRooms lists the joined rooms and fetches each name. Rooms
// without a readable m.room.name are indexed under "".
func (m *Manager) discoverRooms(ctx context.Context, handle messaging.Session) ([]session.Room, error) {
	joined, err := handle.JoinedRooms(ctx)
	if err != nil {
		return nil, err
	}

	rooms := make([]session.Room, len(joined))
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(m.config.RoomLookupConcurrency)
	for position, roomID := range joined {
		group.Go(func() error {
			rooms[position] = session.Room{ID: roomID, Name: m.roomName(groupContext, handle, roomID)}
			return groupContext.Err()
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (m *Manager) roomName(ctx context.Context, handle messaging.Session, roomID ref.RoomID) string {
	content, err := messaging.GetState[messaging.RoomNameContent](ctx, handle, roomID, messaging.EventTypeRoomName, "")
	if err != nil {
		if !messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
			m.logger.Debug("room name unavailable", "room_id", roomID, "error", err)
		}
		return ""
	}
	return content.Name
}

// watch waits for a login's sync loop to exit. A loop that ended by
// itself takes the login with it.
func (m *Manager) watch(login *activeLogin) {
	<-login.loop.Done()
	cause := login.loop.Err()
	if cause == nil {
		return
	}

	cleared := false
	m.state.Transact(func(txn *session.Txn) error {
		if m.active != login {
			return nil
		}
		txn.Clear()
		m.active = nil
		cleared = true
		return nil
	})
	if !cleared {
		return
	}

	login.dispatcher.Close()
	if errors.Is(cause, syncloop.ErrAuthRevoked) {
		login.handle.Close()
	} else {
		m.discard(login.handle)
	}
	m.logger.Error("sync loop ended, session logged out",
		"user_id", login.handle.UserID(),
		"error", cause,
	)
}

// Logout ends the current login: clears the session state, stops the
// sync loop, and invalidates the access token on the homeserver. The
// homeserver descriptor is kept. Logging out while logged out is a
// no-op.
//
// The state is cleared before the homeserver is contacted, so readers
// see the session logged out even while the request is in flight. The
// request is bounded by Config.LogoutTimeout.
func (m *Manager) Logout(ctx context.Context) error {
	login := m.detach()
	if login == nil {
		return nil
	}
	login.stop()

	logoutContext, cancel := context.WithTimeout(ctx, m.config.LogoutTimeout)
	defer cancel()
	err := login.handle.Logout(logoutContext)
	login.handle.Close()
	if err != nil {
		return fmt.Errorf("invalidating access token: %w", err)
	}
	m.logger.Info("logged out", "user_id", login.handle.UserID())
	return nil
}

// Close stops the current login's sync loop and releases its session
// without logging out on the homeserver.
func (m *Manager) Close() {
	if login := m.detach(); login != nil {
		login.stop()
		login.handle.Close()
	}
}

// detach clears the session state and hands back the login that owned
// it, or nil when logged out. The caller tears the login down.
func (m *Manager) detach() *activeLogin {
	var login *activeLogin
	m.state.Transact(func(txn *session.Txn) error {
		login = m.active
		if login != nil {
			m.active = nil
			txn.Clear()
		}
		return nil
	})
	return login
}

func (l *activeLogin) stop() {
	l.loop.Stop()
	l.dispatcher.Close()
}

// retire tears down a login displaced by a newer one.
func (m *Manager) retire(login *activeLogin) {
	login.stop()
	m.discard(login.handle)
}

// discard logs a session out on a best-effort basis and releases it.
func (m *Manager) discard(handle messaging.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.LogoutTimeout)
	defer cancel()
	if err := handle.Logout(ctx); err != nil {
		m.logger.Warn("discarding session without server logout", "user_id", handle.UserID(), "error", err)
	}
	handle.Close()
}

func (m *Manager) clientConfig() messaging.ClientConfig {
	return messaging.ClientConfig{
		HTTPClient:        m.config.HTTPClient,
		Logger:            m.logger,
		DeviceDisplayName: m.config.DeviceDisplayName,
	}
}
