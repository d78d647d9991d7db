// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/mesh/lib/clock"
	"github.com/bureau-foundation/mesh/lib/ref"
	"github.com/bureau-foundation/mesh/lib/secret"
	"github.com/bureau-foundation/mesh/lib/session"
	"github.com/bureau-foundation/mesh/lib/syncloop"
	"github.com/bureau-foundation/mesh/lib/testutil"
	"github.com/bureau-foundation/mesh/messaging"
)

const testTimeout = 5 * time.Second

// newTestManager returns a manager whose text messages arrive on the
// returned channel. The manager is closed when the test completes.
func newTestManager(t *testing.T, config Config) (*Manager, chan syncloop.TextMessage) {
	t.Helper()
	observed := make(chan syncloop.TextMessage, 16)
	observer := syncloop.ObserverFunc(func(message syncloop.TextMessage) { observed <- message })
	manager := NewManager(config, observer, clock.Real(), discardLogger())
	t.Cleanup(manager.Close)
	return manager, observed
}

func discover(t *testing.T, manager *Manager, homeserver *testutil.Homeserver) {
	t.Helper()
	if _, err := manager.GetLoginOptions(context.Background(), homeserver.URL()); err != nil {
		t.Fatalf("GetLoginOptions: %v", err)
	}
}

func login(t *testing.T, manager *Manager, username, password string) {
	t.Helper()
	if err := manager.Login(context.Background(), string(KindPassword), username, password); err != nil {
		t.Fatalf("Login(%s): %v", username, err)
	}
}

// waitForStatus polls until the manager reports want.
func waitForStatus(t *testing.T, manager *Manager, want session.Status) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for manager.Status() != want {
		if time.Now().After(deadline) {
			t.Fatalf("status still %q after %s, want %q", manager.Status(), testTimeout, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLoginBeforeDiscovery(t *testing.T) {
	manager, _ := newTestManager(t, Config{})

	err := manager.Login(context.Background(), "Password", "alice", "hunter2")
	if !IsCategory(err, CategoryInvalidState) {
		t.Fatalf("error = %v, want invalid state", err)
	}
	if manager.State().Snapshot() != (session.Snapshot{Status: session.StatusLoggedOut}) {
		t.Errorf("state touched: %+v", manager.State().Snapshot())
	}
}

func TestLoginUnsupportedKindLeavesStateEqual(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	homeserver.AddUser("alice", "hunter2")
	homeserver.AddRoom("!general:mesh.test", "General")
	manager, _ := newTestManager(t, Config{})
	discover(t, manager, homeserver)

	for _, loggedIn := range []bool{false, true} {
		if loggedIn {
			login(t, manager, "alice", "hunter2")
		}
		before := manager.State().Snapshot()
		logins := homeserver.Count(testutil.EndpointLogin)

		for _, kind := range []string{"SSO", "Token", "password", ""} {
			err := manager.Login(context.Background(), kind, "bob", "secret")
			if !IsCategory(err, CategoryUnsupportedLoginKind) {
				t.Errorf("Login(kind=%q) error = %v, want unsupported login kind", kind, err)
			}
		}
		if err := manager.LoginWith(context.Background(), SSO{Provider: "GitHub"}); !IsCategory(err, CategoryUnsupportedLoginKind) {
			t.Errorf("LoginWith(SSO) error = %v", err)
		}
		if err := manager.LoginWith(context.Background(), nil); !IsCategory(err, CategoryUnsupportedLoginKind) {
			t.Errorf("LoginWith(nil) error = %v", err)
		}

		if after := manager.State().Snapshot(); after != before {
			t.Errorf("state changed: before %+v, after %+v", before, after)
		}
		if homeserver.Count(testutil.EndpointLogin) != logins {
			t.Error("unsupported kind reached the homeserver")
		}
	}
}

func TestLoginWrongPassword(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	homeserver.AddUser("alice", "hunter2")
	manager, _ := newTestManager(t, Config{})
	discover(t, manager, homeserver)
	before := manager.State().Snapshot()

	err := manager.Login(context.Background(), "Password", "alice", "wrong")
	if !IsCategory(err, CategoryAuthentication) {
		t.Fatalf("error = %v, want authentication error", err)
	}
	if !messaging.IsMatrixError(err, messaging.ErrCodeForbidden) {
		t.Errorf("M_FORBIDDEN not in chain: %v", err)
	}
	if after := manager.State().Snapshot(); after != before {
		t.Errorf("state changed: before %+v, after %+v", before, after)
	}
	if _, ok := manager.GetUsername(); ok {
		t.Error("username set after failed login")
	}
	if homeserver.Count(testutil.EndpointSync) != 0 {
		t.Error("sync started after failed login")
	}
}

func TestLoginIndexesRoomsAndDelivers(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	homeserver.AddUser("alice", "hunter2")
	homeserver.AddRoom("!general:mesh.test", "General")
	homeserver.AddRoom("!random:mesh.test", "Random")
	homeserver.AddRoom("!other-general:mesh.test", "General")
	homeserver.AddRoom("!dm:mesh.test", "")
	manager, observed := newTestManager(t, Config{})
	discover(t, manager, homeserver)

	login(t, manager, "alice", "hunter2")

	if username, ok := manager.GetUsername(); !ok || username != "alice" {
		t.Errorf("GetUsername = %q, %v", username, ok)
	}
	if manager.Status() != session.StatusLoggedIn {
		t.Errorf("Status = %q", manager.Status())
	}
	if got := manager.State().Session().UserID().String(); got != testutil.UserID("alice") {
		t.Errorf("session user = %s", got)
	}

	want := []session.Room{
		{ID: ref.MustParseRoomID("!dm:mesh.test"), Name: ""},
		{ID: ref.MustParseRoomID("!general:mesh.test"), Name: "General"},
		{ID: ref.MustParseRoomID("!other-general:mesh.test"), Name: "General"},
		{ID: ref.MustParseRoomID("!random:mesh.test"), Name: "Random"},
	}
	rooms := manager.Rooms()
	if len(rooms) != len(want) {
		t.Fatalf("Rooms = %+v, want %+v", rooms, want)
	}
	for i := range want {
		if rooms[i] != want[i] {
			t.Errorf("Rooms[%d] = %+v, want %+v", i, rooms[i], want[i])
		}
	}
	if named := manager.State().Rooms().ByName("General"); len(named) != 2 {
		t.Errorf("ByName(General) = %+v, want both rooms", named)
	}

	homeserver.QueueSync(testutil.SyncBatch{
		Join: map[string][]any{"!random:mesh.test": {testutil.TextEvent("$m1", "@bob:mesh.test", "hi alice", 1700000000000)}},
	})
	message := testutil.RequireReceive(t, observed, testTimeout, "text message")
	if message.Body != "hi alice" || message.RoomID.String() != "!random:mesh.test" {
		t.Errorf("message = %+v", message)
	}
}

func TestLoginWithoutRooms(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	homeserver.AddUser("alice", "hunter2")
	manager, _ := newTestManager(t, Config{})
	discover(t, manager, homeserver)

	login(t, manager, "alice", "hunter2")

	index := manager.State().Rooms()
	if index == nil {
		t.Fatal("room index not installed")
	}
	if index.Len() != 0 {
		t.Errorf("room index has %d rooms, want none", index.Len())
	}
}

func TestLoginWithPasswordMethod(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	homeserver.AddUser("alice", "hunter2")
	manager, _ := newTestManager(t, Config{})
	discover(t, manager, homeserver)

	password, err := secret.NewFromString("hunter2")
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	defer password.Close()

	if err := manager.LoginWith(context.Background(), Password{Username: "alice", Password: password}); err != nil {
		t.Fatalf("LoginWith: %v", err)
	}
	if password.String() != "hunter2" {
		t.Error("manager closed or modified the caller's password buffer")
	}
}

func TestLoginDeviceDisplayName(t *testing.T) {
	tests := []struct {
		configured string
		want       string
	}{
		{"", messaging.DefaultDeviceDisplayName},
		{"mesh on laptop", "mesh on laptop"},
	}
	for _, test := range tests {
		t.Run(test.want, func(t *testing.T) {
			homeserver := testutil.NewHomeserver(t)
			homeserver.AddUser("alice", "hunter2")
			manager, _ := newTestManager(t, Config{DeviceDisplayName: test.configured})
			discover(t, manager, homeserver)

			login(t, manager, "alice", "hunter2")
			if got := homeserver.LastDeviceDisplayName(); got != test.want {
				t.Errorf("device display name = %q, want %q", got, test.want)
			}
		})
	}
}

func TestInitialSyncFailureRollsBack(t *testing.T) {
	t.Run("from logged out", func(t *testing.T) {
		homeserver := testutil.NewHomeserver(t)
		homeserver.AddUser("alice", "hunter2")
		homeserver.AddRoom("!general:mesh.test", "General")
		manager, _ := newTestManager(t, Config{})
		discover(t, manager, homeserver)
		before := manager.State().Snapshot()

		homeserver.Fail(testutil.EndpointSync, http.StatusInternalServerError, messaging.ErrCodeUnknown, 1)
		err := manager.Login(context.Background(), "Password", "alice", "hunter2")
		if !IsCategory(err, CategorySync) {
			t.Fatalf("error = %v, want sync error", err)
		}
		if after := manager.State().Snapshot(); after != before {
			t.Errorf("state changed: before %+v, after %+v", before, after)
		}
		if homeserver.ActiveTokens() != 0 {
			t.Errorf("%d access tokens left valid, want the failed session logged out", homeserver.ActiveTokens())
		}
	})

	t.Run("previous login survives", func(t *testing.T) {
		homeserver := testutil.NewHomeserver(t)
		homeserver.AddUser("alice", "hunter2")
		homeserver.AddUser("bob", "swordfish")
		homeserver.AddRoom("!general:mesh.test", "General")
		manager, observed := newTestManager(t, Config{})
		discover(t, manager, homeserver)
		login(t, manager, "alice", "hunter2")
		before := manager.State().Snapshot()

		// Alice's loop is parked in a long-poll, so the injected fault
		// hits bob's initial sync.
		homeserver.Fail(testutil.EndpointSync, http.StatusInternalServerError, messaging.ErrCodeUnknown, 1)
		err := manager.Login(context.Background(), "Password", "bob", "swordfish")
		if !IsCategory(err, CategorySync) {
			t.Fatalf("error = %v, want sync error", err)
		}
		if after := manager.State().Snapshot(); after != before {
			t.Errorf("state changed: before %+v, after %+v", before, after)
		}
		if homeserver.ActiveTokens() != 1 {
			t.Errorf("ActiveTokens = %d, want only alice's", homeserver.ActiveTokens())
		}

		homeserver.QueueSync(testutil.SyncBatch{
			Join: map[string][]any{"!general:mesh.test": {testutil.TextEvent("$m1", "@carol:mesh.test", "still here", 1)}},
		})
		message := testutil.RequireReceive(t, observed, testTimeout, "message on surviving loop")
		if message.Body != "still here" {
			t.Errorf("message = %+v", message)
		}
	})
}

func TestRoomListingFailure(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	homeserver.AddUser("alice", "hunter2")
	manager, _ := newTestManager(t, Config{})
	discover(t, manager, homeserver)

	homeserver.Fail(testutil.EndpointJoinedRooms, http.StatusInternalServerError, messaging.ErrCodeUnknown, 1)
	err := manager.Login(context.Background(), "Password", "alice", "hunter2")
	if !IsCategory(err, CategorySync) {
		t.Fatalf("error = %v, want sync error", err)
	}
	if manager.Status() != session.StatusLoggedOut {
		t.Errorf("Status = %q", manager.Status())
	}
	if homeserver.Count(testutil.EndpointSync) != 0 {
		t.Error("sync started without a room index")
	}
}

func TestRoomNameLookupFailureIndexesUnnamed(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	homeserver.AddUser("alice", "hunter2")
	homeserver.AddRoom("!general:mesh.test", "General")
	manager, _ := newTestManager(t, Config{})
	discover(t, manager, homeserver)

	homeserver.Fail(testutil.EndpointRoomState, http.StatusInternalServerError, messaging.ErrCodeUnknown, 1)
	login(t, manager, "alice", "hunter2")

	// The initial sync carries the m.room.name state and renames the room.
	room, found := manager.State().Rooms().Get(ref.MustParseRoomID("!general:mesh.test"))
	if !found {
		t.Fatal("room not indexed")
	}
	if room.Name != "General" {
		t.Errorf("room name = %q, want the initial sync to supply it", room.Name)
	}
}

func TestReloginReplacesPreviousLoop(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	homeserver.AddUser("alice", "hunter2")
	homeserver.AddUser("bob", "swordfish")
	homeserver.AddRoom("!general:mesh.test", "General")
	manager, observed := newTestManager(t, Config{})
	discover(t, manager, homeserver)

	login(t, manager, "alice", "hunter2")
	login(t, manager, "bob", "swordfish")

	if username, _ := manager.GetUsername(); username != "bob" {
		t.Errorf("GetUsername = %q, want bob", username)
	}
	if homeserver.ActiveTokens() != 1 {
		t.Errorf("ActiveTokens = %d, want alice's token invalidated", homeserver.ActiveTokens())
	}

	homeserver.QueueSync(testutil.SyncBatch{
		Join: map[string][]any{"!general:mesh.test": {testutil.TextEvent("$m1", "@carol:mesh.test", "once", 1)}},
	})
	testutil.RequireReceive(t, observed, testTimeout, "message for bob")
	testutil.RequireNoReceive(t, observed, 100*time.Millisecond, "duplicate delivery from a stale loop")
}

func TestConcurrentLoginsNeverMix(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	users := map[string]string{"alice": "hunter2", "bob": "swordfish", "carol": "correct horse"}
	for username, password := range users {
		homeserver.AddUser(username, password)
	}
	homeserver.AddRoom("!general:mesh.test", "General")
	homeserver.SetLoginDelay(20 * time.Millisecond)
	manager, _ := newTestManager(t, Config{})
	discover(t, manager, homeserver)

	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snapshot := manager.State().Snapshot()
			loggedIn := snapshot.Status == session.StatusLoggedIn
			if loggedIn != (snapshot.Username != "") {
				t.Errorf("mixed snapshot: %+v", snapshot)
				return
			}
			if !loggedIn && snapshot.RoomCount != 0 {
				t.Errorf("room index without session: %+v", snapshot)
				return
			}
		}
	}()

	var logins sync.WaitGroup
	for username, password := range users {
		logins.Add(1)
		go func() {
			defer logins.Done()
			if err := manager.Login(context.Background(), "Password", username, password); err != nil {
				t.Errorf("Login(%s): %v", username, err)
			}
		}()
	}
	logins.Wait()
	close(stop)
	readers.Wait()

	username, ok := manager.GetUsername()
	if !ok {
		t.Fatal("no username after concurrent logins")
	}
	if got := manager.State().Session().UserID().String(); got != testutil.UserID(username) {
		t.Errorf("username %q paired with session of %s", username, got)
	}
	if homeserver.ActiveTokens() != 1 {
		t.Errorf("ActiveTokens = %d, want only the last login's", homeserver.ActiveTokens())
	}
}

func TestRevokedTokenLogsOut(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	homeserver.AddUser("alice", "hunter2")
	homeserver.AddRoom("!general:mesh.test", "General")
	manager, _ := newTestManager(t, Config{})
	discover(t, manager, homeserver)
	login(t, manager, "alice", "hunter2")

	homeserver.RevokeTokens()
	homeserver.QueueSync(testutil.SyncBatch{})

	waitForStatus(t, manager, session.StatusLoggedOut)
	if _, ok := manager.GetUsername(); ok {
		t.Error("username kept after revocation")
	}
	if manager.Rooms() != nil {
		t.Error("rooms kept after revocation")
	}
	if got := manager.State().Snapshot().HomeserverURL; got != homeserver.URL() {
		t.Errorf("homeserver descriptor lost: %q", got)
	}

	// The kept descriptor allows logging in again without rediscovery.
	login(t, manager, "alice", "hunter2")
	if manager.Status() != session.StatusLoggedIn {
		t.Errorf("Status = %q after re-login", manager.Status())
	}
}

func TestLogout(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	homeserver.AddUser("alice", "hunter2")
	homeserver.AddRoom("!general:mesh.test", "General")
	manager, observed := newTestManager(t, Config{})
	discover(t, manager, homeserver)
	login(t, manager, "alice", "hunter2")

	if err := manager.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if manager.Status() != session.StatusLoggedOut {
		t.Errorf("Status = %q", manager.Status())
	}
	if homeserver.ActiveTokens() != 0 {
		t.Errorf("ActiveTokens = %d after logout", homeserver.ActiveTokens())
	}
	if manager.Rooms() != nil {
		t.Error("rooms kept after logout")
	}

	homeserver.QueueSync(testutil.SyncBatch{
		Join: map[string][]any{"!general:mesh.test": {testutil.TextEvent("$m1", "@bob:mesh.test", "anyone?", 1)}},
	})
	testutil.RequireNoReceive(t, observed, 100*time.Millisecond, "delivery after logout")

	if err := manager.Logout(context.Background()); err != nil {
		t.Errorf("second Logout: %v", err)
	}
}

func TestGetLoginOptionsWhileLoggedIn(t *testing.T) {
	first := testutil.NewHomeserver(t)
	first.AddUser("alice", "hunter2")
	second := testutil.NewHomeserver(t)
	second.SetLoginFlowsJSON(`{"flows":[{"type":"m.login.sso","identity_providers":[{"id":"gh","name":"GitHub"}]}]}`)
	manager, _ := newTestManager(t, Config{})
	discover(t, manager, first)
	login(t, manager, "alice", "hunter2")

	options, err := manager.GetLoginOptions(context.Background(), second.URL())
	if err != nil {
		t.Fatalf("GetLoginOptions: %v", err)
	}
	if len(options) != 1 || options[0].Provider != "GitHub" {
		t.Errorf("options = %+v", options)
	}
	if got := manager.State().Snapshot().HomeserverURL; got != first.URL() {
		t.Errorf("descriptor replaced while logged in: %q", got)
	}
}

func TestGetLoginOptionsFailureKeepsDescriptor(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	manager, _ := newTestManager(t, Config{})
	discover(t, manager, homeserver)

	if _, err := manager.GetLoginOptions(context.Background(), "not a url"); !IsCategory(err, CategoryConfiguration) {
		t.Fatalf("error = %v, want configuration error", err)
	}
	if got := manager.State().Snapshot().HomeserverURL; got != homeserver.URL() {
		t.Errorf("descriptor = %q after failed discovery", got)
	}
}

// gatedObserver holds each message until the gate opens, then reads the
// manager's username the way a UI refreshing its header would.
type gatedObserver struct {
	manager   *Manager
	entered   chan struct{}
	gate      chan struct{}
	openOnce  sync.Once
	usernames chan string
}

func newGatedObserver() *gatedObserver {
	return &gatedObserver{
		entered:   make(chan struct{}, 4),
		gate:      make(chan struct{}),
		usernames: make(chan string, 4),
	}
}

func (o *gatedObserver) open() { o.openOnce.Do(func() { close(o.gate) }) }

func (o *gatedObserver) OnTextMessage(syncloop.TextMessage) {
	o.entered <- struct{}{}
	<-o.gate
	username, _ := o.manager.GetUsername()
	o.usernames <- username
}

// startGatedLogin logs alice in with one message in the initial sync and
// returns once the observer holds that message.
func startGatedLogin(t *testing.T, homeserver *testutil.Homeserver) (*Manager, *gatedObserver) {
	t.Helper()
	homeserver.AddUser("alice", "hunter2")
	homeserver.AddRoom("!general:mesh.test", "General")
	homeserver.SetInitialSync(testutil.SyncBatch{
		Join: map[string][]any{"!general:mesh.test": {testutil.TextEvent("$hello", "@bob:mesh.test", "hello", 1)}},
	})

	observer := newGatedObserver()
	manager := NewManager(Config{}, observer, clock.Real(), discardLogger())
	observer.manager = manager
	// A test that fails before opening the gate must not hang Close.
	t.Cleanup(func() {
		observer.open()
		manager.Close()
	})

	discover(t, manager, homeserver)
	login(t, manager, "alice", "hunter2")
	testutil.RequireReceive(t, observer.entered, testTimeout, "observer never received the initial message")
	return manager, observer
}

func TestObserverReadingStateDuringLogout(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	manager, observer := startGatedLogin(t, homeserver)

	result := make(chan error, 1)
	go func() { result <- manager.Logout(context.Background()) }()

	// Logout waits for the observer to drain, but the state is already
	// cleared and readable.
	waitForStatus(t, manager, session.StatusLoggedOut)
	if username, ok := manager.GetUsername(); ok {
		t.Errorf("GetUsername = %q during logout, want none", username)
	}

	observer.open()
	if username := testutil.RequireReceive(t, observer.usernames, testTimeout, "observer blocked reading state"); username != "" {
		t.Errorf("observer read username %q, want none", username)
	}
	if err := testutil.RequireReceive(t, result, testTimeout, "Logout did not return"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if homeserver.ActiveTokens() != 0 {
		t.Errorf("ActiveTokens = %d after logout", homeserver.ActiveTokens())
	}
}

func TestObserverReadingStateDuringRelogin(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	manager, observer := startGatedLogin(t, homeserver)
	homeserver.AddUser("carol", "correct horse")
	homeserver.SetInitialSync(testutil.SyncBatch{})

	result := make(chan error, 1)
	go func() {
		result <- manager.Login(context.Background(), string(KindPassword), "carol", "correct horse")
	}()

	deadline := time.Now().Add(testTimeout)
	for {
		if username, _ := manager.GetUsername(); username == "carol" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("carol's login never committed while alice's observer was busy")
		}
		time.Sleep(10 * time.Millisecond)
	}

	observer.open()
	if username := testutil.RequireReceive(t, observer.usernames, testTimeout, "observer blocked reading state"); username != "carol" {
		t.Errorf("observer read username %q, want carol", username)
	}
	if err := testutil.RequireReceive(t, result, testTimeout, "Login did not return"); err != nil {
		t.Fatalf("Login(carol): %v", err)
	}
	if homeserver.ActiveTokens() != 1 {
		t.Errorf("ActiveTokens = %d, want alice's token invalidated", homeserver.ActiveTokens())
	}
}

func TestLogoutStalledHomeserver(t *testing.T) {
	homeserver := testutil.NewHomeserver(t)
	homeserver.AddUser("alice", "hunter2")
	homeserver.AddRoom("!general:mesh.test", "General")
	manager, _ := newTestManager(t, Config{LogoutTimeout: 200 * time.Millisecond})
	discover(t, manager, homeserver)
	login(t, manager, "alice", "hunter2")
	homeserver.Stall(testutil.EndpointLogout)

	result := make(chan error, 1)
	go func() { result <- manager.Logout(context.Background()) }()

	waitForStatus(t, manager, session.StatusLoggedOut)
	if username, ok := manager.GetUsername(); ok {
		t.Errorf("GetUsername = %q while logout is stalled, want none", username)
	}

	err := testutil.RequireReceive(t, result, testTimeout, "Logout hung on a stalled homeserver")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Logout error = %v, want deadline exceeded", err)
	}
	if homeserver.Count(testutil.EndpointLogout) != 1 {
		t.Errorf("logout requests = %d, want 1", homeserver.Count(testutil.EndpointLogout))
	}
}
