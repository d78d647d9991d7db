// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bureau-foundation/mesh/lib/ref"
)

// newTestSession creates a Client and DirectSession pointing at a test server.
func newTestSession(t *testing.T, handler http.Handler) (*Client, *DirectSession) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@test:local"), "test-token")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return client, session
}

func TestWhoAmI(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/account/whoami" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writer.Write([]byte(`{"user_id":"@test:local","device_id":"DEV1"}`))
	}))

	userID, err := session.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if userID.String() != "@test:local" {
		t.Errorf("unexpected user ID: %s", userID)
	}
}

func TestGetStateEvent(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assertAuth(t, request, "test-token")
			want := "/_matrix/client/v3/rooms/!room1:local/state/m.room.name/"
			if request.URL.Path != want {
				t.Errorf("path = %s, want %s", request.URL.Path, want)
			}
			writer.Write([]byte(`{"name":"General"}`))
		}))

		content, err := GetState[RoomNameContent](context.Background(), session,
			ref.MustParseRoomID("!room1:local"), EventTypeRoomName, "")
		if err != nil {
			t.Fatalf("GetState failed: %v", err)
		}
		if content.Name != "General" {
			t.Errorf("Name = %q, want %q", content.Name, "General")
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusNotFound)
			writer.Write([]byte(`{"errcode":"M_NOT_FOUND","error":"Event not found."}`))
		}))

		_, err := session.GetStateEvent(context.Background(), ref.MustParseRoomID("!room1:local"), EventTypeRoomName, "")
		if !IsMatrixError(err, ErrCodeNotFound) {
			t.Errorf("expected M_NOT_FOUND, got %v", err)
		}
	})
}

func TestJoinedRooms(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/joined_rooms" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writer.Write([]byte(`{"joined_rooms":["!a:local","!b:local"]}`))
	}))

	rooms, err := session.JoinedRooms(context.Background())
	if err != nil {
		t.Fatalf("JoinedRooms failed: %v", err)
	}
	if len(rooms) != 2 || rooms[0].String() != "!a:local" || rooms[1].String() != "!b:local" {
		t.Errorf("unexpected rooms: %v", rooms)
	}
}

func TestSync(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/sync" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}

		query := request.URL.Query()
		if query.Get("since") != "s123" {
			t.Errorf("unexpected since token: %s", query.Get("since"))
		}
		if query.Get("timeout") != "0" {
			t.Errorf("unexpected timeout: %s", query.Get("timeout"))
		}
		if query.Get("filter") == "" {
			t.Error("filter parameter missing")
		}

		writer.Write([]byte(`{
			"next_batch": "s456",
			"rooms": {
				"join": {
					"!room1:local": {
						"timeline": {"events": [
							{"event_id":"$evt1","type":"m.room.message","sender":"@alice:local","origin_server_ts":1700000000000,"content":{"msgtype":"m.text","body":"hi"}},
							{"event_id":"not-an-event-id","type":"m.room.message"}
						]}
					}
				},
				"invite": {"!room2:local": {"invite_state": {"events": []}}}
			}
		}`))
	}))

	response, err := session.Sync(context.Background(), SyncOptions{
		Since:      "s123",
		Timeout:    0,
		SetTimeout: true,
		Filter:     SyncFilter{TimelineTypes: []string{EventTypeMessage}}.Inline(),
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if response.NextBatch != "s456" {
		t.Errorf("unexpected next_batch: %s", response.NextBatch)
	}
	room, ok := response.Rooms.Join["!room1:local"]
	if !ok {
		t.Fatal("expected room !room1:local in sync response")
	}
	events, dropped := DecodeEvents(room.Timeline.Events)
	if len(events) != 1 || dropped != 1 {
		t.Fatalf("DecodeEvents = %d events, %d dropped; want 1 and 1", len(events), dropped)
	}
	var content MessageContent
	if err := json.Unmarshal(events[0].Content, &content); err != nil {
		t.Fatalf("decoding content: %v", err)
	}
	if content.MsgType != MsgTypeText || content.Body != "hi" {
		t.Errorf("unexpected content: %+v", content)
	}
	if _, ok := response.Rooms.Invite["!room2:local"]; !ok {
		t.Error("expected invite section to be decoded")
	}
}

func TestLogout(t *testing.T) {
	called := false
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.Method != http.MethodPost || request.URL.Path != "/_matrix/client/v3/logout" {
			t.Errorf("unexpected request: %s %s", request.Method, request.URL.Path)
		}
		called = true
		writer.Write([]byte(`{}`))
	}))

	if err := session.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if !called {
		t.Error("logout endpoint was not called")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	_, session := newTestSession(t, http.NotFoundHandler())
	if err := session.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSyncFilterInline(t *testing.T) {
	filter := SyncFilter{
		TimelineTypes: []string{EventTypeMessage, EventTypeRoomName},
		TimelineLimit: 50,
		StateTypes:    []string{EventTypeRoomName},
	}

	var decoded struct {
		Room struct {
			Timeline struct {
				Types []string `json:"types"`
				Limit int      `json:"limit"`
			} `json:"timeline"`
			State struct {
				Types []string `json:"types"`
			} `json:"state"`
		} `json:"room"`
		Presence struct {
			Types []string `json:"types"`
		} `json:"presence"`
	}
	if err := json.Unmarshal([]byte(filter.Inline()), &decoded); err != nil {
		t.Fatalf("filter is not JSON: %v", err)
	}
	if len(decoded.Room.Timeline.Types) != 2 || decoded.Room.Timeline.Limit != 50 {
		t.Errorf("unexpected timeline filter: %+v", decoded.Room.Timeline)
	}
	if len(decoded.Room.State.Types) != 1 || decoded.Room.State.Types[0] != EventTypeRoomName {
		t.Errorf("unexpected state filter: %+v", decoded.Room.State)
	}
	if decoded.Presence.Types == nil || len(decoded.Presence.Types) != 0 {
		t.Errorf("presence should be suppressed, got %+v", decoded.Presence.Types)
	}
}

// Test helpers.

func assertAuth(t *testing.T, request *http.Request, expectedToken string) {
	t.Helper()
	auth := request.Header.Get("Authorization")
	expected := "Bearer " + expectedToken
	if auth != expected {
		t.Errorf("unexpected auth header: got %q, want %q", auth, expected)
	}
}

func writeJSON(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(value)
}
