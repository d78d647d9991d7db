// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"valid", "!abc123:example.org", true},
		{"valid with port", "!abc:example.org:8448", true},
		{"empty", "", false},
		{"wrong sigil", "#abc:example.org", false},
		{"missing server", "!abc123", false},
		{"empty local part", "!:example.org", false},
		{"empty server", "!abc:", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			roomID, err := ParseRoomID(test.input)
			if test.valid {
				if err != nil {
					t.Fatalf("ParseRoomID(%q) failed: %v", test.input, err)
				}
				if roomID.String() != test.input {
					t.Errorf("String() = %q, want %q", roomID.String(), test.input)
				}
				return
			}
			if err == nil {
				t.Fatalf("ParseRoomID(%q) succeeded, want error", test.input)
			}
		})
	}
}

func TestUserIDParts(t *testing.T) {
	userID, err := ParseUserID("@alice:example.org")
	if err != nil {
		t.Fatalf("ParseUserID failed: %v", err)
	}
	if userID.Localpart() != "alice" {
		t.Errorf("Localpart() = %q, want alice", userID.Localpart())
	}
	if userID.Server() != "example.org" {
		t.Errorf("Server() = %q, want example.org", userID.Server())
	}

	var zero UserID
	if zero.Localpart() != "" || zero.Server() != "" {
		t.Error("zero UserID should have empty parts")
	}

	if _, err := ParseUserID("alice"); err == nil {
		t.Error("expected error for user ID without sigil")
	}
}

func TestParseEventID(t *testing.T) {
	if _, err := ParseEventID("$abc"); err != nil {
		t.Errorf("ParseEventID($abc) failed: %v", err)
	}
	for _, input := range []string{"", "$", "abc"} {
		if _, err := ParseEventID(input); err == nil {
			t.Errorf("ParseEventID(%q) succeeded, want error", input)
		}
	}
}

func TestParseContentURI(t *testing.T) {
	uri, err := ParseContentURI("mxc://example.org/abc123")
	if err != nil {
		t.Fatalf("ParseContentURI failed: %v", err)
	}
	if uri.Server() != "example.org" || uri.MediaID() != "abc123" {
		t.Errorf("got server=%q media=%q", uri.Server(), uri.MediaID())
	}
	if uri.String() != "mxc://example.org/abc123" {
		t.Errorf("String() = %q", uri.String())
	}

	for _, input := range []string{
		"https://example.org/abc",
		"mxc://onlyoneparthere",
		"mxc://example.org/a/b",
		"mxc:///abc",
		"mxc://example.org/",
	} {
		if _, err := ParseContentURI(input); err == nil {
			t.Errorf("ParseContentURI(%q) succeeded, want error", input)
		}
	}
}

func TestTextMarshalingAsMapKey(t *testing.T) {
	rooms := map[RoomID]string{
		MustParseRoomID("!a:example.org"): "first",
	}
	data, err := json.Marshal(rooms)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"!a:example.org":"first"}` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var decoded map[RoomID]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded[MustParseRoomID("!a:example.org")] != "first" {
		t.Errorf("round trip lost entry: %v", decoded)
	}

	var invalid map[RoomID]string
	if err := json.Unmarshal([]byte(`{"not-a-room":"x"}`), &invalid); err == nil {
		t.Error("expected error unmarshaling invalid room ID key")
	}
}
