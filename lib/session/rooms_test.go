// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"slices"
	"sync"
	"testing"

	"github.com/bureau-foundation/mesh/lib/ref"
)

func roomID(raw string) ref.RoomID { return ref.MustParseRoomID(raw) }

func TestRoomIndexNameCollisions(t *testing.T) {
	index := NewRoomIndex(
		Room{ID: roomID("!b:example.org"), Name: "General"},
		Room{ID: roomID("!a:example.org"), Name: "General"},
		Room{ID: roomID("!c:example.org"), Name: ""},
	)

	general := index.ByName("General")
	want := []Room{
		{ID: roomID("!a:example.org"), Name: "General"},
		{ID: roomID("!b:example.org"), Name: "General"},
	}
	if !slices.Equal(general, want) {
		t.Errorf("ByName(General) = %v, want %v", general, want)
	}
	if unnamed := index.ByName(""); len(unnamed) != 1 || unnamed[0].ID != roomID("!c:example.org") {
		t.Errorf("ByName(\"\") = %v", unnamed)
	}
	if index.Len() != 3 {
		t.Errorf("Len() = %d, want 3", index.Len())
	}
}

func TestRoomIndexRenameAndRemove(t *testing.T) {
	index := NewRoomIndex(Room{ID: roomID("!a:example.org"), Name: "Old"})

	if !index.Rename(roomID("!a:example.org"), "New") {
		t.Fatal("Rename of an indexed room returned false")
	}
	if len(index.ByName("Old")) != 0 {
		t.Error("old name still indexed after rename")
	}
	if room, ok := index.Get(roomID("!a:example.org")); !ok || room.Name != "New" {
		t.Errorf("Get after rename = %v, %v", room, ok)
	}
	if index.Rename(roomID("!missing:example.org"), "X") {
		t.Error("Rename of an unknown room returned true")
	}

	if !index.Remove(roomID("!a:example.org")) {
		t.Fatal("Remove of an indexed room returned false")
	}
	if index.Remove(roomID("!a:example.org")) {
		t.Error("second Remove returned true")
	}
	if index.Len() != 0 || len(index.ByName("New")) != 0 {
		t.Errorf("index not empty after remove: %v", index.Rooms())
	}
}

func TestRoomIndexAddIfAbsent(t *testing.T) {
	index := NewRoomIndex(Room{ID: roomID("!a:example.org"), Name: "Kept"})
	if index.AddIfAbsent(Room{ID: roomID("!a:example.org"), Name: "Replaced"}) {
		t.Error("AddIfAbsent replaced an existing room")
	}
	if room, _ := index.Get(roomID("!a:example.org")); room.Name != "Kept" {
		t.Errorf("name = %q, want Kept", room.Name)
	}
	if !index.AddIfAbsent(Room{ID: roomID("!b:example.org")}) {
		t.Error("AddIfAbsent did not insert a new room")
	}
	if index.AddIfAbsent(Room{}) {
		t.Error("AddIfAbsent accepted a zero room ID")
	}
}

func TestRoomIndexRoomsOrdering(t *testing.T) {
	index := NewRoomIndex(
		Room{ID: roomID("!z:example.org"), Name: "beta"},
		Room{ID: roomID("!y:example.org"), Name: "alpha"},
		Room{ID: roomID("!x:example.org"), Name: "beta"},
	)
	var names []string
	for _, room := range index.Rooms() {
		names = append(names, room.Name+room.ID.String())
	}
	want := []string{"alpha!y:example.org", "beta!x:example.org", "beta!z:example.org"}
	if !slices.Equal(names, want) {
		t.Errorf("Rooms() order = %v, want %v", names, want)
	}
}

func TestRoomIndexConcurrentUse(t *testing.T) {
	index := NewRoomIndex()
	ids := []ref.RoomID{roomID("!a:example.org"), roomID("!b:example.org"), roomID("!c:example.org")}

	var waitGroup sync.WaitGroup
	for worker := range 8 {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for iteration := range 200 {
				id := ids[(worker+iteration)%len(ids)]
				index.Add(Room{ID: id, Name: "n"})
				index.Rename(id, "m")
				index.Rooms()
				if iteration%7 == 0 {
					index.Remove(id)
				}
			}
		}()
	}
	waitGroup.Wait()

	for _, room := range index.Rooms() {
		if !slices.Contains(ids, room.ID) {
			t.Errorf("unexpected room %v", room)
		}
	}
}
