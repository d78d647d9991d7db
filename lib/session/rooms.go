// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"cmp"
	"slices"
	"sync"

	"github.com/bureau-foundation/mesh/lib/ref"
)

// Room is a joined room as the index knows it. Name is "" for rooms
// without an m.room.name state event.
type Room struct {
	ID   ref.RoomID `json:"room_id" cbor:"room_id"`
	Name string     `json:"name" cbor:"name"`
}

// RoomIndex is the joined-room index, keyed by room ID with a secondary
// index by display name. Several rooms may share a name; none is lost.
// Safe for concurrent use: the sync loop updates it while readers list
// it.
type RoomIndex struct {
	mu     sync.RWMutex
	byID   map[ref.RoomID]string
	byName map[string]map[ref.RoomID]struct{}
}

// NewRoomIndex returns an index holding rooms. A later entry for the
// same ID replaces an earlier one.
func NewRoomIndex(rooms ...Room) *RoomIndex {
	index := &RoomIndex{
		byID:   make(map[ref.RoomID]string, len(rooms)),
		byName: make(map[string]map[ref.RoomID]struct{}),
	}
	for _, room := range rooms {
		index.putLocked(room.ID, room.Name)
	}
	return index
}

// Add inserts a room or replaces the name of an existing one. Zero IDs
// are ignored.
func (x *RoomIndex) Add(room Room) {
	if room.ID.IsZero() {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.putLocked(room.ID, room.Name)
}

// AddIfAbsent inserts a room with the given name only if the ID is not
// yet indexed. Returns true if the room was inserted.
func (x *RoomIndex) AddIfAbsent(room Room) bool {
	if room.ID.IsZero() {
		return false
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.byID[room.ID]; exists {
		return false
	}
	x.putLocked(room.ID, room.Name)
	return true
}

// Remove drops a room. Returns false if it was not indexed.
func (x *RoomIndex) Remove(id ref.RoomID) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	name, exists := x.byID[id]
	if !exists {
		return false
	}
	delete(x.byID, id)
	x.unlinkNameLocked(name, id)
	return true
}

// Rename changes the display name of an indexed room. Returns false if
// the room is not indexed.
func (x *RoomIndex) Rename(id ref.RoomID, name string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.byID[id]; !exists {
		return false
	}
	x.putLocked(id, name)
	return true
}

// Get returns the indexed room with the given ID.
func (x *RoomIndex) Get(id ref.RoomID) (Room, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	name, exists := x.byID[id]
	return Room{ID: id, Name: name}, exists
}

// ByName returns every room carrying name, ordered by room ID.
func (x *RoomIndex) ByName(name string) []Room {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := x.byName[name]
	rooms := make([]Room, 0, len(ids))
	for id := range ids {
		rooms = append(rooms, Room{ID: id, Name: name})
	}
	slices.SortFunc(rooms, compareRooms)
	return rooms
}

// Rooms returns every indexed room ordered by name, then room ID.
func (x *RoomIndex) Rooms() []Room {
	x.mu.RLock()
	defer x.mu.RUnlock()
	rooms := make([]Room, 0, len(x.byID))
	for id, name := range x.byID {
		rooms = append(rooms, Room{ID: id, Name: name})
	}
	slices.SortFunc(rooms, compareRooms)
	return rooms
}

// Len returns the number of indexed rooms.
func (x *RoomIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}

func (x *RoomIndex) putLocked(id ref.RoomID, name string) {
	if previous, exists := x.byID[id]; exists {
		if previous == name {
			return
		}
		x.unlinkNameLocked(previous, id)
	}
	x.byID[id] = name
	ids := x.byName[name]
	if ids == nil {
		ids = make(map[ref.RoomID]struct{})
		x.byName[name] = ids
	}
	ids[id] = struct{}{}
}

func (x *RoomIndex) unlinkNameLocked(name string, id ref.RoomID) {
	ids := x.byName[name]
	delete(ids, id)
	if len(ids) == 0 {
		delete(x.byName, name)
	}
}

func compareRooms(a, b Room) int {
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return cmp.Compare(a.ID.String(), b.ID.String())
}
