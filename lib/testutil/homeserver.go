// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Endpoint names a homeserver operation for fault injection and request
// counting.
type Endpoint string

const (
	EndpointVersions    Endpoint = "versions"
	EndpointLoginFlows  Endpoint = "login_flows"
	EndpointLogin       Endpoint = "login"
	EndpointJoinedRooms Endpoint = "joined_rooms"
	EndpointRoomState   Endpoint = "room_state"
	EndpointSync        Endpoint = "sync"
	EndpointLogout      Endpoint = "logout"
)

// HomeserverDomain is the server name in every user ID the mock issues.
const HomeserverDomain = "mesh.test"

// SyncBatch is the rooms section of one /sync response. Join and Leave
// values are timeline events; Invite values are invite_state events.
// Events are any so tests can hand in json.RawMessage for malformed
// payloads.
type SyncBatch struct {
	Join   map[string][]any
	Invite map[string][]any
	Leave  map[string][]any
}

type fault struct {
	status    int
	code      string
	remaining int
}

type mockRoom struct {
	id   string
	name string
}

// Homeserver is an httptest-backed Matrix homeserver implementing the
// endpoints the session core calls: versions, login flows, password
// login, joined_rooms, m.room.name state, /sync and logout. Safe for
// concurrent use; tests mutate it while clients are running.
type Homeserver struct {
	server *httptest.Server

	mu             sync.Mutex
	flowsJSON      string
	passwords      map[string]string
	tokens         map[string]string
	tokenCounter   int
	rooms          []mockRoom
	initial        SyncBatch
	pending        []SyncBatch
	pendingChanged chan struct{}
	batchCounter   int
	faults         map[Endpoint]*fault
	stalls         map[Endpoint]chan struct{}
	counts         map[Endpoint]int
	loginDelay     time.Duration
	lastDeviceName string
	lastSyncFilter string
}

// NewHomeserver starts a mock homeserver that advertises password login
// only. It is shut down when the test completes.
func NewHomeserver(t testing.TB) *Homeserver {
	t.Helper()
	homeserver := &Homeserver{
		flowsJSON:      `{"flows":[{"type":"m.login.password"}]}`,
		passwords:      make(map[string]string),
		tokens:         make(map[string]string),
		pendingChanged: make(chan struct{}),
		faults:         make(map[Endpoint]*fault),
		stalls:         make(map[Endpoint]chan struct{}),
		counts:         make(map[Endpoint]int),
	}
	homeserver.server = httptest.NewServer(homeserver.handler())
	t.Cleanup(homeserver.server.Close)
	// Cleanups run last-in first-out: stalled handlers return before
	// Close waits for them.
	t.Cleanup(homeserver.ReleaseStalls)
	return homeserver
}

// URL returns the base URL clients should use.
func (h *Homeserver) URL() string {
	return h.server.URL
}

// SetLoginFlowsJSON replaces the body served by GET /login.
func (h *Homeserver) SetLoginFlowsJSON(body string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flowsJSON = body
}

// AddUser registers an account that password login accepts.
func (h *Homeserver) AddUser(username, password string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.passwords[username] = password
}

// UserID returns the full Matrix ID the mock assigns to username.
func UserID(username string) string {
	return "@" + username + ":" + HomeserverDomain
}

// AddRoom marks a room as joined. An empty name means the room has no
// m.room.name state.
func (h *Homeserver) AddRoom(roomID, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms = append(h.rooms, mockRoom{id: roomID, name: name})
}

// SetInitialSync adds sections to the response for a /sync without a
// since token, on top of the joined rooms registered with AddRoom.
func (h *Homeserver) SetInitialSync(batch SyncBatch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initial = batch
}

// QueueSync queues a batch for the next incremental /sync. Pending
// long-polls wake immediately.
func (h *Homeserver) QueueSync(batch SyncBatch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = append(h.pending, batch)
	close(h.pendingChanged)
	h.pendingChanged = make(chan struct{})
}

// Fail makes the next times requests to endpoint fail with the given
// status and Matrix error code. times < 0 fails until ClearFaults.
func (h *Homeserver) Fail(endpoint Endpoint, status int, code string, times int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults[endpoint] = &fault{status: status, code: code, remaining: times}
}

// Stall makes requests to endpoint hang without a response until the
// client gives up or ReleaseStalls is called.
func (h *Homeserver) Stall(endpoint Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, stalled := h.stalls[endpoint]; !stalled {
		h.stalls[endpoint] = make(chan struct{})
	}
}

// ReleaseStalls lets every stalled request proceed and stops stalling.
func (h *Homeserver) ReleaseStalls() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for endpoint, release := range h.stalls {
		close(release)
		delete(h.stalls, endpoint)
	}
}

// ClearFaults removes every injected failure.
func (h *Homeserver) ClearFaults() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults = make(map[Endpoint]*fault)
}

// RevokeTokens invalidates every issued access token, as an
// administrator's logout-all would.
func (h *Homeserver) RevokeTokens() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens = make(map[string]string)
}

// SetLoginDelay delays every password login response by d.
func (h *Homeserver) SetLoginDelay(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loginDelay = d
}

// Count returns how many requests reached endpoint.
func (h *Homeserver) Count(endpoint Endpoint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[endpoint]
}

// ActiveTokens returns the number of access tokens still valid.
func (h *Homeserver) ActiveTokens() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tokens)
}

// LastDeviceDisplayName returns initial_device_display_name from the most
// recent login request.
func (h *Homeserver) LastDeviceDisplayName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastDeviceName
}

// LastSyncFilter returns the filter parameter of the most recent /sync.
func (h *Homeserver) LastSyncFilter() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSyncFilter
}

// TextEvent builds an m.room.message event with msgtype m.text.
func TextEvent(eventID, sender, body string, timestamp int64) map[string]any {
	return MessageEvent(eventID, sender, "m.text", body, timestamp)
}

// MessageEvent builds an m.room.message event with an arbitrary msgtype.
func MessageEvent(eventID, sender, msgtype, body string, timestamp int64) map[string]any {
	return map[string]any{
		"event_id":         eventID,
		"type":             "m.room.message",
		"sender":           sender,
		"origin_server_ts": timestamp,
		"content":          map[string]any{"msgtype": msgtype, "body": body},
	}
}

// NameEvent builds an m.room.name state event.
func NameEvent(eventID, sender, name string) map[string]any {
	return map[string]any{
		"event_id":  eventID,
		"type":      "m.room.name",
		"sender":    sender,
		"state_key": "",
		"content":   map[string]any{"name": name},
	}
}

func (h *Homeserver) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		switch {
		case path == "/_matrix/client/versions" && r.Method == http.MethodGet:
			h.serve(w, r, EndpointVersions, false, h.handleVersions)
		case path == "/_matrix/client/v3/login" && r.Method == http.MethodGet:
			h.serve(w, r, EndpointLoginFlows, false, h.handleLoginFlows)
		case path == "/_matrix/client/v3/login" && r.Method == http.MethodPost:
			h.serve(w, r, EndpointLogin, false, h.handleLogin)
		case path == "/_matrix/client/v3/joined_rooms" && r.Method == http.MethodGet:
			h.serve(w, r, EndpointJoinedRooms, true, h.handleJoinedRooms)
		case path == "/_matrix/client/v3/sync" && r.Method == http.MethodGet:
			h.serve(w, r, EndpointSync, true, h.handleSync)
		case path == "/_matrix/client/v3/logout" && r.Method == http.MethodPost:
			h.serve(w, r, EndpointLogout, true, h.handleLogout)
		case strings.HasPrefix(path, "/_matrix/client/v3/rooms/") && r.Method == http.MethodGet:
			h.serve(w, r, EndpointRoomState, true, h.handleRoomState)
		default:
			writeMatrixError(w, http.StatusNotFound, "M_UNRECOGNIZED", "unrecognized request "+r.Method+" "+path)
		}
	})
}

// serve counts the request, applies any injected fault, checks the
// bearer token for authenticated endpoints, then calls handle.
func (h *Homeserver) serve(w http.ResponseWriter, r *http.Request, endpoint Endpoint, authenticated bool, handle http.HandlerFunc) {
	h.mu.Lock()
	h.counts[endpoint]++
	if release, stalled := h.stalls[endpoint]; stalled {
		h.mu.Unlock()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		h.mu.Lock()
	}
	injected := h.faults[endpoint]
	if injected != nil && injected.remaining != 0 {
		if injected.remaining > 0 {
			injected.remaining--
		}
		status, code := injected.status, injected.code
		h.mu.Unlock()
		writeMatrixError(w, status, code, "injected failure")
		return
	}
	validToken := true
	if authenticated {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		_, validToken = h.tokens[token]
	}
	h.mu.Unlock()

	if !validToken {
		writeMatrixError(w, http.StatusUnauthorized, "M_UNKNOWN_TOKEN", "Invalid access token passed.")
		return
	}
	handle(w, r)
}

func (h *Homeserver) handleVersions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"versions": []string{"v1.10", "v1.11"}})
}

func (h *Homeserver) handleLoginFlows(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	body := h.flowsJSON
	h.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (h *Homeserver) handleLogin(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Type       string `json:"type"`
		Identifier struct {
			User string `json:"user"`
		} `json:"identifier"`
		User       string `json:"user"`
		Password   string `json:"password"`
		DeviceName string `json:"initial_device_display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeMatrixError(w, http.StatusBadRequest, "M_NOT_JSON", err.Error())
		return
	}
	if request.Type != "m.login.password" {
		writeMatrixError(w, http.StatusBadRequest, "M_UNKNOWN", "unsupported login type "+request.Type)
		return
	}
	username := request.Identifier.User
	if username == "" {
		username = request.User
	}

	h.mu.Lock()
	delay := h.loginDelay
	h.lastDeviceName = request.DeviceName
	expected, known := h.passwords[username]
	h.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if !known || expected != request.Password {
		writeMatrixError(w, http.StatusForbidden, "M_FORBIDDEN", "Invalid username or password")
		return
	}

	h.mu.Lock()
	h.tokenCounter++
	token := fmt.Sprintf("syt_%s_%d", username, h.tokenCounter)
	deviceID := fmt.Sprintf("DEVICE%d", h.tokenCounter)
	h.tokens[token] = username
	h.mu.Unlock()

	writeJSON(w, map[string]any{
		"user_id":      UserID(username),
		"access_token": token,
		"device_id":    deviceID,
	})
}

func (h *Homeserver) handleJoinedRooms(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	ids := make([]string, 0, len(h.rooms))
	for _, room := range h.rooms {
		ids = append(ids, room.id)
	}
	h.mu.Unlock()
	writeJSON(w, map[string]any{"joined_rooms": ids})
}

// handleRoomState serves GET /rooms/{roomId}/state/m.room.name/.
func (h *Homeserver) handleRoomState(w http.ResponseWriter, r *http.Request) {
	rawPath := r.URL.EscapedPath()
	rest := strings.TrimPrefix(rawPath, "/_matrix/client/v3/rooms/")
	segments := strings.SplitN(rest, "/", 4)
	if len(segments) < 3 || segments[1] != "state" {
		writeMatrixError(w, http.StatusNotFound, "M_UNRECOGNIZED", "unrecognized room request")
		return
	}
	roomID, _ := url.PathUnescape(segments[0])
	eventType, _ := url.PathUnescape(segments[2])
	if eventType != "m.room.name" {
		writeMatrixError(w, http.StatusNotFound, "M_NOT_FOUND", "no "+eventType+" in "+roomID)
		return
	}

	h.mu.Lock()
	name, found := "", false
	for _, room := range h.rooms {
		if room.id == roomID {
			name, found = room.name, room.name != ""
			break
		}
	}
	h.mu.Unlock()

	if !found {
		writeMatrixError(w, http.StatusNotFound, "M_NOT_FOUND", "Event not found.")
		return
	}
	writeJSON(w, map[string]any{"name": name})
}

func (h *Homeserver) handleSync(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since := query.Get("since")

	h.mu.Lock()
	h.lastSyncFilter = query.Get("filter")
	h.mu.Unlock()

	if since == "" {
		h.mu.Lock()
		rooms := h.initialRoomsLocked()
		nextBatch := h.nextBatchLocked()
		h.mu.Unlock()
		writeJSON(w, map[string]any{"next_batch": nextBatch, "rooms": rooms})
		return
	}

	timeout, _ := strconv.Atoi(query.Get("timeout"))
	deadline := time.After(time.Duration(timeout) * time.Millisecond)

	for {
		h.mu.Lock()
		if len(h.pending) > 0 {
			batch := h.pending[0]
			h.pending = h.pending[1:]
			nextBatch := h.nextBatchLocked()
			h.mu.Unlock()
			writeJSON(w, map[string]any{"next_batch": nextBatch, "rooms": renderBatch(batch)})
			return
		}
		changed := h.pendingChanged
		h.mu.Unlock()

		select {
		case <-changed:
		case <-deadline:
			writeJSON(w, map[string]any{"next_batch": since, "rooms": map[string]any{}})
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Homeserver) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	h.mu.Lock()
	delete(h.tokens, token)
	h.mu.Unlock()
	writeJSON(w, map[string]any{})
}

func (h *Homeserver) initialRoomsLocked() map[string]any {
	join := make(map[string]any)
	for _, room := range h.rooms {
		var state []any
		if room.name != "" {
			state = append(state, NameEvent("$name-"+strings.TrimPrefix(room.id, "!"), "@admin:"+HomeserverDomain, room.name))
		}
		join[room.id] = map[string]any{
			"state":    map[string]any{"events": nonNil(state)},
			"timeline": map[string]any{"events": nonNil(h.initial.Join[room.id])},
		}
	}
	rendered := renderBatch(h.initial)
	for roomID, section := range rendered["join"].(map[string]any) {
		if _, exists := join[roomID]; !exists {
			join[roomID] = section
		}
	}
	rendered["join"] = join
	return rendered
}

func (h *Homeserver) nextBatchLocked() string {
	h.batchCounter++
	return "s" + strconv.Itoa(h.batchCounter)
}

func renderBatch(batch SyncBatch) map[string]any {
	join := make(map[string]any, len(batch.Join))
	for roomID, events := range batch.Join {
		join[roomID] = map[string]any{"timeline": map[string]any{"events": nonNil(events)}}
	}
	invite := make(map[string]any, len(batch.Invite))
	for roomID, events := range batch.Invite {
		invite[roomID] = map[string]any{"invite_state": map[string]any{"events": nonNil(events)}}
	}
	leave := make(map[string]any, len(batch.Leave))
	for roomID, events := range batch.Leave {
		leave[roomID] = map[string]any{"timeline": map[string]any{"events": nonNil(events)}}
	}
	return map[string]any{"join": join, "invite": invite, "leave": leave}
}

func nonNil(events []any) []any {
	if events == nil {
		return []any{}
	}
	return events
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(value)
}

func writeMatrixError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"errcode": code, "error": message})
}
