// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/mesh/lib/account"
	"github.com/bureau-foundation/mesh/lib/codec"
	"github.com/bureau-foundation/mesh/lib/session"
)

// Action names.
const (
	ActionGetLoginOptions = "get_login_options"
	ActionGetUsername     = "get_username"
	ActionLogin           = "login"
	ActionLogout          = "logout"
	ActionGetRooms        = "get_rooms"
	ActionStatus          = "status"
)

// CategoryRateLimited is the response category of a login refused by
// the rate limiter.
const CategoryRateLimited = "rate_limited"

// ErrRateLimited is returned when login attempts exceed the limit.
var ErrRateLimited = errors.New("too many login attempts, try again later")

// DefaultLoginAttemptsPerMinute is used when ServerConfig leaves it zero.
const DefaultLoginAttemptsPerMinute = 10

// LoginOptionsRequest is the get_login_options request.
type LoginOptionsRequest struct {
	HomeserverURL string `cbor:"homeserver_url"`
}

// LoginRequest is the login request. Password travels in the clear
// over the local socket, which only its owner can open.
type LoginRequest struct {
	Kind     string `cbor:"kind"`
	Username string `cbor:"username"`
	Password string `cbor:"password"`
}

// UsernameResult is the get_username response data.
type UsernameResult struct {
	Username string `json:"username,omitempty" cbor:"username,omitempty"`
	LoggedIn bool   `json:"logged_in" cbor:"logged_in"`
}

// StatusResult is the status response data.
type StatusResult struct {
	HomeserverURL string         `json:"homeserver_url,omitempty" cbor:"homeserver_url,omitempty"`
	Username      string         `json:"username,omitempty" cbor:"username,omitempty"`
	Status        session.Status `json:"status" cbor:"status"`
	RoomCount     int            `json:"room_count" cbor:"room_count"`
}

// ServerConfig configures NewServer.
type ServerConfig struct {
	SocketPath string

	// LoginAttemptsPerMinute bounds login requests; a burst of the same
	// size is allowed.
	LoginAttemptsPerMinute int

	Logger *slog.Logger
}

// Server exposes an account.Manager on a command socket.
type Server struct {
	socket  *SocketServer
	manager *account.Manager
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewServer creates a server for manager with every action registered.
func NewServer(manager *account.Manager, config ServerConfig) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := config.LoginAttemptsPerMinute
	if attempts <= 0 {
		attempts = DefaultLoginAttemptsPerMinute
	}

	server := &Server{
		socket:  NewSocketServer(config.SocketPath, logger),
		manager: manager,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(attempts)), attempts),
		logger:  logger,
	}
	server.socket.Handle(ActionGetLoginOptions, server.handleGetLoginOptions)
	server.socket.Handle(ActionGetUsername, server.handleGetUsername)
	server.socket.Handle(ActionLogin, server.handleLogin)
	server.socket.Handle(ActionLogout, server.handleLogout)
	server.socket.Handle(ActionGetRooms, server.handleGetRooms)
	server.socket.Handle(ActionStatus, server.handleStatus)
	return server
}

// Serve serves until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.socket.Serve(ctx)
}

// Ready is closed once the socket is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.socket.Ready()
}

func decodeRequest[T any](raw []byte) (T, error) {
	var request T
	if err := codec.Unmarshal(raw, &request); err != nil {
		return request, fmt.Errorf("invalid request: %w", err)
	}
	return request, nil
}

func (s *Server) handleGetLoginOptions(ctx context.Context, raw []byte) (any, error) {
	request, err := decodeRequest[LoginOptionsRequest](raw)
	if err != nil {
		return nil, err
	}
	return s.manager.GetLoginOptions(ctx, request.HomeserverURL)
}

func (s *Server) handleGetUsername(context.Context, []byte) (any, error) {
	username, loggedIn := s.manager.GetUsername()
	return UsernameResult{Username: username, LoggedIn: loggedIn}, nil
}

func (s *Server) handleLogin(ctx context.Context, raw []byte) (any, error) {
	if !s.limiter.Allow() {
		s.logger.Warn("login rate limited")
		return nil, ErrRateLimited
	}
	request, err := decodeRequest[LoginRequest](raw)
	if err != nil {
		return nil, err
	}
	if err := s.manager.Login(ctx, request.Kind, request.Username, request.Password); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleLogout(ctx context.Context, _ []byte) (any, error) {
	return nil, s.manager.Logout(ctx)
}

func (s *Server) handleGetRooms(context.Context, []byte) (any, error) {
	rooms := s.manager.Rooms()
	if rooms == nil {
		rooms = []session.Room{}
	}
	return rooms, nil
}

func (s *Server) handleStatus(context.Context, []byte) (any, error) {
	snapshot := s.manager.State().Snapshot()
	return StatusResult{
		HomeserverURL: snapshot.HomeserverURL,
		Username:      snapshot.Username,
		Status:        snapshot.Status,
		RoomCount:     snapshot.RoomCount,
	}, nil
}
