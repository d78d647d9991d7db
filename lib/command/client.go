// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/mesh/lib/account"
	"github.com/bureau-foundation/mesh/lib/codec"
	"github.com/bureau-foundation/mesh/lib/session"
)

const (
	dialTimeout         = 5 * time.Second
	responseReadTimeout = 2 * time.Minute
	maxResponseSize     = 4 * 1024 * 1024
)

// Error is returned by Call when the server answers ok=false.
type Error struct {
	Action   string
	Message  string
	Category string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Action, e.Message)
}

// Client talks to a command socket. Each call uses a new connection.
type Client struct {
	socketPath string
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends action with fields and decodes the response data into
// result, when both are present. A refused action returns *Error;
// connection and encoding problems return plain errors.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &Error{Action: action, Message: response.Error, Category: response.Category}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	if _, ok := ctx.Deadline(); !ok {
		conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	}
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}

// LoginOptions runs get_login_options.
func (c *Client) LoginOptions(ctx context.Context, homeserverURL string) ([]account.LoginOption, error) {
	var options []account.LoginOption
	err := c.Call(ctx, ActionGetLoginOptions, map[string]any{"homeserver_url": homeserverURL}, &options)
	return options, err
}

// Username runs get_username.
func (c *Client) Username(ctx context.Context) (string, bool, error) {
	var result UsernameResult
	if err := c.Call(ctx, ActionGetUsername, nil, &result); err != nil {
		return "", false, err
	}
	return result.Username, result.LoggedIn, nil
}

// Login runs login.
func (c *Client) Login(ctx context.Context, kind, username, password string) error {
	return c.Call(ctx, ActionLogin, map[string]any{
		"kind":     kind,
		"username": username,
		"password": password,
	}, nil)
}

// Logout runs logout.
func (c *Client) Logout(ctx context.Context) error {
	return c.Call(ctx, ActionLogout, nil, nil)
}

// Rooms runs get_rooms.
func (c *Client) Rooms(ctx context.Context) ([]session.Room, error) {
	var rooms []session.Room
	err := c.Call(ctx, ActionGetRooms, nil, &rooms)
	return rooms, err
}

// Status runs status.
func (c *Client) Status(ctx context.Context) (StatusResult, error) {
	var result StatusResult
	err := c.Call(ctx, ActionStatus, nil, &result)
	return result, err
}
