// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncloop runs the Matrix /sync long-poll loop for one
// authenticated session and dispatches what it receives.
//
// [Start] performs the initial sync synchronously, so a caller knows
// whether the session can sync before committing to it, then continues
// with incremental long-polls in a goroutine until [Loop.Stop] is
// called or the loop gives up. Transient failures retry with
// exponential backoff on an injected clock. Revoked credentials
// (M_UNKNOWN_TOKEN, M_FORBIDDEN) end the loop at once; so does a run of
// MaxConsecutiveFailures failed polls. [Loop.Done] and [Loop.Err]
// report the exit.
package syncloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/mesh/lib/clock"
	"github.com/bureau-foundation/mesh/messaging"
)

// Defaults applied to zero Config fields.
const (
	DefaultTimeout                = 30 * time.Second
	DefaultMaxBackoff             = 30 * time.Second
	DefaultMaxConsecutiveFailures = 10

	initialBackoff = time.Second
)

// ErrTooManyFailures is wrapped by Loop.Err when the loop stopped after
// MaxConsecutiveFailures failed polls.
var ErrTooManyFailures = errors.New("syncloop: too many consecutive sync failures")

// ErrAuthRevoked is wrapped by Loop.Err when the homeserver rejected the
// session's credentials.
var ErrAuthRevoked = errors.New("syncloop: session credentials revoked")

// DefaultFilter limits /sync to what the dispatcher consumes: messages
// and room names.
var DefaultFilter = messaging.SyncFilter{
	TimelineTypes: []string{messaging.EventTypeMessage, messaging.EventTypeRoomName},
	StateTypes:    []string{messaging.EventTypeRoomName},
}.Inline()

// Config configures the long-poll loop.
type Config struct {
	// Filter is the inline JSON filter sent with every /sync.
	// Default: DefaultFilter.
	Filter string

	// Timeout is the server-side long-poll timeout. Default: 30s.
	Timeout time.Duration

	// MaxBackoff caps the delay between retries. Backoff starts at one
	// second and doubles. Default: 30s.
	MaxBackoff time.Duration

	// MaxConsecutiveFailures ends the loop after this many failed polls
	// in a row. Default: 10.
	MaxConsecutiveFailures int
}

func (c Config) withDefaults() Config {
	if c.Filter == "" {
		c.Filter = DefaultFilter
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	return c
}

// Handler is called for each /sync response, including the initial
// one. The next poll starts after it returns.
type Handler func(ctx context.Context, response *messaging.SyncResponse)

// Loop is a running sync loop.
type Loop struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	err   error
	since string
}

// Start performs the initial /sync, passes it to handler, and starts
// the incremental loop. If the initial sync fails no goroutine is
// started and the error is returned.
//
// The loop runs on a context detached from ctx's cancellation (values
// are kept), so a short-lived request context that started a login does
// not end the session's sync. Use Stop to end it.
func Start(ctx context.Context, session messaging.Session, config Config, handler Handler, clk clock.Clock, logger *slog.Logger) (*Loop, error) {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	response, err := session.Sync(ctx, messaging.SyncOptions{Filter: config.Filter})
	if err != nil {
		return nil, fmt.Errorf("initial sync: %w", err)
	}
	handler(ctx, response)

	loopContext, cancel := context.WithCancel(context.WithoutCancel(ctx))
	loop := &Loop{
		cancel: cancel,
		done:   make(chan struct{}),
		since:  response.NextBatch,
	}

	logger.Info("sync loop started", "user_id", session.UserID(), "since", response.NextBatch)

	go func() {
		defer close(loop.done)
		err := loop.run(loopContext, session, config, handler, clk, logger)
		loop.mu.Lock()
		loop.err = err
		loop.mu.Unlock()
		if err != nil {
			logger.Error("sync loop terminated", "user_id", session.UserID(), "error", err)
		} else {
			logger.Info("sync loop stopped", "user_id", session.UserID())
		}
	}()

	return loop, nil
}

// Stop cancels the loop and waits for its goroutine to exit. Safe to
// call more than once and after the loop ended on its own.
func (l *Loop) Stop() {
	l.stopOnce.Do(l.cancel)
	<-l.done
}

// Done is closed when the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Err returns why the loop ended: nil after Stop, otherwise an error
// wrapping ErrAuthRevoked or ErrTooManyFailures. Only meaningful after
// Done is closed.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Since returns the most recent next_batch token.
func (l *Loop) Since() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.since
}

type idleConnectionCloser interface {
	CloseIdleConnections()
}

func (l *Loop) run(ctx context.Context, session messaging.Session, config Config, handler Handler, clk clock.Clock, logger *slog.Logger) error {
	backoff := initialBackoff
	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		options := messaging.SyncOptions{
			Since:      l.Since(),
			Timeout:    int(config.Timeout / time.Millisecond),
			SetTimeout: true,
			Filter:     config.Filter,
		}

		response, err := session.Sync(ctx, options)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if messaging.IsAuthRevoked(err) {
				return fmt.Errorf("%w: %w", ErrAuthRevoked, err)
			}
			failures++
			if failures >= config.MaxConsecutiveFailures {
				return fmt.Errorf("%w (%d): %w", ErrTooManyFailures, failures, err)
			}
			// A stale pooled connection often causes the failure;
			// the retry should dial fresh.
			if closer, ok := session.(idleConnectionCloser); ok {
				closer.CloseIdleConnections()
			}
			logger.Warn("sync failed, retrying",
				"error", err,
				"backoff", backoff,
				"consecutive_failures", failures,
			)
			select {
			case <-ctx.Done():
				return nil
			case <-clk.After(backoff):
			}
			backoff = min(backoff*2, config.MaxBackoff)
			continue
		}

		backoff = initialBackoff
		failures = 0
		l.mu.Lock()
		l.since = response.NextBatch
		l.mu.Unlock()

		handler(ctx, response)
	}
}
