// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncloop

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/mesh/lib/ref"
	"github.com/bureau-foundation/mesh/lib/session"
	"github.com/bureau-foundation/mesh/messaging"
)

// DefaultQueueSize is the observer queue capacity when none is given.
const DefaultQueueSize = 256

// TextMessage is a plain-text message received in a joined room.
type TextMessage struct {
	RoomID    ref.RoomID  `json:"room_id" cbor:"room_id"`
	EventID   ref.EventID `json:"event_id" cbor:"event_id"`
	Sender    ref.UserID  `json:"sender" cbor:"sender"`
	Body      string      `json:"body" cbor:"body"`
	Timestamp time.Time   `json:"timestamp" cbor:"timestamp"`
}

// Observer receives text messages. Calls come from a single goroutine,
// in the order the dispatcher accepted the messages.
type Observer interface {
	OnTextMessage(message TextMessage)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(message TextMessage)

// OnTextMessage calls f(message).
func (f ObserverFunc) OnTextMessage(message TextMessage) { f(message) }

// DispatchStats counts what the dispatcher did with incoming events.
type DispatchStats struct {
	Delivered   int64
	QueueDrops  int64
	Malformed   int64
	Unqualified int64
}

// Dispatcher is the sync Handler for a logged-in session. It applies
// membership and room-name changes to the room index and forwards m.text
// messages from joined rooms to the observer through a bounded queue, so
// a slow observer never stalls /sync.
type Dispatcher struct {
	rooms    *session.RoomIndex
	observer Observer
	logger   *slog.Logger

	queue chan TextMessage
	done  chan struct{}

	closeMu sync.RWMutex
	closed  bool

	delivered   atomic.Int64
	queueDrops  atomic.Int64
	malformed   atomic.Int64
	unqualified atomic.Int64
}

// NewDispatcher starts a dispatcher feeding observer (which may be nil
// to discard messages). queueSize <= 0 uses DefaultQueueSize. Call
// Close when the sync loop using it has stopped.
func NewDispatcher(rooms *session.RoomIndex, observer Observer, queueSize int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	dispatcher := &Dispatcher{
		rooms:    rooms,
		observer: observer,
		logger:   logger,
		queue:    make(chan TextMessage, queueSize),
		done:     make(chan struct{}),
	}
	go dispatcher.drain()
	return dispatcher
}

// Handle processes one /sync response. It has the Handler signature.
func (d *Dispatcher) Handle(ctx context.Context, response *messaging.SyncResponse) {
	for rawRoomID := range response.Rooms.Leave {
		roomID, err := ref.ParseRoomID(rawRoomID)
		if err != nil {
			d.malformed.Add(1)
			continue
		}
		if d.rooms.Remove(roomID) {
			d.logger.Debug("left room", "room_id", roomID)
		}
	}

	// Invites are not joined rooms: nothing in them reaches the index
	// or the observer.
	for _, invited := range response.Rooms.Invite {
		d.unqualified.Add(int64(len(invited.InviteState.Events)))
	}

	for rawRoomID, joined := range response.Rooms.Join {
		roomID, err := ref.ParseRoomID(rawRoomID)
		if err != nil {
			d.malformed.Add(int64(1 + len(joined.Timeline.Events)))
			d.logger.Warn("dropping sync data for malformed room ID", "room_id", rawRoomID)
			continue
		}
		d.rooms.AddIfAbsent(session.Room{ID: roomID})

		stateEvents, dropped := messaging.DecodeEvents(joined.State.Events)
		d.malformed.Add(int64(dropped))
		for _, event := range stateEvents {
			d.applyState(roomID, event)
		}

		timelineEvents, dropped := messaging.DecodeEvents(joined.Timeline.Events)
		d.malformed.Add(int64(dropped))
		for _, event := range timelineEvents {
			switch event.Type {
			case messaging.EventTypeRoomName:
				d.applyState(roomID, event)
			case messaging.EventTypeMessage:
				d.dispatchMessage(roomID, event)
			default:
				d.unqualified.Add(1)
			}
		}
	}
}

func (d *Dispatcher) applyState(roomID ref.RoomID, event messaging.Event) {
	if event.Type != messaging.EventTypeRoomName || event.StateKey == nil || *event.StateKey != "" {
		d.unqualified.Add(1)
		return
	}
	var content messaging.RoomNameContent
	if err := json.Unmarshal(event.Content, &content); err != nil {
		d.malformed.Add(1)
		return
	}
	d.rooms.Rename(roomID, content.Name)
}

func (d *Dispatcher) dispatchMessage(roomID ref.RoomID, event messaging.Event) {
	var content messaging.MessageContent
	if err := json.Unmarshal(event.Content, &content); err != nil {
		d.malformed.Add(1)
		return
	}
	if content.MsgType != messaging.MsgTypeText {
		d.unqualified.Add(1)
		return
	}
	if event.EventID.IsZero() || event.Sender.IsZero() {
		d.malformed.Add(1)
		return
	}

	message := TextMessage{
		RoomID:    roomID,
		EventID:   event.EventID,
		Sender:    event.Sender,
		Body:      content.Body,
		Timestamp: time.UnixMilli(event.OriginServerTS).UTC(),
	}

	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- message:
	default:
		d.queueDrops.Add(1)
		d.logger.Warn("observer queue full, dropping message",
			"room_id", roomID,
			"event_id", event.EventID,
		)
	}
}

func (d *Dispatcher) drain() {
	defer close(d.done)
	for message := range d.queue {
		d.delivered.Add(1)
		if d.observer != nil {
			d.observer.OnTextMessage(message)
		}
	}
}

// Close stops accepting messages, delivers what is queued, and waits
// for the observer goroutine to exit. Idempotent.
func (d *Dispatcher) Close() {
	d.closeMu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.closeMu.Unlock()
	<-d.done
}

// Stats returns the dispatcher's counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Delivered:   d.delivered.Load(),
		QueueDrops:  d.queueDrops.Load(),
		Malformed:   d.malformed.Load(),
		Unqualified: d.unqualified.Load(),
	}
}
