// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"errors"

	"github.com/bureau-foundation/mesh/lib/ref"
)

// Event is a decoded room event from a sync response.
type Event struct {
	EventID        ref.EventID     `json:"event_id"`
	Type           string          `json:"type"`
	Sender         ref.UserID      `json:"sender"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Content        json.RawMessage `json:"content"`
	StateKey       *string         `json:"state_key,omitempty"`
}

// DecodeEvent decodes a single raw event. Events without a type are
// rejected.
func DecodeEvent(raw json.RawMessage) (Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return Event{}, err
	}
	if event.Type == "" {
		return Event{}, errors.New("messaging: event has no type")
	}
	return event, nil
}

// DecodeEvents decodes each raw event independently, returning the
// events that decoded and the number that did not.
func DecodeEvents(raw []json.RawMessage) (events []Event, dropped int) {
	events = make([]Event, 0, len(raw))
	for _, item := range raw {
		event, err := DecodeEvent(item)
		if err != nil {
			dropped++
			continue
		}
		events = append(events, event)
	}
	return events, dropped
}
