// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "encoding/json"

// SyncFilter narrows what /sync returns.
type SyncFilter struct {
	// TimelineTypes restricts timeline events to these event types. An
	// empty slice means all timeline types.
	TimelineTypes []string

	// TimelineLimit caps timeline events per room per response. Zero
	// leaves the server default.
	TimelineLimit int

	// StateTypes restricts state events to these types. Nil means all
	// state; an empty non-nil slice suppresses state entirely.
	StateTypes []string
}

// Inline renders the filter as the inline JSON accepted by the /sync
// filter parameter. Presence and account data are always suppressed.
func (f SyncFilter) Inline() string {
	roomFilter := map[string]any{}

	timeline := map[string]any{}
	if len(f.TimelineTypes) > 0 {
		timeline["types"] = f.TimelineTypes
	}
	if f.TimelineLimit > 0 {
		timeline["limit"] = f.TimelineLimit
	}
	if len(timeline) > 0 {
		roomFilter["timeline"] = timeline
	}
	if f.StateTypes != nil {
		roomFilter["state"] = map[string]any{"types": f.StateTypes}
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}

	data, _ := json.Marshal(top)
	return string(data)
}
