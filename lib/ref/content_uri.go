// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// ContentURIScheme is the scheme prefix of Matrix media references.
const ContentURIScheme = "mxc://"

// ContentURI is a parsed Matrix media reference
// ("mxc://<server>/<media ID>"). It names media stored by a homeserver's
// media repository; lib/media turns it into a fetchable HTTPS URL.
type ContentURI struct {
	server  string
	mediaID string
}

// ParseContentURI splits an mxc:// reference into its server and media
// ID. The part after the scheme must be exactly two non-empty,
// slash-separated segments.
func ParseContentURI(raw string) (ContentURI, error) {
	if !strings.HasPrefix(raw, ContentURIScheme) {
		return ContentURI{}, fmt.Errorf("content URI must start with %q: %q", ContentURIScheme, raw)
	}
	segments := strings.Split(raw[len(ContentURIScheme):], "/")
	if len(segments) != 2 {
		return ContentURI{}, fmt.Errorf("content URI must have exactly two segments after %q, got %d: %q",
			ContentURIScheme, len(segments), raw)
	}
	if segments[0] == "" || segments[1] == "" {
		return ContentURI{}, fmt.Errorf("content URI has an empty segment: %q", raw)
	}
	return ContentURI{server: segments[0], mediaID: segments[1]}, nil
}

// Server returns the authority segment (the homeserver hosting the media).
func (c ContentURI) Server() string { return c.server }

// MediaID returns the media identifier segment.
func (c ContentURI) MediaID() string { return c.mediaID }

// IsZero reports whether the ContentURI is unset.
func (c ContentURI) IsZero() bool { return c.server == "" }

// String returns the canonical mxc:// form.
func (c ContentURI) String() string {
	if c.IsZero() {
		return ""
	}
	return ContentURIScheme + c.server + "/" + c.mediaID
}

// MarshalText implements encoding.TextMarshaler.
func (c ContentURI) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (c *ContentURI) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*c = ContentURI{}
		return nil
	}
	parsed, err := ParseContentURI(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
