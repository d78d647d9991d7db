// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package media turns Matrix content URIs (mxc://server/mediaId) into
// HTTPS URLs on the origin server's media repository.
//
// Resolution is pure string work with no I/O. Failure is signalled by
// an empty result rather than an error so callers rendering avatars or
// provider icons can treat "no URL" uniformly.
package media

import (
	"strconv"
	"strings"

	"github.com/bureau-foundation/mesh/lib/ref"
)

// DefaultResizeMethod is used for thumbnails when no method is given.
const DefaultResizeMethod = "crop"

const (
	authenticatedPrefix   = "/_matrix/client/v1/media/"
	unauthenticatedPrefix = "/_matrix/media/v1/"
)

// Request describes the URL wanted for a piece of content. The zero
// value asks for a plain unauthenticated download.
type Request struct {
	// Width and Height bound a thumbnail. Negative values are treated
	// as zero.
	Width  int
	Height int

	// Method is the thumbnail resize method ("crop" or "scale"). It is
	// written into the query unescaped.
	Method string

	// Authenticated selects the authenticated media endpoints.
	Authenticated bool
}

// Thumbnail reports whether the request asks for a thumbnail rather
// than the original content.
func (r Request) Thumbnail() bool {
	return r.Width > 0 || r.Height > 0 || r.Method != ""
}

// URL returns the HTTPS URL for content under this request.
func (r Request) URL(content ref.ContentURI) string {
	if content.IsZero() {
		return ""
	}
	return r.compose(content.Server(), content.MediaID())
}

// Resolve converts mediaRef to an HTTPS URL. References that do not use
// the mxc:// scheme are returned unchanged when allowPassthrough is set
// and yield "" otherwise. An mxc reference whose remainder does not
// split into exactly two '/'-separated segments yields "".
//
// Any positive width or height, or a non-empty resizeMethod, makes the
// result a thumbnail URL with width, height and method query parameters
// (method defaults to crop).
func Resolve(mediaRef string, allowPassthrough bool, width, height int, resizeMethod string, authenticated bool) string {
	rest, ok := strings.CutPrefix(mediaRef, ref.ContentURIScheme)
	if !ok {
		if allowPassthrough {
			return mediaRef
		}
		return ""
	}

	server, mediaID, ok := strings.Cut(rest, "/")
	if !ok || strings.Contains(mediaID, "/") {
		return ""
	}

	request := Request{Width: width, Height: height, Method: resizeMethod, Authenticated: authenticated}
	return request.compose(server, mediaID)
}

func (r Request) compose(server, mediaID string) string {
	verb := "download"
	if r.Thumbnail() {
		verb = "thumbnail"
	}
	prefix := unauthenticatedPrefix
	if r.Authenticated {
		prefix = authenticatedPrefix
	}

	var builder strings.Builder
	builder.WriteString("https://")
	builder.WriteString(server)
	builder.WriteString(prefix)
	builder.WriteString(verb)
	builder.WriteByte('/')
	builder.WriteString(server)
	builder.WriteByte('/')
	builder.WriteString(mediaID)

	if r.Thumbnail() {
		method := r.Method
		if method == "" {
			method = DefaultResizeMethod
		}
		builder.WriteString("?width=")
		builder.WriteString(strconv.Itoa(max(r.Width, 0)))
		builder.WriteString("&height=")
		builder.WriteString(strconv.Itoa(max(r.Height, 0)))
		builder.WriteString("&method=")
		builder.WriteString(method)
	}
	return builder.String()
}
