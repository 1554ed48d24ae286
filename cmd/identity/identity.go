// Package identity resolves the authenticated principal attached to a request.
//
// Authentication itself is delegated to the upstream auth layer: by the time a
// request reaches this process, the user id has already been verified and is
// trusted verbatim. HTTP requests carry it in the X-User-ID header (set by the
// auth proxy); websocket handshakes, where browsers cannot set headers, carry
// it as the userId query parameter.
package identity

import (
	"net/http"
	"strings"
)

// HeaderUserID is the trusted header populated by the upstream auth layer.
const HeaderUserID = "X-User-ID"

// QueryUserID is the websocket handshake fallback for the user id.
const QueryUserID = "userId"

// Principal is an authenticated user reference.
type Principal struct {
	ID string
}

// FromRequest extracts the principal from a request.
// It returns ok=false when no identity is attached.
func FromRequest(r *http.Request) (Principal, bool) {
	if r == nil {
		return Principal{}, false
	}

	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get(QueryUserID))
	}
	if id == "" {
		return Principal{}, false
	}
	return Principal{ID: id}, true
}
