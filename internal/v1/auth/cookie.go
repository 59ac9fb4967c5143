// Package auth resolves the caller identity carried on every request: a
// single cookie set by the upstream media server's own web client, not a
// token this service issues or verifies itself (spec §9's resolver sits
// downstream of this, not upstream).
package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CookieName is the cookie the upstream media server's web client sets
// after its own login flow completes.
const CookieName = "plex_user_token"

// identityContextKey avoids collisions with other packages' gin.Context keys.
const identityContextKey = "auth.identity"

var (
	// ErrMissingCookie means the request carried no identity cookie at all.
	ErrMissingCookie = errors.New("auth: missing identity cookie")
	// ErrMalformedCookie means the cookie value didn't split into at least
	// a user id and an identity token.
	ErrMalformedCookie = errors.New("auth: malformed identity cookie")
)

// Identity is the caller as resolved from the identity cookie: who they are
// (UserID, Username once looked up) and what they're allowed to present
// upstream (IdentityToken and ServerToken, both always set after parsing).
//
// The cookie's value is "{user_id}:{identity_token}:{server_access_token}".
// A 2-field legacy form, "{user_id}:{identity_token}", carries no separate
// server-scoped token; ParseCookieValue then copies the identity token into
// ServerToken.
type Identity struct {
	UserID        int64
	IdentityToken string
	ServerToken   string
}

// HasServerToken reports whether ServerToken is non-empty. For a parsed
// legacy 2-field cookie it is true, since ServerToken holds a copy of the
// identity token.
func (id Identity) HasServerToken() bool {
	return id.ServerToken != ""
}

// ParseCookieValue parses the raw cookie value into an Identity.
func ParseCookieValue(raw string) (Identity, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 {
		return Identity{}, ErrMalformedCookie
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Identity{}, ErrMalformedCookie
	}
	if parts[1] == "" {
		return Identity{}, ErrMalformedCookie
	}
	id := Identity{UserID: userID, IdentityToken: parts[1]}
	if len(parts) == 3 {
		id.ServerToken = parts[2]
	} else {
		// Legacy 2-field form: spec §6 says it's "accepted with the
		// identity token duplicated" as the server token.
		id.ServerToken = parts[1]
	}
	return id, nil
}

// FromRequest extracts and parses the identity cookie from an *http.Request
// directly, for call sites (like the WebSocket upgrade handler) that work
// against the standard library request rather than a gin.Context.
func FromRequest(r *http.Request) (Identity, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Identity{}, ErrMissingCookie
	}
	return ParseCookieValue(cookie.Value)
}

// RequireIdentity is Gin middleware that parses the identity cookie and
// stores it on the context for downstream handlers, aborting with 401 when
// it's missing or malformed.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := FromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": err.Error()})
			return
		}
		c.Set(identityContextKey, id)
		c.Next()
	}
}

// IdentityFromContext returns the Identity stashed by RequireIdentity. Only
// call this from handlers mounted behind that middleware.
func IdentityFromContext(c *gin.Context) Identity {
	v, _ := c.Get(identityContextKey)
	id, _ := v.(Identity)
	return id
}
