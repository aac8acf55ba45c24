// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package supabase

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	authCookieSuffix = "-auth-token"
	base64Prefix     = "base64-"
	// maxCookieChunks bounds the chunk scan for split session cookies.
	maxCookieChunks = 64
)

// ErrNoSession reports that the request carries no usable session.
var ErrNoSession = errors.New("no auth session on request")

// Session is the session object the auth SSR helpers persist in cookies.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// Expiry returns when the access token expires. expires_at wins; otherwise
// the unverified exp claim of the access token is used.
func (s Session) Expiry() (time.Time, bool) {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0), true
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// CookieName derives the default auth cookie name, sb-<project-ref>-auth-token,
// from the project URL.
func CookieName(projectURL *url.URL) string {
	ref := projectURL.Hostname()
	if i := strings.IndexByte(ref, '.'); i > 0 {
		ref = ref[:i]
	}
	return "sb-" + ref + authCookieSuffix
}

// readSessionCookie returns the session cookie value, reassembling chunked
// cookies (name.0, name.1, ...) when the single cookie is absent.
func readSessionCookie(r *http.Request, name string) (string, bool) {
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		return c.Value, true
	}

	var b strings.Builder
	for i := 0; i < maxCookieChunks; i++ {
		c, err := r.Cookie(name + "." + strconv.Itoa(i))
		if err != nil {
			break
		}
		b.WriteString(c.Value)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

// decodeSession parses a raw cookie value into a Session.
func decodeSession(raw string) (Session, error) {
	var payload []byte
	switch {
	case strings.HasPrefix(raw, base64Prefix):
		encoded := strings.TrimRight(strings.TrimPrefix(raw, base64Prefix), "=")
		decoded, err := base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return Session{}, fmt.Errorf("decode session cookie: %w", err)
		}
		payload = decoded
	case strings.HasPrefix(raw, "{"):
		payload = []byte(raw)
	default:
		unescaped, err := url.QueryUnescape(raw)
		if err != nil {
			return Session{}, fmt.Errorf("unescape session cookie: %w", err)
		}
		payload = []byte(unescaped)
	}

	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return Session{}, fmt.Errorf("parse session cookie: %w", err)
	}
	if s.AccessToken == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}
