// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package auth resolves the bearer credential attached to requests bound for
// the remote MCP server. Credentials come from an ordered list of sources;
// the first source producing a token wins.
package auth

import (
	"errors"
	"net/http"
	"time"
)

// TokenName is both the request header and the cookie carrying a
// previously negotiated MCP access token.
const TokenName = "X-MCP-Access-Token"

// MaxTokenAge caps the lifetime of a negotiated credential cached in the
// browser cookie.
const MaxTokenAge = time.Hour

// ErrUnauthorized reports that no source produced a credential while one
// was required.
var ErrUnauthorized = errors.New("failed to obtain access token from any source")

// Provenance identifies where a credential came from.
type Provenance string

const (
	ProvenanceHeader   Provenance = "header"
	ProvenanceCookie   Provenance = "cookie"
	ProvenanceStatic   Provenance = "static"
	ProvenanceExchange Provenance = "exchange"
)

// Credential is an opaque bearer token together with its origin.
type Credential struct {
	Token      string
	Provenance Provenance
	// MaxAge is only meaningful for negotiated credentials.
	MaxAge time.Duration
}

// Empty reports whether the credential carries no token.
func (c Credential) Empty() bool {
	return c.Token == ""
}

// Cacheable reports whether the credential was freshly negotiated and should
// be handed back to the browser so later calls skip the exchange.
func (c Credential) Cacheable() bool {
	return !c.Empty() && c.Provenance == ProvenanceExchange
}

// Cookie builds the cookie that caches a negotiated credential.
func (c Credential) Cookie(secure bool) *http.Cookie {
	maxAge := c.MaxAge
	if maxAge <= 0 || maxAge > MaxTokenAge {
		maxAge = MaxTokenAge
	}
	return &http.Cookie{
		Name:     TokenName,
		Value:    c.Token,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: false, // read by browser code to populate the header
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Source is one credential strategy. A source with nothing to offer returns
// an empty Credential and a nil error; an error means the source failed and
// the next one should be tried.
type Source interface {
	Name() string
	Resolve(r *http.Request) (Credential, error)
}
