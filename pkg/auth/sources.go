// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HeaderSource reads a token the browser attached as a request header.
type HeaderSource struct {
	Header string // default: TokenName
}

func (s HeaderSource) Name() string { return string(ProvenanceHeader) }

func (s HeaderSource) Resolve(r *http.Request) (Credential, error) {
	name := s.Header
	if name == "" {
		name = TokenName
	}
	token := strings.TrimSpace(r.Header.Get(name))
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Credential{}, nil
	}
	return Credential{Token: token, Provenance: ProvenanceHeader}, nil
}

// CookieSource reads a token cached in a cookie by a previous exchange.
type CookieSource struct {
	Cookie string // default: TokenName
}

func (s CookieSource) Name() string { return string(ProvenanceCookie) }

func (s CookieSource) Resolve(r *http.Request) (Credential, error) {
	name := s.Cookie
	if name == "" {
		name = TokenName
	}
	c, err := r.Cookie(name)
	if err != nil || c == nil || c.Value == "" {
		return Credential{}, nil
	}
	return Credential{Token: c.Value, Provenance: ProvenanceCookie}, nil
}

// StaticSource serves the token configured at startup.
type StaticSource struct {
	Token string
}

func (s StaticSource) Name() string { return string(ProvenanceStatic) }

func (s StaticSource) Resolve(*http.Request) (Credential, error) {
	if s.Token == "" {
		return Credential{}, nil
	}
	return Credential{Token: s.Token, Provenance: ProvenanceStatic}, nil
}

// SessionProvider derives the end-user session token from a request, usually
// from the auth provider's cookies. It returns an empty string when the
// request carries no session.
type SessionProvider interface {
	SessionToken(r *http.Request) (string, error)
}

// ExchangeSource negotiates a fresh MCP token by exchanging the caller's
// session token at the MCP server's token endpoint.
type ExchangeSource struct {
	Sessions  SessionProvider
	Exchanger *Exchanger
}

func (s ExchangeSource) Name() string { return string(ProvenanceExchange) }

func (s ExchangeSource) Resolve(r *http.Request) (Credential, error) {
	if s.Sessions == nil || s.Exchanger == nil {
		return Credential{}, nil
	}
	subject, err := s.Sessions.SessionToken(r)
	if err != nil {
		return Credential{}, fmt.Errorf("derive session token: %w", err)
	}
	if subject == "" {
		return Credential{}, nil
	}

	resp, err := s.Exchanger.Exchange(r.Context(), subject)
	if err != nil {
		return Credential{}, err
	}

	maxAge := MaxTokenAge
	if resp.ExpiresIn > 0 {
		if lifetime := time.Duration(resp.ExpiresIn) * time.Second; lifetime < maxAge {
			maxAge = lifetime
		}
	}
	return Credential{Token: resp.AccessToken, Provenance: ProvenanceExchange, MaxAge: maxAge}, nil
}
