// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package supabase reads end-user sessions that the auth provider's SSR
// helpers store in cookies, refreshing expired access tokens when a refresh
// token is available.
package supabase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	refreshPath = "/auth/v1/token"
	// expiryLeeway refreshes tokens slightly ahead of their expiry.
	expiryLeeway = 10 * time.Second
	maxErrorBody = 64 * 1024
)

// Client derives session tokens from request cookies.
type Client struct {
	baseURL    *url.URL
	anonKey    string
	cookieName string
	client     *http.Client
	logger     zerolog.Logger
	// Now is overridable for tests.
	Now func() time.Time
}

// New builds a session client for the project at projectURL. cookieName may
// be empty to use the derived sb-<ref>-auth-token name.
func New(projectURL, anonKey, cookieName string, client *http.Client) (*Client, error) {
	if strings.TrimSpace(projectURL) == "" || strings.TrimSpace(anonKey) == "" {
		return nil, errors.New("supabase url and anon key are required")
	}
	base, err := url.Parse(strings.TrimSpace(projectURL))
	if err != nil {
		return nil, fmt.Errorf("invalid supabase url: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, errors.New("supabase url must be absolute (scheme://host)")
	}
	if cookieName == "" {
		cookieName = CookieName(base)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL:    base,
		anonKey:    anonKey,
		cookieName: cookieName,
		client:     client,
		logger:     log.With().Str("component", "supabase").Logger(),
		Now:        time.Now,
	}, nil
}

// CookieName returns the auth cookie the client reads.
func (c *Client) CookieName() string { return c.cookieName }

// Session returns the session stored on the request, refreshed if the access
// token has expired.
func (c *Client) Session(r *http.Request) (Session, error) {
	raw, ok := readSessionCookie(r, c.cookieName)
	if !ok {
		return Session{}, ErrNoSession
	}
	s, err := decodeSession(raw)
	if err != nil {
		return Session{}, err
	}

	expiry, known := s.Expiry()
	if !known || c.Now().Add(expiryLeeway).Before(expiry) {
		return s, nil
	}
	if s.RefreshToken == "" {
		return Session{}, fmt.Errorf("session expired at %s without refresh token", expiry.UTC().Format(time.RFC3339))
	}

	c.logger.Debug().
		Time("expired_at", expiry).
		Msg("session expired; refreshing")
	return c.refresh(r, s.RefreshToken)
}

// SessionToken implements auth.SessionProvider. A request without a session
// yields an empty token and no error.
func (c *Client) SessionToken(r *http.Request) (string, error) {
	s, err := c.Session(r)
	if errors.Is(err, ErrNoSession) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

func (c *Client) refresh(r *http.Request, refreshToken string) (Session, error) {
	target := *c.baseURL
	target.Path = strings.TrimSuffix(target.Path, "/") + refreshPath
	target.RawPath = ""
	target.RawQuery = url.Values{"grant_type": {"refresh_token"}}.Encode()

	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return Session{}, fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.anonKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("perform refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Session{}, fmt.Errorf("session refresh failed (%d): %s", resp.StatusCode, payload)
	}

	var s Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return Session{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if s.AccessToken == "" {
		return Session{}, errors.New("refresh response has no access_token")
	}
	return s, nil
}
