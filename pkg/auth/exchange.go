// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-core-stack/mcp-token-proxy/pkg/metrics"
)

const (
	GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	TokenTypeAccessToken   = "urn:ietf:params:oauth:token-type:access_token"

	// maxErrorBody limits how much of a rejected exchange is kept for logs.
	maxErrorBody = 64 * 1024
)

// TokenResponse is the subset of the token endpoint reply the proxy uses.
type TokenResponse struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type,omitempty"`
	ExpiresIn       int64  `json:"expires_in,omitempty"`
	IssuedTokenType string `json:"issued_token_type,omitempty"`
}

// ExchangeError reports a non-2xx answer from the token endpoint.
type ExchangeError struct {
	Status int
	Body   string
}

// Error implements the error interface for ExchangeError.
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed (%d): %s", e.Status, e.Body)
}

// Exchanger trades an end-user session token for an MCP access token using
// the OAuth token-exchange grant.
type Exchanger struct {
	client   *http.Client
	tokenURL string
	resource string
	clientID string
}

// NewExchanger targets {base}/oauth/token and requests tokens for the
// {base}/mcp resource.
func NewExchanger(client *http.Client, base *url.URL, clientID string) *Exchanger {
	if client == nil {
		client = http.DefaultClient
	}
	return &Exchanger{
		client:   client,
		tokenURL: endpoint(base, "oauth/token"),
		resource: endpoint(base, "mcp"),
		clientID: clientID,
	}
}

// TokenURL returns the token endpoint used by the exchanger.
func (e *Exchanger) TokenURL() string { return e.tokenURL }

// Resource returns the resource indicator sent with every exchange.
func (e *Exchanger) Resource() string { return e.resource }

// Exchange posts the form-encoded token-exchange request for subjectToken.
func (e *Exchanger) Exchange(ctx context.Context, subjectToken string) (TokenResponse, error) {
	resp, err := e.exchange(ctx, subjectToken)
	switch {
	case err == nil:
		metrics.ObserveExchange(metrics.ExchangeSuccess)
	case isExchangeRejection(err):
		metrics.ObserveExchange(metrics.ExchangeRejected)
	default:
		metrics.ObserveExchange(metrics.ExchangeError)
	}
	return resp, err
}

func (e *Exchanger) exchange(ctx context.Context, subjectToken string) (TokenResponse, error) {
	form := url.Values{
		"subject_token":      {subjectToken},
		"client_id":          {e.clientID},
		"grant_type":         {GrantTypeTokenExchange},
		"resource":           {e.resource},
		"subject_token_type": {TokenTypeAccessToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("build token exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("perform token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return TokenResponse{}, &ExchangeError{Status: resp.StatusCode, Body: string(payload)}
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return TokenResponse{}, fmt.Errorf("decode token exchange response: %w", err)
	}
	if token.AccessToken == "" {
		return TokenResponse{}, errors.New("token exchange response has no access_token")
	}
	return token, nil
}

func isExchangeRejection(err error) bool {
	var exErr *ExchangeError
	return errors.As(err, &exErr)
}

// endpoint appends elem to the base URL path with exactly one separating
// slash, dropping any query or fragment of the base.
func endpoint(base *url.URL, elem string) string {
	if base == nil {
		return ""
	}
	u := *base
	u.RawQuery = ""
	u.Fragment = ""
	u.RawPath = ""
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.Path += elem
	return u.String()
}
