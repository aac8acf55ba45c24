// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestExchangerEndpoints(t *testing.T) {
	cases := map[string]struct {
		base     string
		token    string
		resource string
	}{
		"path":           {"https://mcp.example.com/api", "https://mcp.example.com/api/oauth/token", "https://mcp.example.com/api/mcp"},
		"trailing slash": {"https://mcp.example.com/api/", "https://mcp.example.com/api/oauth/token", "https://mcp.example.com/api/mcp"},
		"host only":      {"https://mcp.example.com", "https://mcp.example.com/oauth/token", "https://mcp.example.com/mcp"},
		"query dropped":  {"https://mcp.example.com/?v=1", "https://mcp.example.com/oauth/token", "https://mcp.example.com/mcp"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			base, err := url.Parse(tc.base)
			if err != nil {
				t.Fatalf("parse base: %v", err)
			}
			e := NewExchanger(nil, base, "next_app")
			if e.TokenURL() != tc.token {
				t.Errorf("token url: got %q, want %q", e.TokenURL(), tc.token)
			}
			if e.Resource() != tc.resource {
				t.Errorf("resource: got %q, want %q", e.Resource(), tc.resource)
			}
		})
	}
}

func TestExchangerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/oauth/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("subject_token") != "session" || r.PostForm.Get("client_id") != "custom-client" {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"mcp-token","expires_in":900,"issued_token_type":"urn:ietf:params:oauth:token-type:access_token"}`))
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	e := NewExchanger(srv.Client(), base, "custom-client")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := e.Exchange(ctx, "session")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if resp.AccessToken != "mcp-token" || resp.ExpiresIn != 900 {
		t.Fatalf("unexpected response %+v", resp)
	}

	cred, err := ExchangeSource{Sessions: stubSessions{token: "session"}, Exchanger: e}.
		Resolve(httptest.NewRequest(http.MethodGet, "http://proxy/", nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !cred.Cacheable() || cred.MaxAge != 900*time.Second {
		t.Fatalf("unexpected credential %+v", cred)
	}
}

func TestExchangerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	_, err = NewExchanger(srv.Client(), base, "next_app").Exchange(context.Background(), "session")

	var exErr *ExchangeError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected ExchangeError, got %v", err)
	}
	if exErr.Status != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", exErr.Status)
	}
}

func TestExchangerMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	if _, err := NewExchanger(srv.Client(), base, "next_app").Exchange(context.Background(), "session"); err == nil {
		t.Fatal("expected error for response without access_token")
	}
}
