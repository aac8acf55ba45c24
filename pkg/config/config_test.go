// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(envServerURL, "")
	t.Setenv(envTokens, "")
	t.Setenv(envAuthRequired, "")
	t.Setenv(envPublicAuthRequired, "")
	t.Setenv(envRoutePrefix, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstream != nil {
		t.Fatalf("expected nil upstream, got %v", cfg.Upstream)
	}
	if cfg.RoutePrefix != defaultRoutePrefix {
		t.Fatalf("unexpected prefix %q", cfg.RoutePrefix)
	}
	if cfg.ClientID != defaultClientID {
		t.Fatalf("unexpected client id %q", cfg.ClientID)
	}
	if cfg.AuthRequired {
		t.Fatal("auth should not be required by default")
	}
	if cfg.RequestTimeout != 0 {
		t.Fatalf("expected no outbound timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.Production() {
		t.Fatal("default environment must not be production")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv(envServerURL, "https://mcp.example.com/api")
	t.Setenv(envTokens, `{"access_token":"static-123","refresh_token":"r"}`)
	t.Setenv(envAuthRequired, "")
	t.Setenv(envPublicAuthRequired, "true")
	t.Setenv(envRoutePrefix, "api/tools/")
	t.Setenv(envEnvironment, "Production")
	t.Setenv(envPublicSupabaseURL, "https://proj.supabase.co")
	t.Setenv(envSupabaseAnonKey, "anon")
	t.Setenv(envRequestTimeout, "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Upstream.String(); got != "https://mcp.example.com/api" {
		t.Fatalf("unexpected upstream %q", got)
	}
	if cfg.StaticToken != "static-123" {
		t.Fatalf("unexpected static token %q", cfg.StaticToken)
	}
	if !cfg.AuthRequired {
		t.Fatal("expected auth required from public fallback variable")
	}
	if cfg.RoutePrefix != "/api/tools" {
		t.Fatalf("unexpected prefix %q", cfg.RoutePrefix)
	}
	if !cfg.Production() {
		t.Fatal("expected production environment")
	}
	if cfg.SupabaseURL != "https://proj.supabase.co" || cfg.SupabaseAnonKey != "anon" {
		t.Fatalf("unexpected supabase settings: %q %q", cfg.SupabaseURL, cfg.SupabaseAnonKey)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Fatalf("unexpected request timeout %s", cfg.RequestTimeout)
	}
}

func TestLoadRejectsRelativeServerURL(t *testing.T) {
	t.Setenv(envServerURL, "/relative/path")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for relative MCP_SERVER_URL")
	}
}

func TestLoadRejectsMalformedTokens(t *testing.T) {
	t.Setenv(envServerURL, "")
	t.Setenv(envTokens, "{not-json")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed MCP_TOKENS")
	}
}

func TestParseStaticTokenWithoutAccessToken(t *testing.T) {
	token, err := ParseStaticToken(`{"refresh_token":"only"}`)
	if err != nil {
		t.Fatalf("ParseStaticToken: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token, got %q", token)
	}
}
