// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envListenAddr             = "MCP_LISTEN_ADDR"
	envServerURL              = "MCP_SERVER_URL"
	envTokens                 = "MCP_TOKENS"
	envAuthRequired           = "MCP_AUTH_REQUIRED"
	envPublicAuthRequired     = "NEXT_PUBLIC_MCP_AUTH_REQUIRED"
	envRoutePrefix            = "MCP_PROXY_PREFIX"
	envClientID               = "MCP_CLIENT_ID"
	envEnvironment            = "MCP_ENVIRONMENT"
	envSupabaseURL            = "SUPABASE_URL"
	envPublicSupabaseURL      = "NEXT_PUBLIC_SUPABASE_URL"
	envSupabaseAnonKey        = "SUPABASE_ANON_KEY"
	envPublicSupabaseAnonKey  = "NEXT_PUBLIC_SUPABASE_ANON_KEY"
	envSupabaseAuthCookie     = "SUPABASE_AUTH_COOKIE"
	envRequestTimeout         = "MCP_REQUEST_TIMEOUT"
	envInsecureSkipVerify     = "MCP_UPSTREAM_INSECURE"
	envLogLevel               = "MCP_LOG_LEVEL"
	envServerReadTimeout      = "MCP_SERVER_READ_TIMEOUT"
	envServerWriteTimeout     = "MCP_SERVER_WRITE_TIMEOUT"
	envServerIdleTimeout      = "MCP_SERVER_IDLE_TIMEOUT"
	envGracefulShutdown       = "MCP_GRACEFUL_SHUTDOWN"
	defaultListenAddr         = "127.0.0.1:8080"
	defaultRoutePrefix        = "/api/oap_mcp"
	defaultClientID           = "next_app"
	defaultEnvironment        = "development"
	defaultLogLevel           = "info"
	defaultServerReadTimeout  = 30 * time.Second
	defaultServerWriteTimeout = 30 * time.Second
	defaultServerIdleTimeout  = 120 * time.Second
	defaultGracefulShutdown   = 10 * time.Second

	// EnvironmentProduction enables Secure on cookies issued by the proxy.
	EnvironmentProduction = "production"
)

// Config captures runtime settings for the proxy.
type Config struct {
	ListenAddr string
	// Upstream is the remote MCP base URL. A nil value is allowed at load
	// time; every proxied call then fails with 500.
	Upstream     *url.URL
	StaticToken  string
	AuthRequired bool
	RoutePrefix  string
	ClientID     string
	Environment  string

	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseAuthCookie string

	// RequestTimeout bounds outbound calls; zero leaves them unbounded.
	RequestTimeout          time.Duration
	InsecureSkipVerify      bool
	LogLevel                string
	ServerReadTimeout       time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	GracefulShutdownTimeout time.Duration
}

// Production reports whether the proxy runs in a production environment.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, EnvironmentProduction)
}

// Load reads configuration from environment variables and validates the
// values that are present.
func Load() (Config, error) {
	var upstream *url.URL
	if raw := strings.TrimSpace(os.Getenv(envServerURL)); raw != "" {
		parsed, err := ParseUpstream(raw)
		if err != nil {
			return Config{}, err
		}
		upstream = parsed
	}

	staticToken, err := ParseStaticToken(os.Getenv(envTokens))
	if err != nil {
		return Config{}, err
	}

	prefix, err := normalizePrefix(getString(envRoutePrefix, defaultRoutePrefix))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:              getString(envListenAddr, defaultListenAddr),
		Upstream:                upstream,
		StaticToken:             staticToken,
		AuthRequired:            getBool(envAuthRequired, getBool(envPublicAuthRequired, false)),
		RoutePrefix:             prefix,
		ClientID:                getString(envClientID, defaultClientID),
		Environment:             strings.ToLower(getString(envEnvironment, defaultEnvironment)),
		SupabaseURL:             getString(envSupabaseURL, getString(envPublicSupabaseURL, "")),
		SupabaseAnonKey:         getString(envSupabaseAnonKey, getString(envPublicSupabaseAnonKey, "")),
		SupabaseAuthCookie:      getString(envSupabaseAuthCookie, ""),
		RequestTimeout:          getDuration(envRequestTimeout, 0),
		InsecureSkipVerify:      getBool(envInsecureSkipVerify, false),
		LogLevel:                strings.ToLower(getString(envLogLevel, defaultLogLevel)),
		ServerReadTimeout:       getDuration(envServerReadTimeout, defaultServerReadTimeout),
		ServerWriteTimeout:      getDuration(envServerWriteTimeout, defaultServerWriteTimeout),
		ServerIdleTimeout:       getDuration(envServerIdleTimeout, defaultServerIdleTimeout),
		GracefulShutdownTimeout: getDuration(envGracefulShutdown, defaultGracefulShutdown),
	}

	return cfg, nil
}

// ParseUpstream validates the remote MCP base URL.
func ParseUpstream(raw string) (*url.URL, error) {
	upstream, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", envServerURL, err)
	}
	if !upstream.IsAbs() || upstream.Host == "" {
		return nil, fmt.Errorf("%s must be absolute (scheme://host)", envServerURL)
	}
	return upstream, nil
}

// ParseStaticToken extracts access_token from the MCP_TOKENS JSON blob. An
// empty blob, or one without access_token, yields an empty token; malformed
// JSON is rejected.
func ParseStaticToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	var blob struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return "", fmt.Errorf("invalid %s: %w", envTokens, err)
	}
	return strings.TrimSpace(blob.AccessToken), nil
}

func normalizePrefix(prefix string) (string, error) {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "", errors.New("MCP_PROXY_PREFIX must not be empty or /")
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix, nil
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
