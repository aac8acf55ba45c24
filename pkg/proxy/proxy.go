// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/mcp-token-proxy/pkg/auth"
	"github.com/go-core-stack/mcp-token-proxy/pkg/config"
	"github.com/go-core-stack/mcp-token-proxy/pkg/metrics"
	"github.com/go-core-stack/mcp-token-proxy/pkg/supabase"
)

const (
	acceptHeader    = "application/json, text/event-stream"
	contentTypeJSON = "application/json"
)

// requestDenyHeaders are never copied onto the upstream request; the
// transport manages them itself.
var requestDenyHeaders = map[string]struct{}{
	"Host":              {},
	"Connection":        {},
	"Content-Length":    {},
	"Transfer-Encoding": {},
	"Expect":            {},
}

// responseFramingHeaders describe the upstream body framing, which no longer
// applies once the body is buffered and possibly re-encoded.
var responseFramingHeaders = map[string]struct{}{
	"Content-Length":    {},
	"Transfer-Encoding": {},
	"Connection":        {},
}

// Proxy forwards browser MCP requests to the remote MCP server, attaching the
// credential picked by the resolver.
type Proxy struct {
	// cfg keeps runtime knobs such as the upstream URL and route prefix.
	cfg config.Config
	// client performs outbound HTTP requests, including token exchanges.
	client *http.Client
	// resolver picks the bearer credential for each request.
	resolver *auth.Resolver
	// logger emits structured logs for observability.
	logger zerolog.Logger
	// baseURL is the parsed upstream address; nil when unconfigured.
	baseURL *url.URL
}

// New constructs a Proxy backed by an http.Client configured with sensible
// connection pooling defaults. The credential sources are, in order: the
// X-MCP-Access-Token header, the X-MCP-Access-Token cookie, the static token
// and the session token exchange.
func New(cfg config.Config) (*Proxy, error) {
	// Build a transport that honours system proxies and keeps connections warm.
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, // nolint:gosec -- opt-in for development scenarios
		},
	}

	client := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: transport,
	}

	logger := log.With().Str("component", "proxy").Logger()

	sources := []auth.Source{
		auth.HeaderSource{},
		auth.CookieSource{},
		auth.StaticSource{Token: cfg.StaticToken},
	}

	if cfg.Upstream != nil {
		exchange := auth.ExchangeSource{
			Exchanger: auth.NewExchanger(client, cfg.Upstream, cfg.ClientID),
		}
		if cfg.SupabaseURL != "" && cfg.SupabaseAnonKey != "" {
			sessions, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseAuthCookie, client)
			if err != nil {
				return nil, fmt.Errorf("configure session provider: %w", err)
			}
			exchange.Sessions = sessions
		} else {
			logger.Info().Msg("supabase not configured; session token exchange disabled")
		}
		sources = append(sources, exchange)
	} else {
		logger.Warn().Msg("MCP_SERVER_URL not set; proxied requests will fail")
	}

	return &Proxy{
		cfg:      cfg,
		client:   client,
		resolver: auth.NewResolver(sources...),
		logger:   logger,
		baseURL:  cloneURL(cfg.Upstream),
	}, nil
}

// ServeHTTP resolves the credential, forwards the buffered request and
// relays the buffered upstream response.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	event := p.logger.With().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Logger()

	if p.baseURL == nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Message: "MCP_SERVER_URL environment variable is not set. Please set it to the URL of your MCP server.",
		})
		event.Error().Msg("upstream not configured")
		return
	}

	cred, err := p.resolver.Resolve(r, p.cfg.AuthRequired)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "Failed to obtain access token from any source."})
		event.Warn().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("request rejected")
		return
	}
	source := "none"
	if !cred.Empty() {
		source = string(cred.Provenance)
	}
	event = event.With().Str("credential", source).Logger()

	body, err := readForwardBody(r)
	if err != nil {
		var syntaxErr *invalidJSONError
		if errors.As(err, &syntaxErr) {
			writeJSON(w, http.StatusBadRequest, errorBody{Message: "Invalid JSON request body", Error: syntaxErr.Error()})
		} else {
			writeJSON(w, http.StatusBadRequest, errorBody{Message: "Failed to read request body", Error: err.Error()})
		}
		event.Warn().Err(err).Msg("request body rejected")
		return
	}

	resp, err := p.forwardRequest(r, cred, body)
	if err != nil {
		metrics.ObserveUpstream(0)
		writeJSON(w, http.StatusBadGateway, errorBody{Message: "Proxy request failed", Error: err.Error()})
		event.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("request failed")
		return
	}
	metrics.ObserveUpstream(resp.StatusCode)

	payload, err := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil {
		event.Error().
			Err(closeErr).
			Msg("close upstream response body failed")
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Message: "Proxy request failed", Error: err.Error()})
		event.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("read upstream response failed")
		return
	}

	if resp.StatusCode >= http.StatusBadRequest {
		const maxLogBody = 64 * 1024 // limit to a manageable payload for logs.
		logged := payload
		if len(logged) > maxLogBody {
			logged = logged[:maxLogBody]
		}
		event.Warn().
			Int("status", resp.StatusCode).
			Bytes("upstream_body", logged).
			Msg("upstream returned error")
	}

	p.relay(w, resp, payload, cred)

	event.Info().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request proxied")
}

// forwardRequest builds the upstream request with filtered headers and the
// resolved credential, and performs it.
func (p *Proxy) forwardRequest(r *http.Request, cred auth.Credential, body []byte) (*http.Response, error) {
	targetURL := p.targetURL(r.URL)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	copyRequestHeaders(upstreamReq.Header, r.Header)
	if !cred.Empty() {
		upstreamReq.Header.Set("Authorization", "Bearer "+cred.Token)
	}
	upstreamReq.Header.Set("Accept", acceptHeader)
	upstreamReq.Host = targetURL.Host

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		return nil, fmt.Errorf("perform upstream request: %w", err)
	}
	return resp, nil
}

// relay writes the buffered upstream response, normalizing JSON bodies.
func (p *Proxy) relay(w http.ResponseWriter, resp *http.Response, payload []byte, cred auth.Credential) {
	out := payload
	isJSON := false
	if normalized, ok := normalizeJSON(payload); ok {
		out = normalized
		isJSON = true
	}

	if isJSON {
		w.Header().Set("Content-Type", contentTypeJSON)
	}
	copyResponseHeaders(w.Header(), resp.Header)

	if cred.Cacheable() {
		http.SetCookie(w, cred.Cookie(p.cfg.Production()))
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(out); err != nil {
		p.logger.Error().Err(err).Msg("write response failed")
	}
}

// targetURL maps {prefix}{suffix}?{query} onto {base}/mcp{suffix}?{query}.
func (p *Proxy) targetURL(requestURL *url.URL) *url.URL {
	suffix := strings.TrimPrefix(requestURL.Path, p.cfg.RoutePrefix)

	target := cloneURL(p.baseURL)
	basePath := target.Path
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}
	target.Path = basePath + "mcp" + suffix
	target.RawPath = ""
	target.RawQuery = requestURL.RawQuery
	target.Fragment = ""
	return target
}

// readForwardBody returns nil for GET/HEAD, a re-encoded document for JSON
// requests and the raw bytes otherwise.
func readForwardBody(r *http.Request) ([]byte, error) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}

	if !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), contentTypeJSON) {
		return raw, nil
	}
	normalized, ok := normalizeJSON(raw)
	if !ok {
		return nil, &invalidJSONError{err: json.Unmarshal(raw, new(any))}
	}
	return normalized, nil
}

// normalizeJSON decodes a single JSON document and re-encodes it compactly.
// Numbers keep their original literal form.
func normalizeJSON(raw []byte) ([]byte, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		// trailing data, e.g. an SSE stream with several events
		return nil, false
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, false
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), true
}

// cloneURL makes a shallow copy of the provided URL pointer.
func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// copyRequestHeaders appends all inbound headers except the denied ones.
func copyRequestHeaders(dst, src http.Header) {
	for k, vv := range src {
		if _, denied := requestDenyHeaders[http.CanonicalHeaderKey(k)]; denied {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// copyResponseHeaders mirrors upstream headers onto the writer, replacing
// any value already set.
func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		if _, framing := responseFramingHeaders[http.CanonicalHeaderKey(k)]; framing {
			continue
		}
		dst[http.CanonicalHeaderKey(k)] = append([]string(nil), vv...)
	}
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// invalidJSONError marks a request body announced as JSON that does not parse.
type invalidJSONError struct {
	err error
}

// Error implements the error interface for invalidJSONError.
func (e *invalidJSONError) Error() string {
	if e.err == nil {
		return "invalid JSON document"
	}
	return e.err.Error()
}

// Unwrap exposes the underlying decode error.
func (e *invalidJSONError) Unwrap() error {
	return e.err
}
