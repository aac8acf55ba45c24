// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package server wires the proxy handler, health and metrics endpoints into
// a chi router.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/go-core-stack/mcp-token-proxy/pkg/metrics"
)

// HealthPath answers liveness probes.
const HealthPath = "/healthz"

// NewRouter mounts proxy under prefix for every method.
func NewRouter(prefix string, proxy http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Collect)

	r.Handle(prefix, proxy)
	r.Handle(prefix+"/*", proxy)

	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, metrics.Path, metrics.Handler())

	return r
}
