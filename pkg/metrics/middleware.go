// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package metrics exposes the prometheus collectors of the proxy and the
// HTTP middleware that feeds them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Path serves the prometheus scrape endpoint and is excluded from collection.
const Path = "/metrics"

// Handler returns the scrape handler.
func Handler() http.Handler { return promhttp.Handler() }

// Collect records request counters and latency for every routed request.
func Collect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			if r.URL.Path == Path {
				return
			}
			route := routePattern(r)
			totalHttpRequests.WithLabelValues(statusLabel(ww.Status()), route, r.Method).Inc()
			responseTime.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}()

		next.ServeHTTP(ww, r)
	})
}

// routePattern uses the matched chi pattern so proxied suffixes do not
// explode label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func statusLabel(code int) string {
	if code == 0 {
		// WrapResponseWriter reports 0 when the handler never wrote a header.
		return strconv.Itoa(http.StatusOK)
	}
	return strconv.Itoa(code)
}
