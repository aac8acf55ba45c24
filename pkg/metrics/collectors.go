// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	responseTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcp_proxy_response_time_seconds",
			Help:    "http response time.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	totalHttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mcp_proxy_http_requests_total", Help: "http requests by code, route and method"},
		[]string{"code", "route", "method"},
	)

	credentialResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mcp_proxy_credential_resolutions_total", Help: "credential resolutions by winning source"},
		[]string{"source"},
	)

	tokenExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mcp_proxy_token_exchanges_total", Help: "token exchange attempts by outcome"},
		[]string{"outcome"},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mcp_proxy_upstream_requests_total", Help: "forwarded calls by upstream status code"},
		[]string{"code"},
	)
)

func init() {
	prometheus.MustRegister(
		responseTime,
		totalHttpRequests,
		credentialResolutions,
		tokenExchanges,
		upstreamRequests,
	)
}

// Token exchange outcomes.
const (
	ExchangeSuccess  = "success"
	ExchangeRejected = "rejected"
	ExchangeError    = "error"
)

// ObserveCredential counts a resolution under the source that produced the
// credential; use "none" when nothing resolved.
func ObserveCredential(source string) {
	credentialResolutions.WithLabelValues(source).Inc()
}

// ObserveExchange counts a token exchange attempt.
func ObserveExchange(outcome string) {
	tokenExchanges.WithLabelValues(outcome).Inc()
}

// ObserveUpstream counts a forwarded call by status code; 0 marks a
// transport failure.
func ObserveUpstream(code int) {
	label := "error"
	if code != 0 {
		label = strconv.Itoa(code)
	}
	upstreamRequests.WithLabelValues(label).Inc()
}
