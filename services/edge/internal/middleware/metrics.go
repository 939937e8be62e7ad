package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gateRedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_gate_redirects_total",
			Help: "Total number of page requests redirected by the session gate",
		},
		[]string{"target"},
	)

	silentRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_silent_refresh_total",
			Help: "Total number of silent refresh attempts by outcome",
		},
		[]string{"outcome"},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_rate_limited_total",
			Help: "Total number of requests rejected by the auth rate limiter",
		},
	)
)
