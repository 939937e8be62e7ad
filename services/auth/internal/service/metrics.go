package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sessions_issued_total",
			Help: "Total number of token pairs issued, by trigger",
		},
		[]string{"trigger"},
	)

	rotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refresh_rotations_total",
			Help: "Total number of refresh token rotations by outcome",
		},
		[]string{"outcome"},
	)

	reuseDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_refresh_reuse_detected_total",
			Help: "Total number of already redeemed refresh tokens presented again",
		},
	)

	tokensRevokedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refresh_tokens_revoked_total",
			Help: "Total number of refresh tokens revoked, by reason",
		},
		[]string{"reason"},
	)
)

// rotationOutcome maps a Rotate result to its metric label.
func rotationOutcome(err error) string {
	if err == nil {
		return "success"
	}
	if kind, ok := RotationKindOf(err); ok {
		return string(kind)
	}
	return "error"
}
