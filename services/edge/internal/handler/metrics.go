package handler

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/anvit-dd/pi-drive/pkg/httputil"
)

// metricsIPAllowlist returns middleware that restricts access to requests
// from IPs within the configured CIDR ranges. An empty list blocks everyone.
func metricsIPAllowlist(cidrs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("invalid metrics CIDR, skipping", slog.String("cidr", cidr), slog.String("error", err.Error()))
			continue
		}
		nets = append(nets, ipNet)
	}

	allowed := func(ip net.IP) bool {
		for _, n := range nets {
			if n.Contains(ip) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// RemoteAddr only: forwarded headers are client controlled.
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			if ip := net.ParseIP(host); ip == nil || !allowed(ip) {
				logger.Warn("metrics access denied", slog.String("ip", host))
				httputil.WriteJSON(w, http.StatusForbidden, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "FORBIDDEN", Message: "metrics endpoint is restricted"},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
