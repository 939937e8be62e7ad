package proxy

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/anvit-dd/pi-drive/pkg/authcookie"
	pkghttputil "github.com/anvit-dd/pi-drive/pkg/httputil"
	pkgmiddleware "github.com/anvit-dd/pi-drive/pkg/middleware"
	"github.com/anvit-dd/pi-drive/services/edge/internal/config"
)

// Backend names.
const (
	Auth = "auth"
	App  = "app"
)

// Identity headers set from the verified session on requests to the app
// backend. Inbound copies are always removed.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
)

// ServiceProxy manages reverse proxies to the backend services.
type ServiceProxy struct {
	routes map[string]*httputil.ReverseProxy
	logger *slog.Logger
}

// NewServiceProxy creates reverse proxies for the auth service and the app
// backend. The auth service receives requests untouched; the app backend
// receives the session identity and never the refresh cookie.
func NewServiceProxy(cfg *config.Config, logger *slog.Logger) *ServiceProxy {
	sp := &ServiceProxy{
		routes: make(map[string]*httputil.ReverseProxy),
		logger: logger,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ProxyDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.ProxyMaxIdleConns,
		MaxIdleConnsPerHost:   cfg.ProxyMaxIdleConns,
		IdleConnTimeout:       cfg.ProxyIdleTimeout,
		ResponseHeaderTimeout: cfg.ProxyResponseTimeout,
		TLSHandshakeTimeout:   5 * time.Second,
	}

	backends := []struct {
		name     string
		rawURL   string
		identity bool
	}{
		{name: Auth, rawURL: cfg.AuthServiceURL},
		{name: App, rawURL: cfg.AppServiceURL, identity: true},
	}

	for _, b := range backends {
		target, err := url.Parse(b.rawURL)
		if err != nil || target.Host == "" {
			logger.Error("invalid service URL",
				slog.String("service", b.name),
				slog.String("url", b.rawURL),
			)
			continue
		}

		identity := b.identity
		sp.routes[b.name] = &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
				pr.SetXForwarded()
				if identity {
					setIdentity(pr)
				}
			},
			Transport:    transport,
			ErrorHandler: sp.errorHandler(b.name),
		}

		logger.Info("registered service proxy",
			slog.String("service", b.name),
			slog.String("target", b.rawURL),
		)
	}

	return sp
}

// setIdentity replaces any client-supplied identity headers with the
// session's and drops the refresh cookie.
func setIdentity(pr *httputil.ProxyRequest) {
	pr.Out.Header.Del(HeaderUserID)
	pr.Out.Header.Del(HeaderUserEmail)
	authcookie.StripRefresh(pr.Out)

	if s, ok := pkgmiddleware.SessionFromContext(pr.In.Context()); ok {
		pr.Out.Header.Set(HeaderUserID, s.User.ID)
		pr.Out.Header.Set(HeaderUserEmail, s.User.Email)
	}
}

// Handler returns an http.Handler that proxies requests to the named backend service.
func (sp *ServiceProxy) Handler(serviceName string) http.Handler {
	proxy, ok := sp.routes[serviceName]
	if !ok {
		sp.logger.Error("no proxy registered for service", slog.String("service", serviceName))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusBadGateway, "SERVICE_UNAVAILABLE", "service not configured")
		})
	}
	return proxy
}

// errorHandler returns an error handler for the reverse proxy that logs errors
// and writes a JSON error response.
func (sp *ServiceProxy) errorHandler(serviceName string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		sp.logger.ErrorContext(r.Context(), "proxy error",
			slog.String("service", serviceName),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "BAD_GATEWAY", "upstream service unavailable")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	pkghttputil.WriteJSON(w, status, pkghttputil.Response{
		Error: &pkghttputil.ErrorResponse{Code: code, Message: message},
	})
}
