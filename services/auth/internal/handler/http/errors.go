package http

import (
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
	"github.com/anvit-dd/pi-drive/pkg/httputil"
	"github.com/anvit-dd/pi-drive/pkg/logger"
	"github.com/anvit-dd/pi-drive/pkg/token"
	"github.com/anvit-dd/pi-drive/services/auth/internal/service"
)

// writeServiceError renders a service failure. Rejected credentials are
// logged with their kind and answered with the same 401; store failures are
// always a 500, whatever they wrap.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, l *slog.Logger) {
	if service.IsStoreError(err) {
		httputil.WriteError(w, r, apperrors.Internal(err), l)
		return
	}

	if kind, ok := securityKind(err); ok {
		logger.WithContext(r.Context(), l).WarnContext(r.Context(), "credential rejected",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
		httputil.WriteError(w, r, apperrors.ErrUnauthorized, l)
		return
	}

	httputil.WriteError(w, r, err, l)
}

// securityKind names the reason behind a rejected token.
func securityKind(err error) (string, bool) {
	if kind, ok := service.RotationKindOf(err); ok {
		return string(kind), true
	}
	if kind, ok := token.KindOf(err); ok {
		return string(kind), true
	}
	var appErr *apperrors.AppError
	if errors.Is(err, apperrors.ErrUnauthorized) && !errors.As(err, &appErr) {
		return "unauthorized", true
	}
	return "", false
}
