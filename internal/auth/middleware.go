package auth

import (
	"log/slog"
	"net/http"

	"taskgate/internal/platform/httpjson"
	"taskgate/internal/platform/metrics"
	"taskgate/internal/platform/middleware"
	dErrors "taskgate/pkg/domainerrors"
)

// RequireAuth rejects requests whose bearer credential does not verify and
// attaches the identity claims to the context for the ones that do. The
// wrapped handler is never invoked on failure.
func RequireAuth(verifier *Verifier, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifier.Verify(r.Header.Get("Authorization"))
			if err != nil {
				code := dErrors.CodeOf(err)
				if m != nil {
					m.AuthFailures.WithLabelValues(string(code)).Inc()
				}
				logger.WarnContext(r.Context(), "request rejected",
					"reason", string(code),
					"path", r.URL.Path,
					"request_id", middleware.GetRequestID(r.Context()),
				)
				httpjson.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims)))
		})
	}
}
