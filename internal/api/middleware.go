package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"agencydesk/internal/types"
)

// RequestID assigns each request an ID, taken from the X-Request-Id header
// when the caller supplies one, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

// ActorResolver extracts the authenticated identity resolved by the upstream
// gateway from trusted headers and stores it as the request Actor. Requests
// without an identity are rejected; authentication itself happens upstream.
func ActorResolver(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		role := types.ActorRole(r.Header.Get("X-User-Role"))
		if userID == "" || role == "" {
			Error(w, r, types.NewAppError(types.ErrCodePermissionRole,
				"request is missing a resolved identity", nil))
			return
		}

		actor := types.Actor{
			ID:       userID,
			Role:     role,
			AgencyID: r.Header.Get("X-Agency-Id"),
			ClientID: r.Header.Get("X-Client-Id"),
		}
		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), actor)))
	})
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one line per request with method, path, status, and
// duration.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", types.GetRequestID(r.Context()),
			)
		})
	}
}
