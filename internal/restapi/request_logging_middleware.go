package restapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Dreaming-Lion/Re-Route/internal/logging"
)

// NewRequestLoggingMiddleware logs one line per request and stores a logger
// carrying the request ID in the request context.
func NewRequestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := GetRequestID(r.Context())

			reqLogger := logger
			if reqID != "" {
				reqLogger = logger.With(slog.String("request_id", reqID))
			}
			r = r.WithContext(logging.WithLogger(r.Context(), reqLogger))

			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r)

			logging.LogHTTPRequest(reqLogger,
				r.Method,
				r.URL.Path,
				wrapped.statusCode,
				float64(time.Since(start).Nanoseconds())/1e6,
				slog.String("user_agent", r.Header.Get("User-Agent")),
				slog.String("component", "http_server"))
		})
	}
}
