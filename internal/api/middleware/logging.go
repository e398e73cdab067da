package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// probePaths are polled by the platform and logged at debug level.
var probePaths = []string{"/v1/ops/health", "/v1/ops/ready"}

// Logger returns a middleware that writes one structured line per request.
// Server errors log at error level and client errors at warn.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := wrapWriter(w, r)

			next.ServeHTTP(ww, r)

			code := statusOf(ww)
			event := levelFor(log, code, r.URL.Path)

			event = event.Str("request_id", GetRequestID(r.Context()))
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				event = event.
					Str("trace_id", sc.TraceID().String()).
					Str("span_id", sc.SpanID().String())
			}
			if route := routePattern(r); route != "" {
				event = event.Str("route", route)
			}

			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", code).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("request completed")
		})
	}
}

func levelFor(log zerolog.Logger, code int, path string) *zerolog.Event {
	switch {
	case code >= http.StatusInternalServerError:
		return log.Error()
	case code >= http.StatusBadRequest:
		return log.Warn()
	}
	for _, p := range probePaths {
		if strings.HasPrefix(path, p) {
			return log.Debug()
		}
	}
	return log.Info()
}
