package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"hebrewfeed/internal/metrics"

	"github.com/rs/zerolog"
)

// GetClientIP extracts the real client IP address from the request,
// checking X-Forwarded-For and X-Real-IP headers for reverse proxy setups.
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For can hold a chain: client, proxy1, proxy2
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// LoggingMiddleware returns a middleware that logs HTTP request details with
// structured logging and records request metrics.
func LoggingMiddleware(logger zerolog.Logger, rec metrics.Recorder) func(http.Handler) http.Handler {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)

			var logEvent *zerolog.Event
			switch {
			case rw.statusCode >= 500:
				logEvent = logger.Error()
			case rw.statusCode >= 400:
				logEvent = logger.Warn()
			case r.URL.Path == "/health" || r.URL.Path == "/metrics":
				logEvent = logger.Debug()
			default:
				logEvent = logger.Info()
			}

			logEvent.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("query", r.URL.RawQuery).
				Int("status", rw.statusCode).
				Dur("duration", duration).
				Str("client_ip", GetClientIP(r)).
				Str("user_agent", r.UserAgent()).
				Int64("bytes_written", rw.bytesWritten).
				Str("proto", r.Proto)

			if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
				logEvent.Str("request_id", reqID)
			}
			if actor := RequestingActor(r.Context()); actor != "" {
				logEvent.Str("actor_did", actor)
			}

			logEvent.Msgf("http: %s %s %d", r.Method, r.URL.Path, rw.statusCode)

			rec.HTTPRequest(r.Method, r.URL.Path, rw.statusCode, duration)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code and bytes written
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
