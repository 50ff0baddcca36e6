package httpfront

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// requestLogger logs one structured line per request, mirroring the
// teacher's internal/api/middleware/logger.go.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			ev := logger.Info()
			if sw.status >= 400 {
				ev = logger.Warn()
			}
			if sw.status >= 500 {
				ev = logger.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Int("bytes", sw.bytes).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("request")
		})
	}
}

// extractCredential pulls the Bearer/Passport scheme and token off the
// Authorization header.
func extractCredential(r *http.Request) (scheme, value string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ""
	}
	for _, prefix := range []string{"Bearer ", "Passport "} {
		if len(header) > len(prefix) && header[:len(prefix)] == prefix {
			return header[:len(prefix)-1], header[len(prefix):]
		}
	}
	return "", header
}
