package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type wrappedWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *wrappedWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// silentPaths are polled often and only logged on errors (status >= 400).
var silentPaths = map[string]bool{
	"/api/health":             true,
	"/api/translation/ollama": true,
}

const progressPrefix = "/api/subtitle/progress/"

// Logger writes one access log line per request.
func Logger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &wrappedWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			silent := silentPaths[r.URL.Path] || strings.HasPrefix(r.URL.Path, progressPrefix)
			if silent && wrapped.statusCode < 400 {
				return
			}
			fields := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			}
			if wrapped.statusCode >= 500 {
				log.Warnw("request", fields...)
				return
			}
			log.Infow("request", fields...)
		})
	}
}
