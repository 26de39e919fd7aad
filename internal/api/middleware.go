package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// statusStreamPath is the SSE route; its connections stay open for as
// long as a browser tab is watching the dashboard, so "duration_ms" on
// that line measures connection lifetime, not request latency, and gets
// logged at Debug instead of Info to keep routine reconnects out of the
// default log level.
const statusStreamPath = "/api/v1/status/stream"

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		}
		if strings.HasPrefix(r.URL.Path, statusStreamPath) {
			slog.Debug("http request", fields...)
			return
		}
		slog.Info("http request", fields...)
	})
}
