package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Hervar88/DentiFlow/internal/observability/metrics"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// RequestLogger logs one structured line per request and records its latency.
// It expects chi's RequestID middleware to run first.
func RequestLogger(logger *logging.Logger, m *metrics.SchedulingMetrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			m.ObserveHTTP(r.Method, strconv.Itoa(status), elapsed.Seconds())

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"request_id", chimw.GetReqID(r.Context()),
				"remote_ip", r.RemoteAddr,
				"duration_ms", elapsed.Milliseconds(),
			}
			switch {
			case status >= 500:
				logger.Error("request completed", attrs...)
			case r.URL.Path == "/health" || r.URL.Path == "/metrics":
				logger.Debug("request completed", attrs...)
			default:
				logger.Info("request completed", attrs...)
			}
		})
	}
}
