package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iho/tripleledger/internal/infrastructure/metrics"
)

// unkeyedCollections are path segments followed by an action rather than an id.
var unkeyedCollections = map[string]bool{
	"audit":  true,
	"ledger": true,
}

// Metrics returns middleware that records HTTP metrics.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &metricsRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			path := normalizePath(r.URL.Path)

			m.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			m.HTTPDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

type metricsRecorder struct {
	http.ResponseWriter

	statusCode int
}

func (r *metricsRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// normalizePath replaces ids with placeholders to bound label cardinality.
// /api/v1/companies/c1/entries/e1/post -> /api/v1/companies/:company/entries/:id/post
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	company := -1
	for i, s := range segments {
		if s == "companies" {
			company = i
			break
		}
	}
	if company < 0 {
		return path
	}

	if i := company + 1; i < len(segments) && segments[i] != "" {
		segments[i] = ":company"
	}
	if i := company + 3; i < len(segments) && segments[i] != "" && !unkeyedCollections[segments[company+2]] {
		segments[i] = ":id"
	}

	return strings.Join(segments, "/")
}
