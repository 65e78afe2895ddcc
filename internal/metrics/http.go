package metrics

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		m.collectSystemMetrics()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = io.WriteString(w, m.PrometheusFormat())
	})
}

// HTTPMiddleware records request count, duration and in-flight requests.
func HTTPMiddleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.RecordHTTP(r.Method, r.URL.Path, sw.status, time.Since(start).Seconds())
	})
}

// statusWriter remembers the first status code written.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// knownPaths are reported as-is. Everything else collapses to a
// placeholder so user-controlled paths cannot blow up label cardinality.
var knownPaths = map[string]bool{
	"/":                 true,
	"/healthz":          true,
	"/readyz":           true,
	"/metrics":          true,
	"/v1/recognize":     true,
	"/v1/models":        true,
	"/v1/models/reload": true,
	"/v1/version":       true,
}

// normalizePath maps a request path to a low-cardinality label.
//
// Examples:
//   - /recognize/add%20milk -> /recognize/{query}
//   - /v1/models -> /v1/models
//   - /wp-login.php -> {other}
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	if strings.HasPrefix(path, "/recognize/") {
		return "/recognize/{query}"
	}
	return "{other}"
}

// statusCode converts an HTTP status code to a metric label. Uncommon
// codes are grouped by class.
func statusCode(code int) string {
	switch code {
	case 200, 201, 204, 400, 404, 405, 429, 500, 503, 504:
		return strconv.Itoa(code)
	}

	if code >= 100 && code < 600 {
		return strconv.Itoa(code/100) + "xx"
	}
	return strconv.Itoa(code)
}
