package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ems/internal/gate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// statusWriter records the status code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// RequestLogger logs one line per request.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", sw.status, "took", time.Since(start))
		})
	}
}

// HTTPMetrics counts requests by route pattern.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
}

// NewHTTPMetrics registers the request counter on reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ems_http_requests_total",
			Help: "Requests served by the local web front.",
		}, []string{"method", "route", "status"}),
	}
}

// Middleware labels by the matched mux pattern so path parameters do not explode cardinality.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := newStatusWriter(w)
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
	})
}

// Guard applies the route table to every request. Unresolved sessions wait for resolution.
func Guard(sessions Sessions, table *gate.Table, logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := table.Evaluate(sessions.Snapshot(), r.URL.Path)
			if res.Decision == gate.Suspend {
				if err := sessions.WaitResolved(r.Context()); err != nil {
					return
				}
				res = table.Evaluate(sessions.Snapshot(), r.URL.Path)
			}

			switch res.Decision {
			case gate.Allow:
				next.ServeHTTP(w, r)
			case gate.RedirectLogin, gate.RedirectHome:
				logger.Debug("route denied", "path", r.URL.Path, "decision", res.Decision, "target", res.Target)
				http.Redirect(w, r, res.Target, http.StatusFound)
			default:
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			}
		})
	}
}
