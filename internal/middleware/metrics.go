package middleware

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

type MetricsMiddleware struct {
	routes          []string
	requestCounter  *metrics.Counter
	inFlight        atomic.Int64
	requestSizeHist *metrics.Histogram
}

// NewMetricsMiddleware labels series by route. Paths outside routes are
// reported as "other" to keep label cardinality bounded.
func NewMetricsMiddleware(routes []string) *MetricsMiddleware {
	m := &MetricsMiddleware{
		routes:          routes,
		requestCounter:  metrics.GetOrCreateCounter("glimpse_http_requests_total"),
		requestSizeHist: metrics.GetOrCreateHistogram("glimpse_http_request_size_bytes"),
	}
	metrics.GetOrCreateGauge("glimpse_http_requests_in_flight", func() float64 {
		return float64(m.inFlight.Load())
	})
	return m
}

func (m *MetricsMiddleware) route(path string) string {
	if slices.Contains(m.routes, path) {
		return path
	}
	return "other"
}

func (m *MetricsMiddleware) WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := m.route(r.URL.Path)

		if r.ContentLength > 0 {
			m.requestSizeHist.Update(float64(r.ContentLength))
		}

		lrw := newLoggingResponseWriter(w)

		m.requestCounter.Inc()
		m.inFlight.Add(1)
		next.ServeHTTP(lrw, r)
		m.inFlight.Add(-1)

		metrics.GetOrCreateHistogram(fmt.Sprintf(`glimpse_http_response_time_seconds{path=%q}`, route)).UpdateDuration(start)
		metrics.GetOrCreateHistogram(fmt.Sprintf(`glimpse_http_response_size_bytes{path=%q}`, route)).Update(float64(lrw.length))
		metrics.GetOrCreateCounter(fmt.Sprintf(`glimpse_http_response_status_total{path=%q,code="%s"}`, route, strconv.Itoa(lrw.statusCode))).Inc()
	})
}

// ServeHTTP exposes every registered metric in Prometheus text format.
func (m *MetricsMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
}
