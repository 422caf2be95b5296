package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, body)
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler("ok"), tag("inner"), nil, tag("outer"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestWithAuth(t *testing.T) {
	h := WithAuth(AuthConfig{Token: "secret", ExcludedPaths: []string{"/health"}}, discardLogger())(okHandler("ok"))

	tests := []struct {
		name    string
		path    string
		header  string
		code    int
		message string
	}{
		{name: "valid token", path: "/api/v1/screenshot", header: "Bearer secret", code: http.StatusOK},
		{name: "lowercase scheme", path: "/api/v1/screenshot", header: "bearer secret", code: http.StatusOK},
		{name: "missing header", path: "/api/v1/screenshot", code: http.StatusUnauthorized, message: "Authorization header missing"},
		{name: "wrong scheme", path: "/api/v1/screenshot", header: "Basic secret", code: http.StatusUnauthorized, message: "Invalid authorization header format"},
		{name: "no token", path: "/api/v1/screenshot", header: "Bearer", code: http.StatusUnauthorized, message: "Invalid authorization header format"},
		{name: "wrong token", path: "/api/v1/screenshot", header: "Bearer nope", code: http.StatusForbidden, message: "Invalid API key"},
		{name: "excluded path", path: "/health", code: http.StatusOK},
		{name: "excluded path prefix is not exempt", path: "/healthz", code: http.StatusUnauthorized, message: "Authorization header missing"},
		{name: "excluded path subtree is not exempt", path: "/health/debug", code: http.StatusUnauthorized, message: "Authorization header missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.code, rec.Code)
			if tt.message != "" {
				body := decodeError(t, rec)
				assert.Equal(t, tt.code, body.Code)
				assert.Equal(t, tt.message, body.Message)
			}
			if tt.code == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestWithAuthDisabled(t *testing.T) {
	for _, token := range []string{"", "none"} {
		h := WithAuth(AuthConfig{Token: token}, discardLogger())(okHandler("ok"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/screenshot", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "token %q", token)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, []string{"/api/"}, discardLogger())
	h := rl.Middleware(okHandler("ok"))

	send := func(path, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("/api/v1/screenshot", "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("/api/v1/screenshot", "10.0.0.1:1001").Code)

	rec := send("/api/v1/screenshot", "10.0.0.1:1002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RateLimited", decodeError(t, rec).Error)

	// Other clients and unlimited paths are unaffected.
	assert.Equal(t, http.StatusOK, send("/api/v1/screenshot", "10.0.0.2:1000").Code)
	assert.Equal(t, http.StatusOK, send("/health", "10.0.0.1:1003").Code)
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(1, 1, []string{"/"}, nil)
	now := time.Now()
	rl.limiterFor("10.0.0.1", now.Add(-2*limiterIdleTTL))
	rl.limiterFor("10.0.0.2", now)

	assert.Equal(t, 1, rl.sweep(now))
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "10.0.0.2")
}

func TestRateLimiterDisabled(t *testing.T) {
	next := okHandler("ok")
	rl := NewRateLimiter(0, 0, []string{"/"}, nil)
	h := rl.Middleware(next)
	for range 10 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestWithGzip(t *testing.T) {
	large := strings.Repeat("glimpse ", 200)

	t.Run("large body is compressed", func(t *testing.T) {
		h := WithGzip(MinGzipSize)(okHandler(large))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip, deflate")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
		assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))
		zr, err := gzip.NewReader(rec.Body)
		require.NoError(t, err)
		got, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, large, string(got))
	})

	t.Run("small body passes through", func(t *testing.T) {
		h := WithGzip(MinGzipSize)(okHandler("tiny"))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Content-Encoding"))
		assert.Equal(t, "tiny", rec.Body.String())
	})

	t.Run("images are not recompressed", func(t *testing.T) {
		img := bytes.Repeat([]byte{0xff}, 2*MinGzipSize)
		h := WithGzip(MinGzipSize)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(img)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Content-Encoding"))
		assert.Equal(t, img, rec.Body.Bytes())
	})

	t.Run("client without gzip", func(t *testing.T) {
		h := WithGzip(MinGzipSize)(okHandler(large))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Empty(t, rec.Header().Get("Content-Encoding"))
		assert.Equal(t, large, rec.Body.String())
	})

	t.Run("status code is kept", func(t *testing.T) {
		h := WithGzip(MinGzipSize)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = io.WriteString(w, "short")
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, "short", rec.Body.String())
	})
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream")
	}), WithLogging(logger), WithRequestID)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/browse", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "/api/v1/browse", entry["path"])
	assert.EqualValues(t, http.StatusBadGateway, entry["status"])
	assert.EqualValues(t, len("upstream"), entry["size"])
	assert.NotEmpty(t, entry["request_id"])
}

func TestMetricsMiddleware(t *testing.T) {
	m := NewMetricsMiddleware([]string{"/api/v1/screenshot"})
	h := m.WithMetrics(okHandler("ok"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/screenshot", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/path", nil))

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rec.Body.String()

	assert.Contains(t, out, `glimpse_http_response_status_total{path="/api/v1/screenshot",code="200"}`)
	assert.Contains(t, out, `glimpse_http_response_status_total{path="other",code="200"}`)
	assert.NotContains(t, out, "/random/path")
	assert.Contains(t, out, "glimpse_http_requests_in_flight")
}
