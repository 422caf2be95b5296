package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muandane/glimpse/internal/browser"
	"github.com/muandane/glimpse/internal/cache"
	"github.com/muandane/glimpse/internal/handlers"
	"github.com/muandane/glimpse/internal/imaging"
	"github.com/muandane/glimpse/internal/middleware"
	"github.com/muandane/glimpse/internal/screenshot"
)

type stubScreenshotter struct{}

func (stubScreenshotter) Screenshot(_ context.Context, req screenshot.Request) (*screenshot.Result, error) {
	img := imaging.EncodedImage{Bytes: []byte{1}, Format: req.Format, Width: 1, Height: 1}
	return &screenshot.Result{Set: &imaging.DerivativeSet{Full: img, Small: img, Thumbnail: img}}, nil
}

type stubBrowser struct{}

func (stubBrowser) Browse(_ context.Context, opts browser.BrowseOptions) (*browser.BrowseResult, error) {
	return &browser.BrowseResult{URL: opts.URL, PageTitle: "stub"}, nil
}

func (stubBrowser) Record(context.Context, browser.RecordOptions) ([]byte, error) {
	return []byte("GIF89a"), nil
}

func newTestHandler(t *testing.T, apiKey string, limiter *middleware.RateLimiter) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := cache.NewManager(cache.NewMemoryStore(0), "memory", logger)

	h := Handlers{
		Screenshot: handlers.NewScreenshotHandler(stubScreenshotter{}, logger),
		Browse:     handlers.NewBrowseHandler(stubBrowser{}, c, time.Hour, logger),
		Content:    handlers.NewContentHandler(c, time.Hour, logger),
		Health:     handlers.NewHealthHandler(nil, logger),
		Stats:      handlers.NewStatsHandler(c),
	}
	return NewRouter(logger).Setup(h, Options{APIKey: apiKey, RateLimiter: limiter})
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterAuth(t *testing.T) {
	h := newTestHandler(t, "secret", nil)

	tests := []struct {
		path  string
		token string
		code  int
	}{
		{path: "/health", code: http.StatusOK},
		{path: "/metrics", code: http.StatusOK},
		{path: "/healthz", code: http.StatusUnauthorized},
		{path: "/stats", code: http.StatusUnauthorized},
		{path: "/stats", token: "secret", code: http.StatusOK},
		{path: "/screenshot?url=https://example.com", code: http.StatusUnauthorized},
		{path: "/screenshot?url=https://example.com", token: "wrong", code: http.StatusForbidden},
		{path: "/screenshot?url=https://example.com", token: "secret", code: http.StatusOK},
		{path: "/browse?url=https://example.com", token: "secret", code: http.StatusOK},
		{path: "/video?url=https://example.com", token: "secret", code: http.StatusOK},
	}
	for _, tt := range tests {
		rec := get(h, tt.path, tt.token)
		assert.Equal(t, tt.code, rec.Code, "%s token=%q", tt.path, tt.token)
		assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader), tt.path)
	}
}

func TestRouterNoAuthMode(t *testing.T) {
	h := newTestHandler(t, "none", nil)
	assert.Equal(t, http.StatusOK, get(h, "/screenshot?url=https://example.com", "").Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	h := newTestHandler(t, "", nil)

	rec := get(h, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NotFound", body.Error)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/screenshot", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouterRateLimitsBrowserRoutes(t *testing.T) {
	limiter := middleware.NewRateLimiter(0.01, 1, BrowserRoutes(), nil)
	h := newTestHandler(t, "", limiter)

	assert.Equal(t, http.StatusOK, get(h, "/screenshot?url=https://example.com", "").Code)
	rec := get(h, "/screenshot?url=https://example.com", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Content and health routes are not limited.
	assert.Equal(t, http.StatusOK, get(h, "/health", "").Code)
	assert.Equal(t, http.StatusOK, get(h, "/health", "").Code)
}
