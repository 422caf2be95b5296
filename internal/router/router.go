package router

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/muandane/glimpse/internal/handlers"
	"github.com/muandane/glimpse/internal/middleware"
)

// Routes that drive the browser and are subject to rate limiting.
var browserRoutes = []string{"/screenshot", "/browse", "/video"}

var publicRoutes = []string{"/health", "/metrics"}

type Handlers struct {
	Screenshot *handlers.ScreenshotHandler
	Browse     *handlers.BrowseHandler
	Content    *handlers.ContentHandler
	Health     *handlers.HealthHandler
	Stats      *handlers.StatsHandler
}

type Options struct {
	// APIKey is the bearer token; empty or "none" disables auth.
	APIKey      string
	RateLimiter *middleware.RateLimiter
}

type Router struct {
	engine *gin.Engine
	logger *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.HandleMethodNotAllowed = true
	return &Router{
		engine: engine,
		logger: logger,
	}
}

func (r *Router) Setup(h Handlers, opts Options) http.Handler {
	metricsMiddleware := middleware.NewMetricsMiddleware([]string{
		"/health", "/metrics", "/stats",
		"/screenshot", "/browse", "/video",
		"/minimize", "/extract_text", "/reader", "/markdown",
	})

	// Register routes
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/metrics", gin.WrapH(metricsMiddleware))
	r.engine.GET("/stats", h.Stats.Stats)

	r.engine.GET("/screenshot", h.Screenshot.Screenshot)
	r.engine.GET("/browse", h.Browse.Browse)
	r.engine.GET("/video", h.Browse.Video)

	r.engine.POST("/minimize", h.Content.Minimize)
	r.engine.POST("/extract_text", h.Content.ExtractText)
	r.engine.POST("/reader", h.Content.Reader)
	r.engine.POST("/markdown", h.Content.Markdown)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{
			Error: "NotFound", Code: http.StatusNotFound, Message: "no route for " + c.Request.URL.Path,
		})
	})
	r.engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, handlers.ErrorResponse{
			Error: "MethodNotAllowed", Code: http.StatusMethodNotAllowed, Message: c.Request.Method + " is not allowed on " + c.Request.URL.Path,
		})
	})

	rl := opts.RateLimiter
	if rl == nil {
		rl = middleware.NewRateLimiter(0, 0, nil, r.logger)
	}

	// Apply middleware chain, innermost first
	return middleware.Chain(
		r.engine,
		rl.Middleware,
		middleware.WithAuth(middleware.AuthConfig{
			Token:         opts.APIKey,
			ExcludedPaths: publicRoutes,
		}, r.logger),
		middleware.WithGzip(middleware.MinGzipSize),
		metricsMiddleware.WithMetrics,
		middleware.WithLogging(r.logger),
		middleware.WithRequestID,
	)
}

// BrowserRoutes lists the path prefixes the rate limiter should cover.
func BrowserRoutes() []string {
	return append([]string(nil), browserRoutes...)
}
