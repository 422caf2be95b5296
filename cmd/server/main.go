package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/muandane/glimpse/internal/browser"
	"github.com/muandane/glimpse/internal/cache"
	"github.com/muandane/glimpse/internal/config"
	"github.com/muandane/glimpse/internal/handlers"
	"github.com/muandane/glimpse/internal/middleware"
	"github.com/muandane/glimpse/internal/router"
	"github.com/muandane/glimpse/internal/screenshot"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:     "glimpse",
		Short:   "Headless browser screenshots, page metadata and content conversion over HTTP",
		Version: version,
		Long: `glimpse runs an HTTP service that drives a headless Chromium to capture
screenshots (full, small and thumbnail), browse metadata and session
recordings, and converts HTML to text, reader view or markdown.
Settings are read from the environment and from .env files.`,
		Args:         cobra.NoArgs,
		RunE:         serve,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newCaptureCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s cache: %w", cfg.Cache.Backend, err)
	}
	cacheManager := cache.NewManager(store, cfg.Cache.Backend, logger)
	defer func() {
		if err := cacheManager.Close(); err != nil {
			logger.Error("close cache", "error", err)
		}
	}()
	cacheManager.StartSweeper(ctx, cfg.Cache.CleanupInterval)

	b, err := browser.New(&cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("close browser", "error", err)
		}
	}()

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, router.BrowserRoutes(), logger)
	go limiter.Run(ctx)

	ttl := cfg.Cache.Expiration
	h := router.Handlers{
		Screenshot: handlers.NewScreenshotHandler(screenshot.NewService(b, cacheManager, ttl, logger), logger),
		Browse:     handlers.NewBrowseHandler(b, cacheManager, ttl, logger),
		Content:    handlers.NewContentHandler(cacheManager, ttl, logger),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"browser": b,
			"cache":   cacheManager,
		}, logger),
		Stats: handlers.NewStatsHandler(cacheManager),
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.NewRouter(logger).Setup(h, router.Options{APIKey: cfg.APIKey, RateLimiter: limiter}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Browser.CaptureTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", cfg.Addr,
			"version", version,
			"cache_backend", cfg.Cache.Backend,
			"auth", cfg.AuthEnabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
